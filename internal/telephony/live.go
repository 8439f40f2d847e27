package telephony

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
)

// sayPrefix marks text the live model must read aloud verbatim.
const sayPrefix = "SAY: "

const liveSystemPrompt = `You are the telephone voice of %s.
You never decide what to say yourself and you never answer the caller.
When you receive a message that starts with "SAY:", read the text after it aloud exactly as written, in the caller's language, and then stop.
Stay silent at every other moment, including while the caller is speaking.`

// LiveHandlers receive the live model's output. All of them are called from
// the receive goroutine.
type LiveHandlers struct {
	OnAudio              func(pcm24k []byte)
	OnInputTranscription func(text string, finished bool)
	OnTurnComplete       func()
	OnInterrupted        func()
	OnError              func(err error)
}

// liveLink is the part of the live model a call session talks to.
type liveLink interface {
	SendAudio(pcm16k []byte) error
	SendText(text string) error
	Close() error
}

// LiveProxy is one Gemini Live session used as speech recognizer for the
// caller leg and as speech synthesizer for instructions.
type LiveProxy struct {
	session  *genai.Session
	handlers LiveHandlers
	log      zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

func liveConnectConfig(prompt model.PromptConfig) *genai.LiveConnectConfig {
	voice := prompt.Voice
	if voice == "" {
		voice = "Zephyr"
	}
	return &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: fmt.Sprintf(liveSystemPrompt, prompt.OfficeName)}},
		},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
		InputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
}

// DialLive opens a live session and starts receiving.
func DialLive(ctx context.Context, client *genai.Client, modelName string, prompt model.PromptConfig, h LiveHandlers, log zerolog.Logger) (*LiveProxy, error) {
	if client == nil {
		return nil, fmt.Errorf("genai client is nil")
	}
	session, err := client.Live.Connect(ctx, modelName, liveConnectConfig(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Live API: %w", err)
	}
	p := &LiveProxy{session: session, handlers: h, log: log}
	go p.receive()
	log.Debug().Str("model", modelName).Msg("Connected to Gemini Live")
	return p, nil
}

func (p *LiveProxy) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *LiveProxy) receive() {
	for {
		resp, err := p.session.Receive()
		if err != nil {
			if !p.isClosed() && p.handlers.OnError != nil {
				p.handlers.OnError(fmt.Errorf("live receive: %w", err))
			}
			return
		}
		p.handle(resp)
	}
}

func (p *LiveProxy) handle(resp *genai.LiveServerMessage) {
	sc := resp.ServerContent
	if sc == nil {
		return
	}
	if sc.InputTranscription != nil && p.handlers.OnInputTranscription != nil {
		p.handlers.OnInputTranscription(sc.InputTranscription.Text, sc.InputTranscription.Finished)
	}
	if sc.ModelTurn != nil && p.handlers.OnAudio != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
				p.handlers.OnAudio(part.InlineData.Data)
			}
		}
	}
	if sc.Interrupted && p.handlers.OnInterrupted != nil {
		p.handlers.OnInterrupted()
	}
	if sc.TurnComplete && p.handlers.OnTurnComplete != nil {
		p.handlers.OnTurnComplete()
	}
}

func (p *LiveProxy) SendAudio(pcm16k []byte) error {
	if p.isClosed() {
		return fmt.Errorf("live session is closed")
	}
	return p.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{MIMEType: "audio/pcm;rate=16000", Data: pcm16k},
	})
}

// SendText asks the model to speak text.
func (p *LiveProxy) SendText(text string) error {
	if p.isClosed() {
		return fmt.Errorf("live session is closed")
	}
	turnComplete := true
	err := p.session.SendClientContent(genai.LiveSendClientContentParameters{
		Turns: []*genai.Content{
			{Role: "user", Parts: []*genai.Part{{Text: sayPrefix + text}}},
		},
		TurnComplete: &turnComplete,
	})
	if err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}
	return nil
}

func (p *LiveProxy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.session.Close()
}
