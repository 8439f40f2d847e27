package telephony

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	errx "github.com/call-intake-poc-v1/server/internal/core/error"
	"github.com/call-intake-poc-v1/server/internal/intake"
)

const (
	writeBufferSize = 256
	eventBufferSize = 32
	writeTimeout    = 10 * time.Second
)

// wsConn is the Twilio side of a call.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// pendingAck is an instruction waiting for Twilio to confirm playback.
type pendingAck struct {
	mark   string
	marked bool
	done   chan struct{}
	acked  bool
	// a model turn was already under way when the instruction was sent; its
	// end does not belong to this instruction
	stale bool
	// the model spoke since the instruction was sent
	heard bool
}

func (p *pendingAck) ack() {
	if !p.acked {
		p.acked = true
		close(p.done)
	}
}

// CallSession bridges one Twilio media stream to a Gemini Live session and
// exposes it to the intake worker as an intake.Session.
type CallSession struct {
	id        string
	conn      wsConn
	live      liveLink
	gap       time.Duration
	log       zerolog.Logger
	createdAt time.Time

	writeCh chan twilioEvent
	events  chan intake.TranscriptEvent
	closeCh chan struct{}

	// serializes instructions; at most one is in flight
	dispatchMu sync.Mutex
	// serializes transcript emission so sequence numbers reach the listener in order
	emitMu sync.Mutex

	mu        sync.Mutex
	closed    bool
	started   bool
	streamSid string
	callSid   string
	partial   strings.Builder
	gapTimer  *time.Timer
	seq       uint64
	marks     int
	pending   *pendingAck
	speaking  bool
}

func newCallSession(id string, conn wsConn, gap time.Duration, log zerolog.Logger) *CallSession {
	s := &CallSession{
		id:        id,
		conn:      conn,
		gap:       gap,
		log:       log,
		createdAt: time.Now(),
		writeCh:   make(chan twilioEvent, writeBufferSize),
		events:    make(chan intake.TranscriptEvent, eventBufferSize),
		closeCh:   make(chan struct{}),
	}
	go s.writePump()
	return s
}

// bind attaches the live link. A session shut down while dialling closes
// the link straight away.
func (s *CallSession) bind(live liveLink) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = live.Close()
		return
	}
	s.live = live
	s.mu.Unlock()
}

func (s *CallSession) handlers() LiveHandlers {
	return LiveHandlers{
		OnAudio:              s.onAudio,
		OnInputTranscription: s.onTranscription,
		OnTurnComplete:       s.onTurnComplete,
		OnInterrupted:        s.onInterrupted,
		OnError:              s.onError,
	}
}

func (s *CallSession) ID() string {
	return s.id
}

// Done is closed once the session is released.
func (s *CallSession) Done() <-chan struct{} {
	return s.closeCh
}

func (s *CallSession) StreamSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSid
}

// CallSid is the Twilio call sid, known once the stream started.
func (s *CallSession) CallSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callSid
}

func (s *CallSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Attach forwards final caller transcripts to accept until ctx is done or
// the session closes.
func (s *CallSession) Attach(ctx context.Context, accept func(context.Context, intake.TranscriptEvent) bool) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closeCh:
				return
			case ev := <-s.events:
				if !accept(ctx, ev) {
					s.log.Debug().Uint64("seq", ev.Seq).Msg("Transcript dropped by listener")
				}
			}
		}
	}()
}

// Dispatch has the live model speak instruction and waits until Twilio
// reports that playback reached the end of it.
func (s *CallSession) Dispatch(ctx context.Context, instruction string) error {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	if s.closed || s.live == nil {
		s.mu.Unlock()
		return errx.ErrSessionUnavailable
	}
	s.marks++
	p := &pendingAck{
		mark:  fmt.Sprintf("instruction-%d", s.marks),
		done:  make(chan struct{}),
		stale: s.speaking,
	}
	s.pending = p
	live := s.live
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.pending == p {
			s.pending = nil
		}
		s.mu.Unlock()
	}()

	if err := live.SendText(instruction); err != nil {
		return err
	}
	s.log.Debug().Str("mark", p.mark).Str("instruction", instruction).Msg("Instruction sent")

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closeCh:
		return errx.ErrSessionUnavailable
	}
}

// Delete releases the live session and the media stream, which ends the call.
func (s *CallSession) Delete(_ context.Context) error {
	if !s.shutdown() {
		return errx.ErrSessionNotFound
	}
	s.log.Debug().Msg("Call session deleted")
	return nil
}

func (s *CallSession) shutdown() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	if s.gapTimer != nil {
		s.gapTimer.Stop()
		s.gapTimer = nil
	}
	live := s.live
	s.mu.Unlock()

	close(s.closeCh)
	if live != nil {
		if err := live.Close(); err != nil {
			s.log.Debug().Err(err).Msg("Failed to close live session")
		}
	}
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout),
	)
	_ = s.conn.Close()
	return true
}

// Serve reads Twilio stream events until the stream stops or the connection
// drops. onStart runs once, when the stream sid is known.
func (s *CallSession) Serve(onStart func(*CallSession)) error {
	defer s.shutdown()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return fmt.Errorf("read twilio stream: %w", err)
		}

		var ev twilioEvent
		if err := sonic.Unmarshal(data, &ev); err != nil {
			s.log.Warn().Err(err).Msg("Failed to parse Twilio message")
			continue
		}

		switch ev.Event {
		case eventConnected:
			s.log.Debug().Msg("Twilio stream connected")
		case eventStart:
			if s.start(ev) && onStart != nil {
				onStart(s)
			}
		case eventMedia:
			s.forwardAudio(ev.Media)
		case eventMark:
			if ev.Mark != nil {
				s.onMark(ev.Mark.Name)
			}
		case eventStop:
			s.log.Info().Msg("Twilio stream stopped")
			return nil
		default:
			s.log.Debug().Str("event", ev.Event).Msg("Unknown Twilio event")
		}
	}
}

func (s *CallSession) start(ev twilioEvent) bool {
	sid := ev.StreamSid
	var callSid string
	if ev.Start != nil {
		if ev.Start.StreamSid != "" {
			sid = ev.Start.StreamSid
		}
		callSid = ev.Start.CallSid
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || sid == "" {
		return false
	}
	s.started = true
	s.streamSid = sid
	s.callSid = callSid
	s.log.Info().Str("stream_sid", sid).Str("twilio_call_sid", callSid).Msg("Twilio stream started")
	return true
}

func (s *CallSession) forwardAudio(m *twilioMedia) {
	if m == nil || m.Payload == "" {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to decode Twilio audio")
		return
	}
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()
	if live == nil {
		return
	}
	if err := live.SendAudio(MuLawToPCM16k(raw)); err != nil {
		s.log.Warn().Err(err).Msg("Failed to send audio to Gemini")
	}
}

func (s *CallSession) onAudio(pcm24k []byte) {
	s.mu.Lock()
	s.speaking = true
	if p := s.pending; p != nil && !p.stale {
		p.heard = true
	}
	sid := s.streamSid
	s.mu.Unlock()
	if sid == "" {
		return
	}
	payload := base64.StdEncoding.EncodeToString(PCM24kToMuLaw(pcm24k))
	s.queue(newMediaMessage(sid, payload))
}

// onTranscription accumulates caller speech. A finished fragment, a pause
// longer than the gap, or the end of a model turn closes the utterance.
func (s *CallSession) onTranscription(text string, finished bool) {
	s.mu.Lock()
	s.partial.WriteString(text)
	if s.gapTimer != nil {
		s.gapTimer.Stop()
		s.gapTimer = nil
	}
	if !finished && s.gap > 0 && !s.closed {
		s.gapTimer = time.AfterFunc(s.gap, s.flushTranscript)
	}
	s.mu.Unlock()

	if finished {
		s.flushTranscript()
	}
}

func (s *CallSession) flushTranscript() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	text := strings.TrimSpace(s.partial.String())
	s.partial.Reset()
	if s.gapTimer != nil {
		s.gapTimer.Stop()
		s.gapTimer = nil
	}
	if text == "" || s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	ev := intake.TranscriptEvent{Text: text, Seq: s.seq, Final: true}
	s.mu.Unlock()

	select {
	case s.events <- ev:
	case <-s.closeCh:
	}
}

// onTurnComplete places a mark behind the instruction audio; Twilio echoes
// it once playback gets there. Only the end of a turn the model spoke after
// the instruction was sent counts.
func (s *CallSession) onTurnComplete() {
	s.flushTranscript()

	s.mu.Lock()
	s.speaking = false
	p := s.pending
	sid := s.streamSid
	if p == nil || p.marked {
		s.mu.Unlock()
		return
	}
	if p.stale || !p.heard {
		p.stale = false
		s.mu.Unlock()
		return
	}
	p.marked = true
	if sid == "" {
		p.ack()
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.queue(newMarkMessage(sid, p.mark))
}

// onInterrupted ends the current model turn early, usually because the
// caller talked over it.
func (s *CallSession) onInterrupted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = false
	if s.pending != nil {
		s.pending.stale = false
	}
}

func (s *CallSession) onMark(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil && s.pending.mark == name {
		s.pending.ack()
	}
}

func (s *CallSession) onError(err error) {
	if s.isClosed() {
		return
	}
	s.log.Error().Err(err).Msg("Gemini Live error")
	s.shutdown()
}

func (s *CallSession) queue(msg twilioEvent) {
	select {
	case s.writeCh <- msg:
	case <-s.closeCh:
	}
}

// writePump is the only writer of data frames on the Twilio connection.
func (s *CallSession) writePump() {
	for {
		select {
		case <-s.closeCh:
			return
		case msg := <-s.writeCh:
			data, err := sonic.Marshal(msg)
			if err != nil {
				s.log.Warn().Err(err).Msg("Failed to encode Twilio message")
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !s.isClosed() {
					s.log.Warn().Err(err).Msg("Failed to write to Twilio stream")
					s.shutdown()
				}
				return
			}
		}
	}
}
