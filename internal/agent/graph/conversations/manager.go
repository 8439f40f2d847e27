package conversations

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
)

const defaultHistoryTurns = 6

// TranscriptManager keeps each call's spoken turns and renders the recent
// history that accompanies an extraction request.
type TranscriptManager struct {
	repo         model.TranscriptRepository
	historyTurns int
}

func NewTranscriptManager(repo model.TranscriptRepository, cfg model.CallConfig) *TranscriptManager {
	turns := cfg.HistoryTurns
	if turns <= 0 {
		turns = defaultHistoryTurns
	}
	return &TranscriptManager{repo: repo, historyTurns: turns}
}

// =========== Recording ===========

// RecordUtterance stores a finalized caller utterance.
func (tm *TranscriptManager) RecordUtterance(ctx context.Context, callID string, text string) error {
	return tm.repo.AddTurn(ctx, callID, schema.UserMessage(text))
}

// RecordInstruction stores an instruction the assistant spoke to the caller.
func (tm *TranscriptManager) RecordInstruction(ctx context.Context, callID string, text string) error {
	return tm.repo.AddTurn(ctx, callID, schema.AssistantMessage(text, nil))
}

// =========== Context for extraction ===========

// BuildExtractionContext renders the last turns of the call, oldest first.
// The utterance being analysed is not part of the stored history yet.
func (tm *TranscriptManager) BuildExtractionContext(ctx context.Context, callID string) (string, error) {
	transcript, err := tm.repo.LoadTranscript(ctx, callID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("<call_context>\n")
	for _, msg := range trimTail(transcript.Messages, tm.historyTurns) {
		if msg == nil || msg.Content == "" {
			continue
		}
		switch msg.Role {
		case schema.User:
			b.WriteString("Caller: " + msg.Content + "\n")
		case schema.Assistant:
			b.WriteString("Assistant: " + msg.Content + "\n")
		}
	}
	b.WriteString("</call_context>")
	return b.String(), nil
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if len(messages) <= maxTurns {
		return messages
	}
	return messages[len(messages)-maxTurns:]
}
