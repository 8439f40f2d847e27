package conversations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
)

type memoryRepo struct {
	turns   map[string][]*schema.Message
	loadErr error
}

func (r *memoryRepo) AddTurn(_ context.Context, callID string, msg *schema.Message) error {
	if r.turns == nil {
		r.turns = map[string][]*schema.Message{}
	}
	r.turns[callID] = append(r.turns[callID], msg)
	return nil
}

func (r *memoryRepo) LoadTranscript(_ context.Context, callID string) (*model.CallTranscript, error) {
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return &model.CallTranscript{CallID: callID, Messages: r.turns[callID]}, nil
}

func TestBuildExtractionContextKeepsRecentTurns(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepo{}
	tm := NewTranscriptManager(repo, model.CallConfig{HistoryTurns: 2})

	if err := tm.RecordInstruction(ctx, "c1", "this is nbs upo office, how may i help you"); err != nil {
		t.Fatalf("RecordInstruction() error = %v", err)
	}
	if err := tm.RecordUtterance(ctx, "c1", "hi, I need help"); err != nil {
		t.Fatalf("RecordUtterance() error = %v", err)
	}
	if err := tm.RecordInstruction(ctx, "c1", "May I have your name?"); err != nil {
		t.Fatalf("RecordInstruction() error = %v", err)
	}

	out, err := tm.BuildExtractionContext(ctx, "c1")
	if err != nil {
		t.Fatalf("BuildExtractionContext() error = %v", err)
	}
	if strings.Contains(out, "nbs upo") {
		t.Fatalf("context should drop turns beyond the limit:\n%s", out)
	}
	if !strings.Contains(out, "Caller: hi, I need help\nAssistant: May I have your name?\n") {
		t.Fatalf("unexpected context:\n%s", out)
	}
}

func TestBuildExtractionContextPropagatesLoadError(t *testing.T) {
	boom := errors.New("redis down")
	tm := NewTranscriptManager(&memoryRepo{loadErr: boom}, model.CallConfig{})
	if _, err := tm.BuildExtractionContext(context.Background(), "c1"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
