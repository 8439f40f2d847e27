package repo

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
)

// MemoryTranscriptRepository keeps transcripts in process. Used by the demo
// CLI and by tests; turns are lost on exit.
type MemoryTranscriptRepository struct {
	mu    sync.RWMutex
	turns map[string][]*schema.Message
}

func NewMemoryTranscriptRepository() *MemoryTranscriptRepository {
	return &MemoryTranscriptRepository{turns: make(map[string][]*schema.Message)}
}

func (r *MemoryTranscriptRepository) AddTurn(_ context.Context, callID string, message *schema.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns[callID] = append(r.turns[callID], message)
	return nil
}

func (r *MemoryTranscriptRepository) LoadTranscript(_ context.Context, callID string) (*model.CallTranscript, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := make([]*schema.Message, len(r.turns[callID]))
	copy(msgs, r.turns[callID])
	return &model.CallTranscript{CallID: callID, Messages: msgs}, nil
}

var _ model.TranscriptRepository = (*MemoryTranscriptRepository)(nil)
