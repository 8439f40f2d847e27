package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

type TranscriptRepository interface {
	// AddTurn appends a caller or assistant message to the call transcript.
	AddTurn(ctx context.Context, callID string, message *schema.Message) error

	// LoadTranscript retrieves the stored transcript for a call.
	LoadTranscript(ctx context.Context, callID string) (*CallTranscript, error)
}

// CallTranscript represents the loaded turns of one call.
type CallTranscript struct {
	CallID   string
	Messages []*schema.Message
}
