package model

import "time"

// Utterance is one finalized caller segment handed to the dialog.
type Utterance struct {
	Text       string
	Seq        uint64
	Final      bool
	ReceivedAt time.Time
}

// ExtractionInput is what the extraction oracle sees for one turn.
type ExtractionInput struct {
	CallID    string       `json:"call_id"`
	Seq       uint64       `json:"seq"`
	Utterance string       `json:"utterance"`
	Record    CallerRecord `json:"record"`
}

// ExtractionState is per-invocation state for the extraction graph.
// It is only touched inside eino state handlers.
type ExtractionState struct {
	CallID       string
	Seq          uint64
	TotalCostUSD float64
}
