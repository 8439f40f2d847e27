package intake

import (
	"context"
	"errors"
	"time"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
)

// State is the dialog phase of a call.
type State string

const (
	StateCollecting State = "COLLECTING"
	StateConfirming State = "CONFIRMING"
	StateEscalating State = "ESCALATING"
	StateDone       State = "DONE"
)

// ErrCallFinished is returned when an utterance reaches a frozen dialog.
var ErrCallFinished = errors.New("call already finished")

// Oracle turns an utterance plus the partial record into a JSON reply with
// the nine CallerRecord keys. It may be slow, wrong or unavailable.
type Oracle interface {
	Extract(ctx context.Context, in model.ExtractionInput) (string, error)
}

// Session is the live telephony leg of a call.
type Session interface {
	ID() string
	// Dispatch speaks instruction to the caller and returns once playback
	// has been acknowledged.
	Dispatch(ctx context.Context, instruction string) error
	// Delete releases the session. It returns errx.ErrSessionNotFound when
	// the session is already gone.
	Delete(ctx context.Context) error
}

// TranscriptRecorder persists spoken turns. Failures are logged, never fatal.
type TranscriptRecorder interface {
	RecordUtterance(ctx context.Context, callID string, text string) error
	RecordInstruction(ctx context.Context, callID string, text string) error
}

// RecordSink receives every frozen record, e.g. to forward it to a department.
type RecordSink interface {
	Save(ctx context.Context, res Result) error
}

// TranscriptEvent is one speech-recognition result for the caller's leg.
type TranscriptEvent struct {
	Text  string
	Seq   uint64
	Final bool
}

// Outcome is the result of one extraction attempt. A failed outcome
// resolves nothing.
type Outcome struct {
	Failed bool
	Err    error
	// Resolved holds only fields that are newly known or corrected.
	Resolved        map[model.Field]string
	SuggestedAction model.Action
	// UnrecognizedPurpose holds a purpose_type the taxonomy rejected.
	UnrecognizedPurpose string
	// Farewell is set when the utterance was only a goodbye.
	Farewell bool
}

// Decision is what the state machine concluded after one turn.
type Decision struct {
	State   State
	Record  model.CallerRecord
	Next    model.Field
	Attempt int
	// Reason explains an escalation.
	Reason string
}

// Terminal reports whether the decision froze the record.
func (d Decision) Terminal() bool {
	return d.State == StateConfirming || d.State == StateEscalating
}

// Result describes a finished call.
type Result struct {
	CallID    string
	State     State
	Outcome   State
	Record    model.CallerRecord
	Retries   map[model.Field]int
	Turns     int
	Reason    string
	StartedAt time.Time
	EndedAt   time.Time
}
