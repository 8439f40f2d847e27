package intake

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
	"github.com/call-intake-poc-v1/server/internal/agent/taxonomy"
	errx "github.com/call-intake-poc-v1/server/internal/core/error"
)

type oracleFunc func(ctx context.Context, in model.ExtractionInput) (string, error)

func (f oracleFunc) Extract(ctx context.Context, in model.ExtractionInput) (string, error) {
	return f(ctx, in)
}

// stuckOracle ignores ctx and only returns once release is closed.
type stuckOracle struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStuckOracle(t *testing.T) *stuckOracle {
	o := &stuckOracle{started: make(chan struct{}), release: make(chan struct{})}
	t.Cleanup(func() { close(o.release) })
	return o
}

func (o *stuckOracle) Extract(context.Context, model.ExtractionInput) (string, error) {
	o.once.Do(func() { close(o.started) })
	<-o.release
	return "", nil
}

// scriptedOracle replies with the next canned answer on every call and
// repeats the last one when the script runs out.
type scriptedOracle struct {
	mu      sync.Mutex
	replies []string
	calls   int
	inputs  []model.ExtractionInput
}

func (o *scriptedOracle) Extract(_ context.Context, in model.ExtractionInput) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inputs = append(o.inputs, in)
	i := o.calls
	if i >= len(o.replies) {
		i = len(o.replies) - 1
	}
	o.calls++
	return o.replies[i], nil
}

func (o *scriptedOracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// reply renders an oracle answer; fields not given are "unknown".
func reply(kv map[string]string) string {
	keys := []string{"name", "identity", "student_id", "company_name", "company_phone", "email", "purpose_type", "purpose_text", "action"}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := kv[k]
		if !ok {
			v = "unknown"
		}
		parts = append(parts, `"`+k+`":"`+v+`"`)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

var zhangWeiReply = reply(map[string]string{
	"name":         "Zhang Wei",
	"identity":     "student",
	"student_id":   "20230001",
	"email":        "zhangwei@example.com",
	"purpose_type": "technical_support",
	"purpose_text": "reset password",
	"action":       "complete",
})

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.New(map[string]string{
		"technical_support": "IT Service Desk",
		"pricing_inquiry":   "Business Partnerships",
		"admissions":        "Admissions Office",
	})
	if err != nil {
		t.Fatalf("taxonomy.New() error = %v", err)
	}
	return tax
}

type fakeSession struct {
	id          string
	inflight    atomic.Int32
	overlap     atomic.Bool
	deletes     atomic.Int32
	dispatchErr error
	deleteErr   error

	mu   sync.Mutex
	said []string
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Dispatch(ctx context.Context, text string) error {
	if s.inflight.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.inflight.Add(-1)

	select {
	case <-time.After(time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.dispatchErr != nil {
		return s.dispatchErr
	}
	s.mu.Lock()
	s.said = append(s.said, text)
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) Delete(context.Context) error {
	if s.deletes.Add(1) > 1 {
		return errx.ErrSessionNotFound
	}
	return s.deleteErr
}

func (s *fakeSession) Said() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.said...)
}

type memorySink struct {
	mu      sync.Mutex
	results []Result
}

func (s *memorySink) Save(_ context.Context, res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	return nil
}

func (s *memorySink) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.results...)
}

func final(seq uint64, text string) TranscriptEvent {
	return TranscriptEvent{Text: text, Seq: seq, Final: true}
}

func utter(seq uint64, text string) model.Utterance {
	return model.Utterance{Text: text, Seq: seq, Final: true}
}
