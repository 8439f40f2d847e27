package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
	errx "github.com/call-intake-poc-v1/server/internal/core/error"
)

type memoryRecorder struct {
	mu    sync.Mutex
	turns []string
}

func (r *memoryRecorder) RecordUtterance(_ context.Context, _ string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, "caller: "+text)
	return nil
}

func (r *memoryRecorder) RecordInstruction(_ context.Context, _ string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, "assistant: "+text)
	return nil
}

func newTestService(t *testing.T, oracle Oracle, sink RecordSink, rec TranscriptRecorder) *Service {
	t.Helper()
	svc, err := NewService(Deps{
		Oracle:         oracle,
		Taxonomy:       testTaxonomy(t),
		Intake:         model.IntakeConfig{MaxAttempts: 3, QueueSize: 8, DispatchTimeout: time.Second},
		Prompt:         model.PromptConfig{OfficeName: "NBS UPO office"},
		ExtractTimeout: time.Second,
		Recorder:       rec,
		Sink:           sink,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

type runResult struct {
	res Result
	err error
}

func runAsync(ctx context.Context, w *CallWorker) <-chan runResult {
	ch := make(chan runResult, 1)
	go func() {
		res, err := w.Run(ctx)
		ch <- runResult{res, err}
	}()
	return ch
}

func waitRun(t *testing.T, ch <-chan runResult) runResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish")
		return runResult{}
	}
}

func TestCallWorkerCompletesIntake(t *testing.T) {
	oracle := &scriptedOracle{replies: []string{
		reply(map[string]string{"name": "Zhang Wei", "identity": "student"}),
		zhangWeiReply,
	}}
	sink := &memorySink{}
	rec := &memoryRecorder{}
	session := newFakeSession("call-1")
	w := newTestService(t, oracle, sink, rec).NewCall(session)

	ctx := context.Background()
	l := w.Listener()
	l.Accept(ctx, TranscriptEvent{Text: "hi I'm Zh", Seq: 1})
	l.Accept(ctx, final(1, "hi, I'm Zhang Wei, a student"))
	l.Accept(ctx, final(1, "hi, I'm Zhang Wei, a student"))
	l.Accept(ctx, final(2, "ID 20230001, password reset, zhangwei@example.com"))

	r := waitRun(t, runAsync(ctx, w))
	if r.err != nil {
		t.Fatalf("Run() error = %v", r.err)
	}

	said := session.Said()
	want := []string{
		"this is nbs upo office, how may i help you",
		"What is your student ID?",
		forwardingNotice + " " + closingAck,
	}
	if len(said) != len(want) {
		t.Fatalf("said %q, want %q", said, want)
	}
	for i := range want {
		if said[i] != want[i] {
			t.Fatalf("said[%d] = %q, want %q", i, said[i], want[i])
		}
	}
	if session.overlap.Load() {
		t.Fatal("two instructions were in flight at once")
	}
	if oracle.Calls() != 2 {
		t.Fatalf("oracle called %d times, want 2", oracle.Calls())
	}
	if session.deletes.Load() != 1 {
		t.Fatalf("Delete called %d times, want 1", session.deletes.Load())
	}

	if r.res.State != StateDone || r.res.Outcome != StateConfirming {
		t.Fatalf("result states = %s/%s", r.res.State, r.res.Outcome)
	}
	got := r.res.Record
	if got.Name != "Zhang Wei" || got.StudentID != "20230001" || got.PurposeType != "technical_support" || got.Action != model.ActionComplete {
		t.Fatalf("record = %+v", got)
	}

	saved := sink.Results()
	if len(saved) != 1 || saved[0].Record != got {
		t.Fatalf("sink got %+v", saved)
	}
	if len(rec.turns) != 5 {
		t.Fatalf("recorded turns = %q", rec.turns)
	}
}

func TestCallWorkerEscalatesAfterRepeatedFailures(t *testing.T) {
	oracle := oracleFunc(func(context.Context, model.ExtractionInput) (string, error) {
		return "I could not understand", nil
	})
	sink := &memorySink{}
	session := newFakeSession("call-2")
	w := newTestService(t, oracle, sink, nil).NewCall(session)

	ctx := context.Background()
	for seq := uint64(1); seq <= 4; seq++ {
		w.Listener().Accept(ctx, final(seq, "mumble"))
	}

	r := waitRun(t, runAsync(ctx, w))
	if r.err != nil {
		t.Fatalf("Run() error = %v", r.err)
	}
	said := session.Said()
	// greeting, two clarifications, escalation; the fourth utterance is never processed
	if len(said) != 4 {
		t.Fatalf("said %q", said)
	}
	if said[2] != "Sorry, I didn't catch that. Can you spell your name?" {
		t.Fatalf("second clarification = %q", said[2])
	}
	if said[3] != permissionNotice+" "+transferNotice {
		t.Fatalf("closing = %q", said[3])
	}
	if r.res.Record.Action != model.ActionTransferToHuman || r.res.Outcome != StateEscalating {
		t.Fatalf("result = %+v", r.res)
	}
	if len(sink.Results()) != 1 {
		t.Fatal("escalated record not archived")
	}
}

func TestCallWorkerEndsOnEarlyGoodbye(t *testing.T) {
	oracle := &scriptedOracle{replies: []string{reply(nil)}}
	session := newFakeSession("call-3")
	w := newTestService(t, oracle, nil, nil).NewCall(session)

	ctx := context.Background()
	w.Listener().Accept(ctx, final(1, "ok, goodbye"))
	r := waitRun(t, runAsync(ctx, w))
	if r.err != nil {
		t.Fatalf("Run() error = %v", r.err)
	}
	if oracle.Calls() != 1 {
		t.Fatalf("extraction must run before the goodbye is honoured, calls = %d", oracle.Calls())
	}
	if r.res.Record.Action != model.ActionTransferToHuman {
		t.Fatalf("action = %s", r.res.Record.Action)
	}
}

func TestCallWorkerAbortsWhenSessionUnavailable(t *testing.T) {
	session := newFakeSession("call-4")
	session.dispatchErr = errors.New("websocket closed")
	w := newTestService(t, &scriptedOracle{replies: []string{reply(nil)}}, nil, nil).NewCall(session)

	r := waitRun(t, runAsync(context.Background(), w))
	if !errors.Is(r.err, errx.ErrSessionUnavailable) {
		t.Fatalf("Run() error = %v, want ErrSessionUnavailable", r.err)
	}
	if session.deletes.Load() != 1 {
		t.Fatal("session not released after failure")
	}
}

func TestCallWorkerDiscardsExtractionAfterHangUp(t *testing.T) {
	started := make(chan struct{})
	oracle := oracleFunc(func(ctx context.Context, _ model.ExtractionInput) (string, error) {
		close(started)
		<-ctx.Done()
		return zhangWeiReply, nil
	})
	sink := &memorySink{}
	session := newFakeSession("call-5")
	svc, err := NewService(Deps{
		Oracle:         oracle,
		Taxonomy:       testTaxonomy(t),
		Intake:         model.IntakeConfig{MaxAttempts: 3},
		ExtractTimeout: time.Minute,
		Sink:           sink,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	w := svc.NewCall(session)

	ctx, cancel := context.WithCancel(context.Background())
	w.Listener().Accept(ctx, final(1, "I'm Zhang Wei"))
	ch := runAsync(ctx, w)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("oracle never called")
	}
	cancel()

	r := waitRun(t, ch)
	if !errors.Is(r.err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", r.err)
	}
	if r.res.Record.Name != model.Unknown || r.res.Turns != 0 {
		t.Fatalf("stale extraction applied: %+v", r.res)
	}
	if len(session.Said()) != 1 {
		t.Fatalf("only the greeting should be spoken, got %q", session.Said())
	}
	if len(sink.Results()) != 0 {
		t.Fatal("unfinished record archived")
	}
	if session.deletes.Load() != 1 {
		t.Fatal("session not released on hang-up")
	}
}

func TestCallWorkerHangUpDuringStuckExtraction(t *testing.T) {
	oracle := newStuckOracle(t)
	session := newFakeSession("call-6")
	svc, err := NewService(Deps{
		Oracle:         oracle,
		Taxonomy:       testTaxonomy(t),
		Intake:         model.IntakeConfig{MaxAttempts: 3},
		ExtractTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	w := svc.NewCall(session)

	ctx, cancel := context.WithCancel(context.Background())
	w.Listener().Accept(ctx, final(1, "I'm Zhang Wei"))
	ch := runAsync(ctx, w)

	select {
	case <-oracle.started:
	case <-time.After(5 * time.Second):
		t.Fatal("oracle never called")
	}
	cancel()

	r := waitRun(t, ch)
	if !errors.Is(r.err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", r.err)
	}
	if session.deletes.Load() != 1 {
		t.Fatalf("deletes = %d, want 1", session.deletes.Load())
	}
}

func TestNewServiceValidatesDeps(t *testing.T) {
	if _, err := NewService(Deps{Taxonomy: testTaxonomy(t)}); err == nil {
		t.Fatal("expected error without oracle")
	}
	if _, err := NewService(Deps{Oracle: &scriptedOracle{}}); err == nil {
		t.Fatal("expected error without taxonomy")
	}
}
