package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
	"github.com/call-intake-poc-v1/server/internal/agent/taxonomy"
	errx "github.com/call-intake-poc-v1/server/internal/core/error"
	logx "github.com/call-intake-poc-v1/server/pkg/logger"
)

// Deps are the collaborators shared by every call.
type Deps struct {
	Oracle         Oracle
	Taxonomy       *taxonomy.Taxonomy
	Intake         model.IntakeConfig
	Prompt         model.PromptConfig
	ExtractTimeout time.Duration
	// optional
	Recorder TranscriptRecorder
	Sink     RecordSink
}

// Service creates call workers.
type Service struct {
	extractor *SlotExtractor
	composer  *ResponseComposer
	cfg       model.IntakeConfig
	recorder  TranscriptRecorder
	sink      RecordSink
}

func NewService(deps Deps) (*Service, error) {
	if deps.Oracle == nil {
		return nil, fmt.Errorf("oracle is nil")
	}
	if deps.Taxonomy == nil {
		return nil, fmt.Errorf("taxonomy is nil")
	}
	return &Service{
		extractor: NewSlotExtractor(deps.Oracle, deps.Taxonomy, deps.ExtractTimeout),
		composer:  NewResponseComposer(deps.Prompt),
		cfg:       deps.Intake,
		recorder:  deps.Recorder,
		sink:      deps.Sink,
	}, nil
}

// NewCall prepares the worker for one answered call.
func (s *Service) NewCall(session Session) *CallWorker {
	return &CallWorker{
		svc:      s,
		session:  session,
		listener: NewTranscriptListener(s.cfg.QueueSize),
		machine:  NewDialogStateMachine(s.cfg.MaxAttempts),
	}
}

// CallWorker is the single consumer of one call's utterances. All record
// mutation and every dispatch happen on the goroutine running Run.
type CallWorker struct {
	svc      *Service
	session  Session
	listener *TranscriptListener
	machine  *DialogStateMachine
	log      zerolog.Logger
	started  time.Time
}

// Listener is where the telephony side delivers transcript events.
func (w *CallWorker) Listener() *TranscriptListener {
	return w.listener
}

// Run greets the caller, then processes utterances one at a time until the
// record is frozen, the session fails or ctx is cancelled. The session is
// always released before Run returns.
func (w *CallWorker) Run(ctx context.Context) (Result, error) {
	callID := w.session.ID()
	w.log = logx.Call(callID)
	w.started = time.Now()

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	term := NewCallTerminator(cancel, w.svc.cfg.ReleaseTimeout)

	greeting := w.svc.composer.Greeting()
	if err := w.dispatch(callCtx, greeting); err != nil {
		return w.abort(ctx, term, err)
	}

	for {
		select {
		case <-callCtx.Done():
			return w.abort(ctx, term, callCtx.Err())
		case u := <-w.listener.Utterances():
			done, err := w.turn(callCtx, u)
			if err != nil {
				return w.abort(ctx, term, err)
			}
			if done {
				return w.finish(ctx, term)
			}
		}
	}
}

// turn runs extract, merge, compose and dispatch for one utterance and
// reports whether the call reached DONE.
func (w *CallWorker) turn(ctx context.Context, u model.Utterance) (bool, error) {
	callID := w.session.ID()
	outcome := w.svc.extractor.Extract(ctx, callID, u, w.machine.Record())
	if ctx.Err() != nil {
		// call ended while the oracle was working; the result is stale
		return false, ctx.Err()
	}
	if outcome.Failed {
		w.log.Warn().Err(outcome.Err).Uint64("seq", u.Seq).Msg("Extraction failed")
	}
	if outcome.UnrecognizedPurpose != "" {
		w.log.Warn().Uint64("seq", u.Seq).Str("purpose_type", outcome.UnrecognizedPurpose).Msg("Purpose not in taxonomy")
	}
	w.record(func(r TranscriptRecorder) error { return r.RecordUtterance(ctx, callID, u.Text) })

	d, err := w.machine.Apply(outcome)
	if err != nil {
		return false, err
	}
	text, err := w.svc.composer.Compose(d)
	if err != nil {
		return false, err
	}

	ev := w.log.Info().Uint64("seq", u.Seq).Str("state", string(d.State)).Int("resolved", len(outcome.Resolved))
	if d.State == StateCollecting {
		ev = ev.Str("field", string(d.Next)).Int("attempt", d.Attempt)
	}
	ev.Msg("Turn processed")

	if !d.Terminal() {
		return false, w.dispatch(ctx, text)
	}

	if d.State == StateEscalating {
		w.log.Warn().Str("reason", d.Reason).Msg("Escalating call to a human")
	}
	if err := w.machine.Finish(); err != nil {
		return false, err
	}
	if err := w.dispatch(ctx, text); err != nil {
		return false, err
	}
	return true, nil
}

// dispatch speaks one instruction and waits for its acknowledgement, so at
// most one instruction is ever in flight.
func (w *CallWorker) dispatch(ctx context.Context, text string) error {
	dctx := ctx
	if w.svc.cfg.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, w.svc.cfg.DispatchTimeout)
		defer cancel()
	}
	if err := w.session.Dispatch(dctx, text); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errx.SessionUnavailable(err)
	}
	w.record(func(r TranscriptRecorder) error { return r.RecordInstruction(ctx, w.session.ID(), text) })
	return nil
}

func (w *CallWorker) record(fn func(TranscriptRecorder) error) {
	if w.svc.recorder == nil {
		return
	}
	if err := fn(w.svc.recorder); err != nil {
		w.log.Warn().Err(err).Msg("Failed to record transcript turn")
	}
}

func (w *CallWorker) result() Result {
	return Result{
		CallID:    w.session.ID(),
		State:     w.machine.State(),
		Outcome:   w.machine.Outcome(),
		Record:    w.machine.Record(),
		Retries:   w.machine.Retries(),
		Turns:     w.machine.Turns(),
		Reason:    w.machine.Reason(),
		StartedAt: w.started,
		EndedAt:   time.Now(),
	}
}

func (w *CallWorker) finish(ctx context.Context, term *CallTerminator) (Result, error) {
	res := w.save(ctx)
	if err := term.Terminate(ctx, w.session); err != nil {
		w.log.Error().Err(err).Msg("Failed to release session")
	}
	w.log.Info().
		Str("state", string(res.State)).
		Str("action", string(res.Record.Action)).
		Int("turns", res.Turns).
		Msg("Call finished")
	return res, nil
}

func (w *CallWorker) abort(ctx context.Context, term *CallTerminator, cause error) (Result, error) {
	res := w.save(ctx)
	if err := term.Terminate(ctx, w.session); err != nil {
		w.log.Error().Err(err).Msg("Failed to release session")
	}
	if errors.Is(cause, context.Canceled) {
		w.log.Info().Int("turns", res.Turns).Msg("Call ended before intake finished")
	} else {
		w.log.Error().Err(cause).Int("turns", res.Turns).Msg("Call aborted")
	}
	return res, cause
}

// save hands a frozen record to the sink. Records that never froze are dropped.
func (w *CallWorker) save(ctx context.Context) Result {
	res := w.result()
	if w.svc.sink == nil || res.Outcome == StateCollecting {
		return res
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.svc.sink.Save(sctx, res); err != nil {
		w.log.Error().Err(err).Msg("Failed to archive intake record")
	}
	return res
}
