package intake

import (
	"fmt"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
)

// DialogStateMachine owns one call's CallerRecord and RetryState. It is not
// safe for concurrent use; the call worker is its only caller.
type DialogStateMachine struct {
	state   State
	record  model.CallerRecord
	retries *model.RetryState
	turns   int
	reason  string
}

func NewDialogStateMachine(maxAttempts int) *DialogStateMachine {
	return &DialogStateMachine{
		state:   StateCollecting,
		record:  model.NewCallerRecord(),
		retries: model.NewRetryState(maxAttempts),
	}
}

func (m *DialogStateMachine) State() State {
	return m.state
}

// Record returns a copy of the current record.
func (m *DialogStateMachine) Record() model.CallerRecord {
	return m.record
}

func (m *DialogStateMachine) Retries() map[model.Field]int {
	return m.retries.Snapshot()
}

func (m *DialogStateMachine) Turns() int {
	return m.turns
}

// Apply folds one extraction outcome into the record and decides the next step.
func (m *DialogStateMachine) Apply(o Outcome) (Decision, error) {
	if m.state != StateCollecting {
		return Decision{}, fmt.Errorf("%w: state %s", ErrCallFinished, m.state)
	}
	m.turns++

	resolvedAny := false
	if !o.Failed {
		for f, v := range o.Resolved {
			if v == "" || v == model.Unknown || f == model.FieldAction {
				continue
			}
			m.record.Set(f, v)
			resolvedAny = true
		}
	}

	// required fields are evaluated after the merge, so slots that depend on
	// a freshly resolved identity are counted in the same turn
	var exhausted []model.Field
	for _, f := range m.record.Missing() {
		m.retries.Fail(f)
		if m.retries.Exhausted(f) {
			exhausted = append(exhausted, f)
		}
	}

	switch {
	case len(exhausted) > 0:
		m.freeze(StateEscalating, model.ActionTransferToHuman,
			fmt.Sprintf("retries exhausted for %s", exhausted[0]))
	case o.Farewell && !resolvedAny && !m.record.Complete():
		m.freeze(StateEscalating, model.ActionTransferToHuman, "caller said goodbye before intake finished")
	case m.record.Complete():
		m.freeze(StateConfirming, model.ActionComplete, "")
	}

	d := Decision{State: m.state, Record: m.record, Reason: m.reason}
	if m.state == StateCollecting {
		missing := m.record.Missing()
		d.Next = missing[0]
		d.Attempt = m.retries.Count(d.Next)
	}
	return d, nil
}

// Finish moves a frozen dialog to DONE once its closing message is composed.
func (m *DialogStateMachine) Finish() error {
	switch m.state {
	case StateConfirming, StateEscalating:
		m.state = StateDone
		return nil
	case StateDone:
		return nil
	}
	return fmt.Errorf("cannot finish call in state %s", m.state)
}

// Outcome returns the terminal state the record was frozen in, if any.
func (m *DialogStateMachine) Outcome() State {
	switch m.record.Action {
	case model.ActionComplete:
		return StateConfirming
	case model.ActionTransferToHuman:
		return StateEscalating
	}
	return StateCollecting
}

func (m *DialogStateMachine) Reason() string {
	return m.reason
}

func (m *DialogStateMachine) freeze(s State, a model.Action, reason string) {
	m.state = s
	m.record.Action = a
	m.reason = reason
}
