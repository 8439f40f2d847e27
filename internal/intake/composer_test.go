package intake

import (
	"strings"
	"testing"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
)

func TestComposerGreeting(t *testing.T) {
	c := NewResponseComposer(model.PromptConfig{OfficeName: "NBS UPO office"})
	if got, want := c.Greeting(), "this is nbs upo office, how may i help you"; got != want {
		t.Fatalf("Greeting() = %q, want %q", got, want)
	}
	if got := NewResponseComposer(model.PromptConfig{}).Greeting(); !strings.Contains(got, "nbs upo office") {
		t.Fatalf("default greeting = %q", got)
	}
}

func TestComposerClarificationEscalatesWithAttempts(t *testing.T) {
	c := NewResponseComposer(model.PromptConfig{})
	cases := []struct {
		field   model.Field
		attempt int
		want    string
	}{
		{model.FieldName, 1, "May I have your name, please?"},
		{model.FieldName, 2, "Sorry, I didn't catch that. Can you spell your name?"},
		{model.FieldEmail, 2, "Sorry, I didn't catch that. Can you spell your email address?"},
		{model.FieldStudentID, 2, "Sorry, I didn't catch that. Could you tell me your student ID again?"},
	}
	for _, tc := range cases {
		got, err := c.Compose(Decision{State: StateCollecting, Next: tc.field, Attempt: tc.attempt})
		if err != nil {
			t.Fatalf("Compose(%s, %d) error = %v", tc.field, tc.attempt, err)
		}
		if got != tc.want {
			t.Fatalf("Compose(%s, %d) = %q, want %q", tc.field, tc.attempt, got, tc.want)
		}
	}
}

func TestComposerTerminalMessages(t *testing.T) {
	c := NewResponseComposer(model.PromptConfig{})

	confirm, err := c.Compose(Decision{State: StateConfirming})
	if err != nil || !strings.Contains(confirm, "forwarded to the relevant department") {
		t.Fatalf("confirming = %q, %v", confirm, err)
	}
	escalate, err := c.Compose(Decision{State: StateEscalating})
	if err != nil || !strings.Contains(escalate, "don't have permission") || !strings.Contains(escalate, "human agent") {
		t.Fatalf("escalating = %q, %v", escalate, err)
	}
	if _, err := c.Compose(Decision{State: StateDone}); err == nil {
		t.Fatal("Compose(DONE) should fail")
	}
}
