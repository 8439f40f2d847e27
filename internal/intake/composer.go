package intake

import (
	"fmt"
	"strings"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
)

const (
	forwardingNotice  = "Your information will be forwarded to the relevant department."
	permissionNotice  = "I'm sorry, I don't have permission to help directly; I will record and forward this to the relevant department."
	closingAck        = "Thank you, I've recorded your information. Goodbye."
	transferNotice    = "I'm transferring you to a human agent now."
	defaultOfficeName = "NBS UPO office"
)

type fieldPrompt struct {
	label     string
	ask       string
	spellable bool
}

var fieldPrompts = map[model.Field]fieldPrompt{
	model.FieldName:         {label: "name", ask: "May I have your name, please?", spellable: true},
	model.FieldIdentity:     {label: "whether you are a student or calling from a company", ask: "Are you a student, or are you calling from a company?"},
	model.FieldStudentID:    {label: "student ID", ask: "What is your student ID?"},
	model.FieldCompanyName:  {label: "company name", ask: "Which company are you calling from?", spellable: true},
	model.FieldCompanyPhone: {label: "company phone number", ask: "What is your company's phone number?"},
	model.FieldEmail:        {label: "email address", ask: "What is your email address?", spellable: true},
	model.FieldPurposeText:  {label: "reason for calling", ask: "How can we help you today? What is the reason for your call?"},
}

// ResponseComposer turns decisions into the single instruction spoken next.
type ResponseComposer struct {
	office string
}

func NewResponseComposer(cfg model.PromptConfig) *ResponseComposer {
	office := strings.TrimSpace(cfg.OfficeName)
	if office == "" {
		office = defaultOfficeName
	}
	return &ResponseComposer{office: office}
}

// Greeting is spoken once when the call is answered.
func (c *ResponseComposer) Greeting() string {
	return fmt.Sprintf("this is %s, how may i help you", strings.ToLower(c.office))
}

// Compose returns exactly one instruction for d.
func (c *ResponseComposer) Compose(d Decision) (string, error) {
	switch d.State {
	case StateCollecting:
		return c.clarify(d.Next, d.Attempt)
	case StateConfirming:
		return forwardingNotice + " " + closingAck, nil
	case StateEscalating:
		return permissionNotice + " " + transferNotice, nil
	}
	return "", fmt.Errorf("no instruction for state %s", d.State)
}

// clarify escalates the wording as attempts accumulate: a plain question
// first, then an apology with a request to spell or repeat.
func (c *ResponseComposer) clarify(f model.Field, attempt int) (string, error) {
	p, ok := fieldPrompts[f]
	if !ok {
		return "", fmt.Errorf("no prompt for field %s", f)
	}
	switch {
	case attempt <= 1:
		return p.ask, nil
	case p.spellable:
		return fmt.Sprintf("Sorry, I didn't catch that. Can you spell your %s?", p.label), nil
	default:
		return fmt.Sprintf("Sorry, I didn't catch that. Could you tell me your %s again?", p.label), nil
	}
}
