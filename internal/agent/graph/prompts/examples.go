package prompts

import (
	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
)

type fewShot struct {
	transcript string
	record     model.CallerRecord
}

var fewShots = []fewShot{
	{
		transcript: "Hello, I'm Zhang Wei, a student. My student ID is 20230001, " +
			"and I need help resetting my password. My email is zhangwei@example.com.",
		record: model.CallerRecord{
			Name:         "Zhang Wei",
			Identity:     model.IdentityStudent,
			StudentID:    "20230001",
			CompanyName:  model.Unknown,
			CompanyPhone: model.Unknown,
			Email:        "zhangwei@example.com",
			PurposeType:  "technical_support",
			PurposeText:  "reset password",
			Action:       model.ActionComplete,
		},
	},
	{
		transcript: "Hi, I'm from Acme Corp. My email is help@acme.com. I want to inquire about your pricing.",
		record: model.CallerRecord{
			Name:         model.Unknown,
			Identity:     model.IdentityExternalCompany,
			StudentID:    model.Unknown,
			CompanyName:  "Acme Corp",
			CompanyPhone: model.Unknown,
			Email:        "help@acme.com",
			PurposeType:  "pricing_inquiry",
			PurposeText:  "inquire about pricing",
			Action:       model.ActionInProgress,
		},
	},
}

// FewShotMessages returns the worked examples as user/assistant pairs.
// Examples whose purpose_type is not in keys are rendered with
// purpose_type "unknown" so the model never sees a foreign key.
func FewShotMessages(has func(string) bool) ([]*schema.Message, error) {
	msgs := make([]*schema.Message, 0, len(fewShots)*2)
	for _, ex := range fewShots {
		rec := ex.record
		if has != nil && !has(rec.PurposeType) {
			rec.PurposeType = model.Unknown
		}
		out, err := sonic.MarshalString(rec)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs,
			schema.UserMessage(TranscriptBlock(ex.transcript)),
			schema.AssistantMessage(out, nil),
		)
	}
	return msgs, nil
}

// TranscriptBlock formats a caller utterance the way the oracle expects it.
func TranscriptBlock(text string) string {
	return "Transcript:\n\"" + text + "\""
}
