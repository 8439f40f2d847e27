package parsers

import (
	"strings"
	"testing"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
)

const zhangWei = `{"name":"Zhang Wei","identity":"student","student_id":"20230001",` +
	`"company_name":"unknown","company_phone":"unknown","email":"zhangwei@example.com",` +
	`"purpose_type":"technical_support","purpose_text":"reset password","action":"complete"}`

func TestParseCallerFieldsPlainJSON(t *testing.T) {
	fields, err := ParseCallerFields(zhangWei)
	if err != nil {
		t.Fatalf("ParseCallerFields() error = %v", err)
	}
	if got := fields[model.FieldName]; got != "Zhang Wei" {
		t.Fatalf("name = %q", got)
	}
	if got := fields[model.FieldAction]; got != "complete" {
		t.Fatalf("action = %q", got)
	}
	if len(fields) != len(model.AllFields) {
		t.Fatalf("got %d fields, want %d", len(fields), len(model.AllFields))
	}
}

func TestParseCallerFieldsStripsFencesAndProse(t *testing.T) {
	inputs := []string{
		"```json\n" + zhangWei + "\n```",
		"```\n" + zhangWei + "```",
		"Here is the record: " + zhangWei + " hope that helps",
	}
	for _, in := range inputs {
		fields, err := ParseCallerFields(in)
		if err != nil {
			t.Fatalf("ParseCallerFields(%q) error = %v", in, err)
		}
		if fields[model.FieldEmail] != "zhangwei@example.com" {
			t.Fatalf("email = %q", fields[model.FieldEmail])
		}
	}
}

func TestParseCallerFieldsCoercesScalars(t *testing.T) {
	in := `{"name":"  Ann ","identity":"student","student_id":20230001,"company_name":null,` +
		`"company_phone":"unknown","email":"unknown","purpose_type":"unknown","purpose_text":"unknown","action":"in_progress"}`
	fields, err := ParseCallerFields(in)
	if err != nil {
		t.Fatalf("ParseCallerFields() error = %v", err)
	}
	if fields[model.FieldName] != "Ann" {
		t.Fatalf("name = %q", fields[model.FieldName])
	}
	if fields[model.FieldStudentID] != "20230001" {
		t.Fatalf("student_id = %q", fields[model.FieldStudentID])
	}
	if fields[model.FieldCompanyName] != model.Unknown {
		t.Fatalf("company_name = %q", fields[model.FieldCompanyName])
	}
}

func TestParseCallerFieldsRejects(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"prose only":   "Can you please spell your name for me?",
		"truncated":    `{"name":"Zhang Wei","identity":"stu`,
		"missing keys": `{"name":"Zhang Wei","identity":"student"}`,
		"bool value":   strings.Replace(zhangWei, `"student_id":"20230001"`, `"student_id":true`, 1),
		"object value": strings.Replace(zhangWei, `"name":"Zhang Wei"`, `"name":{"first":"Zhang"}`, 1),
		"too large":    `{"name":"` + strings.Repeat("a", maxContentLen) + `"}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseCallerFields(in); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}
