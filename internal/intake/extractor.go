package intake

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/call-intake-poc-v1/server/internal/agent/graph/parsers"
	"github.com/call-intake-poc-v1/server/internal/agent/model"
	"github.com/call-intake-poc-v1/server/internal/agent/taxonomy"
	errx "github.com/call-intake-poc-v1/server/internal/core/error"
)

const defaultExtractTimeout = 8 * time.Second

// SlotExtractor asks the oracle for field values and keeps only the ones
// that survive validation.
type SlotExtractor struct {
	oracle  Oracle
	tax     *taxonomy.Taxonomy
	timeout time.Duration
}

func NewSlotExtractor(oracle Oracle, tax *taxonomy.Taxonomy, timeout time.Duration) *SlotExtractor {
	if timeout <= 0 {
		timeout = defaultExtractTimeout
	}
	return &SlotExtractor{oracle: oracle, tax: tax, timeout: timeout}
}

// Extract never returns an error: oracle failures, timeouts and unusable
// replies all come back as a failed Outcome.
func (e *SlotExtractor) Extract(ctx context.Context, callID string, u model.Utterance, partial model.CallerRecord) Outcome {
	out := Outcome{Farewell: isFarewell(u.Text)}

	octx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.call(octx, model.ExtractionInput{
		CallID:    callID,
		Seq:       u.Seq,
		Utterance: u.Text,
		Record:    partial,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("oracle timed out after %s: %w", e.timeout, err)
		}
		return failed(out, err)
	}

	fields, err := parsers.ParseCallerFields(raw)
	if err != nil {
		return failed(out, err)
	}

	identity := partial.Identity
	if v, ok := normalizeIdentity(fields[model.FieldIdentity]); ok {
		identity = v
	}

	out.SuggestedAction = model.ParseAction(fields[model.FieldAction])
	out.Resolved = make(map[model.Field]string)
	for _, f := range model.AllFields {
		if f == model.FieldAction || !model.Applies(f, identity) {
			continue
		}
		v, ok := e.normalize(f, fields[f])
		if !ok {
			if f == model.FieldPurposeType && !isPlaceholder(fields[f]) {
				out.UnrecognizedPurpose = fields[f]
			}
			continue
		}
		if v == partial.Get(f) {
			continue
		}
		out.Resolved[f] = v
	}
	return out
}

type oracleReply struct {
	raw string
	err error
}

// call runs the oracle on its own goroutine. An oracle that ignores ctx is
// abandoned when ctx ends and its late reply is dropped.
func (e *SlotExtractor) call(ctx context.Context, in model.ExtractionInput) (string, error) {
	ch := make(chan oracleReply, 1)
	go func() {
		raw, err := e.oracle.Extract(ctx, in)
		ch <- oracleReply{raw: raw, err: err}
	}()

	select {
	case r := <-ch:
		if r.err == nil && ctx.Err() != nil {
			// reply arrived after the deadline
			return "", ctx.Err()
		}
		return r.raw, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func failed(out Outcome, err error) Outcome {
	out.Failed = true
	out.Err = fmt.Errorf("%w: %w", errx.ErrExtractionFailed, err)
	out.Resolved = nil
	return out
}

func (e *SlotExtractor) normalize(f model.Field, raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if isPlaceholder(v) {
		return "", false
	}
	switch f {
	case model.FieldName:
		return normalizeName(v)
	case model.FieldIdentity:
		id, ok := normalizeIdentity(v)
		return string(id), ok
	case model.FieldStudentID:
		return normalizeStudentID(v)
	case model.FieldCompanyName:
		return collapseSpaces(v), true
	case model.FieldCompanyPhone:
		return normalizePhone(v)
	case model.FieldEmail:
		return normalizeEmail(v)
	case model.FieldPurposeType:
		key := strings.ReplaceAll(strings.ToLower(v), " ", "_")
		if e.tax == nil || !e.tax.Has(key) {
			return "", false
		}
		return key, true
	case model.FieldPurposeText:
		return collapseSpaces(v), true
	}
	return "", false
}

var placeholders = map[string]struct{}{
	"":             {},
	model.Unknown:  {},
	"none":         {},
	"null":         {},
	"n/a":          {},
	"na":           {},
	"-":            {},
	"not provided": {},
	"not given":    {},
}

func isPlaceholder(v string) bool {
	_, ok := placeholders[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

var identityAliases = map[string]model.Identity{
	"student":          model.IdentityStudent,
	"students":         model.IdentityStudent,
	"学生":               model.IdentityStudent,
	"external_company": model.IdentityExternalCompany,
	"external company": model.IdentityExternalCompany,
	"external":         model.IdentityExternalCompany,
	"company":          model.IdentityExternalCompany,
	"business":         model.IdentityExternalCompany,
	"corporate":        model.IdentityExternalCompany,
}

func normalizeIdentity(v string) (model.Identity, bool) {
	id, ok := identityAliases[strings.ToLower(strings.TrimSpace(v))]
	return id, ok
}

func normalizeName(v string) (string, bool) {
	v = collapseSpaces(v)
	for _, r := range v {
		if unicode.IsDigit(r) || r == '@' {
			return "", false
		}
	}
	return v, v != ""
}

func normalizeStudentID(v string) (string, bool) {
	v = strings.Join(strings.Fields(v), "")
	if v == "" {
		return "", false
	}
	for _, r := range v {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' {
			return "", false
		}
	}
	return v, true
}

func normalizePhone(v string) (string, bool) {
	v = collapseSpaces(v)
	digits := 0
	for _, r := range v {
		switch {
		case unicode.IsDigit(r):
			digits++
		case strings.ContainsRune("+-(). ", r):
		default:
			return "", false
		}
	}
	return v, digits >= 3
}

func normalizeEmail(v string) (string, bool) {
	v = strings.ToLower(strings.Join(strings.Fields(v), ""))
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return "", false
	}
	at := strings.LastIndex(v, "@")
	if at < 1 || !strings.Contains(v[at+1:], ".") {
		return "", false
	}
	return v, true
}

func collapseSpaces(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

var farewellWords = map[string]bool{
	"goodbye": true,
	"bye":     true,
	"再见":      true,
	"拜拜":      true,
}

var fillerWords = map[string]bool{
	"ok": true, "okay": true, "thanks": true, "thank": true, "you": true,
	"good": true, "then": true, "alright": true,
}

// isFarewell reports whether text is only a goodbye, such as "ok, bye!".
func isFarewell(text string) bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	seen := false
	for _, w := range words {
		switch {
		case farewellWords[w]:
			seen = true
		case fillerWords[w]:
		default:
			return false
		}
	}
	return seen
}
