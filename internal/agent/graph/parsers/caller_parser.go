package parsers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
	errx "github.com/call-intake-poc-v1/server/internal/core/error"
	logx "github.com/call-intake-poc-v1/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 16 * 1024 // 16KB
	maxValueLen   = 1024      // per field
	maxErrSnippet = 200       // limit error snippet size
)

// ParseCallerFields decodes the oracle reply into one raw value per
// CallerRecord key. All nine keys must be present. Values are returned
// trimmed but otherwise unvalidated; JSON null becomes model.Unknown.
func ParseCallerFields(content string) (fields map[model.Field]string, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "caller_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("caller parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			fields = nil
		}
	}()

	if len(content) > maxContentLen {
		return nil, fmt.Errorf("oracle reply too large: %d bytes", len(content))
	}
	if !utf8.ValidString(content) {
		return nil, fmt.Errorf("oracle reply is not valid utf8")
	}

	body := extractJSONObject(content)
	if body == "" {
		return nil, fmt.Errorf("no json object in oracle reply: %q", safeSnippet(content))
	}

	var raw map[string]any
	if err := sonic.UnmarshalString(body, &raw); err != nil {
		return nil, fmt.Errorf("malformed oracle json: %w", err)
	}

	fields = make(map[model.Field]string, len(model.AllFields))
	var missing []string
	for _, f := range model.AllFields {
		v, ok := raw[string(f)]
		if !ok {
			missing = append(missing, string(f))
			continue
		}
		s, err := stringify(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f, err)
		}
		fields[f] = s
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("oracle json missing keys: %s", strings.Join(missing, ", "))
	}
	return fields, nil
}

// extractJSONObject strips markdown fences and surrounding prose, returning
// the outermost {...} span.
func extractJSONObject(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func stringify(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return model.Unknown, nil
	case string:
		s := strings.TrimSpace(t)
		if len(s) > maxValueLen {
			return "", fmt.Errorf("value too long")
		}
		return s, nil
	case float64:
		// student ids are sometimes emitted as numbers
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return "", fmt.Errorf("unexpected boolean")
	default:
		return "", fmt.Errorf("unexpected %T", v)
	}
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
