package taxonomy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// Taxonomy is the closed set of purpose categories. It is immutable after
// construction and safe for concurrent use.
type Taxonomy struct {
	entries map[string]string
	keys    []string
}

// New builds a Taxonomy from key → description pairs. Keys are trimmed;
// blank keys are rejected.
func New(entries map[string]string) (*Taxonomy, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("taxonomy is empty")
	}
	t := &Taxonomy{entries: make(map[string]string, len(entries))}
	for k, desc := range entries {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, fmt.Errorf("taxonomy contains a blank key")
		}
		if _, dup := t.entries[key]; dup {
			return nil, fmt.Errorf("taxonomy key %q is duplicated", key)
		}
		t.entries[key] = strings.TrimSpace(desc)
		t.keys = append(t.keys, key)
	}
	sort.Strings(t.keys)
	return t, nil
}

// Parse decodes a JSON object of the form {"key": "description"}.
func Parse(data []byte) (*Taxonomy, error) {
	var entries map[string]string
	if err := sonic.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode taxonomy: %w", err)
	}
	return New(entries)
}

// Load reads and parses the taxonomy file at path.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy %s: %w", path, err)
	}
	return Parse(data)
}

func (t *Taxonomy) Has(key string) bool {
	_, ok := t.entries[key]
	return ok
}

// Keys returns the category keys in sorted order.
func (t *Taxonomy) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Description returns the department description for key.
func (t *Taxonomy) Description(key string) (string, bool) {
	desc, ok := t.entries[key]
	return desc, ok
}

func (t *Taxonomy) Len() int {
	return len(t.keys)
}
