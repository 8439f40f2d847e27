package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
	"github.com/call-intake-poc-v1/server/internal/agent/taxonomy"
)

func TestRenderExtractionSystemListsCategories(t *testing.T) {
	tax, err := taxonomy.New(map[string]string{
		"technical_support": "IT desk",
		"pricing_inquiry":   "Partnerships",
	})
	if err != nil {
		t.Fatalf("taxonomy.New() error = %v", err)
	}

	out, err := RenderExtractionSystem(context.Background(), model.PromptConfig{OfficeName: "NBS UPO office"}, tax)
	if err != nil {
		t.Fatalf("RenderExtractionSystem() error = %v", err)
	}
	for _, want := range []string{"NBS UPO office", "- technical_support: IT desk", "- pricing_inquiry: Partnerships"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered prompt missing %q:\n%s", want, out)
		}
	}
}

func TestFewShotMessagesHideForeignCategories(t *testing.T) {
	msgs, err := FewShotMessages(func(key string) bool { return key == "technical_support" })
	if err != nil {
		t.Fatalf("FewShotMessages() error = %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if !strings.Contains(msgs[1].Content, `"purpose_type":"technical_support"`) {
		t.Fatalf("first example lost its category: %s", msgs[1].Content)
	}
	if !strings.Contains(msgs[3].Content, `"purpose_type":"unknown"`) {
		t.Fatalf("second example leaked a foreign category: %s", msgs[3].Content)
	}
}
