package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
	"github.com/call-intake-poc-v1/server/internal/agent/taxonomy"
)

//go:embed template/extraction_prompt.txt
var extractionSystemPrompt string

type category struct {
	Key         string
	Description string
}

// RenderExtractionSystem renders the extraction system prompt via the Eino
// prompt component so prompt callbacks fire.
func RenderExtractionSystem(ctx context.Context, cfg model.PromptConfig, tax *taxonomy.Taxonomy) (string, error) {
	if tax == nil {
		return "", fmt.Errorf("taxonomy is nil")
	}

	categories := make([]category, 0, tax.Len())
	for _, key := range tax.Keys() {
		desc, _ := tax.Description(key)
		categories = append(categories, category{Key: key, Description: desc})
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(extractionSystemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"OfficeName": cfg.OfficeName,
		"Categories": categories,
	})
	if err != nil {
		return "", fmt.Errorf("extraction prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("extraction prompt render: empty result")
	}
	return msgs[0].Content, nil
}
