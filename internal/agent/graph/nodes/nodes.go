package nodes

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/call-intake-poc-v1/server/internal/agent/graph/conversations"
	"github.com/call-intake-poc-v1/server/internal/agent/graph/prompts"
	"github.com/call-intake-poc-v1/server/internal/agent/model"
	"github.com/call-intake-poc-v1/server/internal/agent/taxonomy"
	logx "github.com/call-intake-poc-v1/server/pkg/logger"
)

const (
	NodeInputConverter      = "InputConverter"
	NodeExtractionChatModel = "ExtractionChatModel"
)

// NewInputConverterPreHandler seeds the per-invocation state.
func NewInputConverterPreHandler() func(context.Context, model.ExtractionInput, *model.ExtractionState) (model.ExtractionInput, error) {
	return func(ctx context.Context, in model.ExtractionInput, s *model.ExtractionState) (model.ExtractionInput, error) {
		s.CallID = in.CallID
		s.Seq = in.Seq
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewInputConverterNode builds the extraction messages: system prompt,
// worked examples, then the current record, recent call turns and utterance.
func NewInputConverterNode(
	tm *conversations.TranscriptManager,
	promptCfg model.PromptConfig,
	tax *taxonomy.Taxonomy,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.ExtractionInput) ([]*schema.Message, error) {
		systemPrompt, err := prompts.RenderExtractionSystem(ctx, promptCfg, tax)
		if err != nil {
			return nil, fmt.Errorf("render extraction system prompt: %w", err)
		}

		examples, err := prompts.FewShotMessages(tax.Has)
		if err != nil {
			return nil, fmt.Errorf("render few-shot examples: %w", err)
		}

		record, err := sonic.MarshalString(input.Record)
		if err != nil {
			return nil, fmt.Errorf("encode current record: %w", err)
		}

		callCtx := "<call_context>\n</call_context>"
		if tm != nil {
			// history is best effort; a transcript outage must not fail the turn
			if c, err := tm.BuildExtractionContext(ctx, input.CallID); err != nil {
				logx.Warn().Err(err).Str("call_id", input.CallID).Msg("Transcript unavailable, extracting without history")
			} else {
				callCtx = c
			}
		}

		user := callCtx +
			"\n<current_record>\n" + record + "\n</current_record>\n" +
			prompts.TranscriptBlock(input.Utterance) +
			"\n\nPlease follow the system instructions and output the required JSON based on the conversation transcript."

		messages := make([]*schema.Message, 0, len(examples)+2)
		messages = append(messages, schema.SystemMessage(systemPrompt))
		messages = append(messages, examples...)
		messages = append(messages, schema.UserMessage(user))
		return messages, nil
	})
}

// NewExtractionChatModelPostHandler computes and logs usage cost for the extraction model.
func NewExtractionChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.ExtractionState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.ExtractionState) (*schema.Message, error) {
		if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
			return out, nil
		}
		usage := out.ResponseMeta.Usage
		inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		out.Extra["usage_cost"] = map[string]any{
			"currency":          "USD",
			"model":             modelName,
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_cost":        totalC,
		}
		state.TotalCostUSD += totalC

		logx.Debug().
			Str("call_id", state.CallID).
			Uint64("seq", state.Seq).
			Str("node", NodeExtractionChatModel).
			Str("model", modelName).
			Int("prompt_tokens", usage.PromptTokens).
			Int("completion_tokens", usage.CompletionTokens).
			Float64("input_cost_usd", inC).
			Float64("output_cost_usd", outC).
			Float64("total_cost_usd", state.TotalCostUSD).
			Msg("LLM usage")
		return out, nil
	}
}
