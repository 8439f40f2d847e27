package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
	logx "github.com/call-intake-poc-v1/server/pkg/logger"
)

// NewGenAIClient creates the Gemini API client shared by the extraction model
// and the live voice sessions.
func NewGenAIClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// NewExtractionChatModel creates the chat model used for slot extraction.
func NewExtractionChatModel(ctx context.Context, client *genai.Client, cfg *model.ExtractionModelConfig) (*gemini.ChatModel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("extraction model config is nil")
	}
	gcfg := &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		MaxTokens:   &cfg.MaxTokens,
	}
	if cfg.Thinking > 0 {
		gcfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(cfg.Thinking),
		}
	}
	chatModel, err := gemini.NewChatModel(ctx, gcfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating extraction model")
		return nil, fmt.Errorf("error creating extraction model: %w", err)
	}
	return chatModel, nil
}
