package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/call-intake-poc-v1/server/internal/agent/graph/conversations"
	"github.com/call-intake-poc-v1/server/internal/agent/graph/nodes"
	"github.com/call-intake-poc-v1/server/internal/agent/graph/observers"
	agentmodel "github.com/call-intake-poc-v1/server/internal/agent/model"
	"github.com/call-intake-poc-v1/server/internal/agent/taxonomy"
	logx "github.com/call-intake-poc-v1/server/pkg/logger"
)

const maxRunSteps = 10

// Config holds everything needed to compose the extraction graph.
type Config struct {
	ChatModel   model.BaseChatModel
	ModelName   string
	Transcripts *conversations.TranscriptManager
	Prompt      agentmodel.PromptConfig
	Taxonomy    *taxonomy.Taxonomy
}

// GraphBuilder handles the construction of the extraction graph
type GraphBuilder struct {
	config *Config
	graph  *compose.Graph[agentmodel.ExtractionInput, *schema.Message]
}

// ExtractionRunner executes the compiled graph and returns the raw oracle reply.
type ExtractionRunner struct {
	runnable compose.Runnable[agentmodel.ExtractionInput, *schema.Message]
}

// Extract runs one extraction turn. The returned text is the unparsed model output.
func (r *ExtractionRunner) Extract(ctx context.Context, in agentmodel.ExtractionInput) (string, error) {
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return "", err
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", fmt.Errorf("extraction model returned an empty reply")
	}
	return out.Content, nil
}

// BuildExtractionGraph validates cfg, builds the graph and returns a runner.
func BuildExtractionGraph(ctx context.Context, cfg Config) (*ExtractionRunner, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	if cfg.Taxonomy == nil {
		return nil, fmt.Errorf("taxonomy is nil")
	}

	builder := &GraphBuilder{
		config: &cfg,
		graph: compose.NewGraph[agentmodel.ExtractionInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *agentmodel.ExtractionState {
				return &agentmodel.ExtractionState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}

	runnable, err := builder.compile(ctx)
	if err != nil {
		return nil, err
	}
	logx.Debug().Msg("Extraction graph built successfully")
	return &ExtractionRunner{runnable: runnable}, nil
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	if err := b.graph.AddLambdaNode(nodes.NodeInputConverter,
		nodes.NewInputConverterNode(b.config.Transcripts, b.config.Prompt, b.config.Taxonomy),
		compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
	); err != nil {
		return fmt.Errorf("error adding input converter: %w", err)
	}

	if err := b.graph.AddChatModelNode(nodes.NodeExtractionChatModel,
		b.config.ChatModel,
		compose.WithStatePostHandler(nodes.NewExtractionChatModelPostHandler(b.config.ModelName)),
	); err != nil {
		return fmt.Errorf("error adding extraction chat model: %w", err)
	}
	return nil
}

// addEdges creates the flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeExtractionChatModel},
		{nodes.NodeExtractionChatModel, compose.END},
	}
	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[agentmodel.ExtractionInput, *schema.Message], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxRunSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}
	return runnable, nil
}
