package graph

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/call-intake-poc-v1/server/internal/agent/graph/conversations"
	agentmodel "github.com/call-intake-poc-v1/server/internal/agent/model"
	"github.com/call-intake-poc-v1/server/internal/agent/repo"
	"github.com/call-intake-poc-v1/server/internal/agent/taxonomy"
)

type fakeChatModel struct {
	mu    sync.Mutex
	reply string
	seen  [][]*schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.seen = append(m.seen, input)
	m.mu.Unlock()
	out := schema.AssistantMessage(m.reply, nil)
	out.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120}}
	return out, nil
}

func (m *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func newTestTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.New(map[string]string{"technical_support": "IT desk", "pricing_inquiry": "Partnerships"})
	if err != nil {
		t.Fatalf("taxonomy.New() error = %v", err)
	}
	return tax
}

func TestExtractionRunnerSendsPromptExamplesAndContext(t *testing.T) {
	ctx := context.Background()
	cm := &fakeChatModel{reply: `{"name":"Zhang Wei"}`}
	tm := conversations.NewTranscriptManager(repo.NewMemoryTranscriptRepository(), agentmodel.CallConfig{HistoryTurns: 4})
	if err := tm.RecordInstruction(ctx, "call-1", "this is nbs upo office, how may i help you"); err != nil {
		t.Fatalf("RecordInstruction() error = %v", err)
	}

	runner, err := BuildExtractionGraph(ctx, Config{
		ChatModel:   cm,
		ModelName:   "gemini-2.5-flash",
		Transcripts: tm,
		Prompt:      agentmodel.PromptConfig{OfficeName: "NBS UPO office"},
		Taxonomy:    newTestTaxonomy(t),
	})
	if err != nil {
		t.Fatalf("BuildExtractionGraph() error = %v", err)
	}

	rec := agentmodel.NewCallerRecord()
	rec.Name = "Zhang Wei"
	out, err := runner.Extract(ctx, agentmodel.ExtractionInput{CallID: "call-1", Seq: 1, Utterance: "I'm a student", Record: rec})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out != cm.reply {
		t.Fatalf("Extract() = %q, want %q", out, cm.reply)
	}

	if len(cm.seen) != 1 {
		t.Fatalf("model called %d times, want 1", len(cm.seen))
	}
	msgs := cm.seen[0]
	// system + two worked examples + the live request
	if len(msgs) != 6 {
		t.Fatalf("got %d messages, want 6", len(msgs))
	}
	if msgs[0].Role != schema.System || !strings.Contains(msgs[0].Content, "technical_support") {
		t.Fatalf("system prompt missing taxonomy: %q", msgs[0].Content)
	}
	last := msgs[len(msgs)-1].Content
	for _, want := range []string{
		"Assistant: this is nbs upo office, how may i help you",
		`"name":"Zhang Wei"`,
		"Transcript:\n\"I'm a student\"",
	} {
		if !strings.Contains(last, want) {
			t.Fatalf("request missing %q:\n%s", want, last)
		}
	}
}

func TestExtractionRunnerRejectsEmptyReply(t *testing.T) {
	ctx := context.Background()
	runner, err := BuildExtractionGraph(ctx, Config{
		ChatModel: &fakeChatModel{reply: "  "},
		Taxonomy:  newTestTaxonomy(t),
	})
	if err != nil {
		t.Fatalf("BuildExtractionGraph() error = %v", err)
	}
	if _, err := runner.Extract(ctx, agentmodel.ExtractionInput{CallID: "c", Record: agentmodel.NewCallerRecord()}); err == nil {
		t.Fatal("expected error for empty reply")
	}
}

func TestBuildExtractionGraphValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := BuildExtractionGraph(ctx, Config{Taxonomy: newTestTaxonomy(t)}); err == nil {
		t.Fatal("expected error without chat model")
	}
	if _, err := BuildExtractionGraph(ctx, Config{ChatModel: &fakeChatModel{}}); err == nil {
		t.Fatal("expected error without taxonomy")
	}
}
