package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/call-intake-poc-v1/server/internal/agent/graph"
	"github.com/call-intake-poc-v1/server/internal/agent/graph/conversations"
	"github.com/call-intake-poc-v1/server/internal/agent/graph/nodes"
	"github.com/call-intake-poc-v1/server/internal/agent/model"
	"github.com/call-intake-poc-v1/server/internal/agent/repo"
	"github.com/call-intake-poc-v1/server/internal/agent/taxonomy"
	errx "github.com/call-intake-poc-v1/server/internal/core/error"
	"github.com/call-intake-poc-v1/server/internal/intake"
	logx "github.com/call-intake-poc-v1/server/pkg/logger"
)

// DemoConfig is the subset of the service configuration the demo needs.
type DemoConfig struct {
	APIKey       string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL      string `envconfig:"GEMINI_BASE_URL"`
	TaxonomyPath string `envconfig:"TAXONOMY_PATH" default:"mapping.json"`

	Extraction model.ExtractionModelConfig
	Intake     model.IntakeConfig
	Prompt     model.PromptConfig
	Call       model.CallConfig
}

var defaultScript = []string{
	"Hello, my name is Zhang Wei.",
	"I'm a student here, my student ID is 2023 0001.",
	"My email is zhangwei@example.com.",
	"I can't log in to the student portal, I need my password reset.",
}

// consoleSession prints instructions instead of speaking them.
type consoleSession struct {
	id      string
	spoken  chan struct{}
	deleted atomic.Bool
}

func (s *consoleSession) ID() string { return s.id }

func (s *consoleSession) Dispatch(ctx context.Context, instruction string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fmt.Printf("Assistant: %s\n", instruction)
	select {
	case s.spoken <- struct{}{}:
	default:
	}
	return nil
}

func (s *consoleSession) Delete(context.Context) error {
	if s.deleted.Swap(true) {
		return errx.ErrSessionNotFound
	}
	fmt.Println("[call released]")
	return nil
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		logx.Warn().Err(err).Msg("Could not load .env file")
	}
	logx.Init()

	var cfg DemoConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}

	script := defaultScript
	if len(os.Args) > 1 {
		script = os.Args[1:]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	tax, err := taxonomy.Load(cfg.TaxonomyPath)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to load purpose taxonomy")
	}
	client, err := nodes.NewGenAIClient(ctx, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	chatModel, err := nodes.NewExtractionChatModel(ctx, client, &cfg.Extraction)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create extraction model")
	}

	transcripts := conversations.NewTranscriptManager(repo.NewMemoryTranscriptRepository(), cfg.Call)
	oracle, err := graph.BuildExtractionGraph(ctx, graph.Config{
		ChatModel:   chatModel,
		ModelName:   cfg.Extraction.Model,
		Transcripts: transcripts,
		Prompt:      cfg.Prompt,
		Taxonomy:    tax,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build extraction graph")
	}

	svc, err := intake.NewService(intake.Deps{
		Oracle:         oracle,
		Taxonomy:       tax,
		Intake:         cfg.Intake,
		Prompt:         cfg.Prompt,
		ExtractTimeout: cfg.Extraction.Timeout,
		Recorder:       transcripts,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create intake service")
	}

	session := &consoleSession{id: fmt.Sprintf("demo-%d", time.Now().Unix()), spoken: make(chan struct{}, 1)}
	worker := svc.NewCall(session)

	type runResult struct {
		res intake.Result
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		res, err := worker.Run(ctx)
		done <- runResult{res, err}
	}()

	// one utterance per instruction, like a caller waiting for the question
	go func() {
		for i, text := range script {
			select {
			case <-session.spoken:
			case <-ctx.Done():
				return
			}
			fmt.Printf("Caller:    %s\n", text)
			if !worker.Listener().Accept(ctx, intake.TranscriptEvent{Text: text, Seq: uint64(i + 1), Final: true}) {
				return
			}
		}
	}()

	var out runResult
	select {
	case out = <-done:
	case <-time.After(time.Duration(len(script)+1) * (cfg.Extraction.Timeout + 2*time.Second)):
		// the script ran out before the record froze; hang up
		cancel()
		out = <-done
	}
	if out.err != nil {
		logx.Warn().Err(out.err).Msg("Intake did not finish")
	}

	b, err := sonic.ConfigStd.MarshalIndent(out.res, "", "  ")
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to encode result")
	}
	fmt.Println(string(b))
}
