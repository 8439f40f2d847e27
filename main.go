package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/call-intake-poc-v1/server/internal/agent/graph"
	"github.com/call-intake-poc-v1/server/internal/agent/graph/conversations"
	"github.com/call-intake-poc-v1/server/internal/agent/graph/nodes"
	"github.com/call-intake-poc-v1/server/internal/agent/model"
	"github.com/call-intake-poc-v1/server/internal/agent/repo"
	"github.com/call-intake-poc-v1/server/internal/agent/taxonomy"
	"github.com/call-intake-poc-v1/server/internal/archive"
	"github.com/call-intake-poc-v1/server/internal/core"
	"github.com/call-intake-poc-v1/server/internal/intake"
	"github.com/call-intake-poc-v1/server/internal/telephony"
	logx "github.com/call-intake-poc-v1/server/pkg/logger"
	pkgredis "github.com/call-intake-poc-v1/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the intake service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis   pkgredis.Config
	Archive archive.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	TaxonomyPath string `envconfig:"TAXONOMY_PATH" default:"mapping.json"`

	Extraction model.ExtractionModelConfig
	Intake     model.IntakeConfig
	Prompt     model.PromptConfig
	Call       model.CallConfig
	Telephony  telephony.Config
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		logx.Warn().Err(err).Msg("Could not load .env file")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Service: "call-intake"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise Redis client")
	}
	defer rdb.Close()

	tax, err := taxonomy.Load(cfg.TaxonomyPath)
	if err != nil {
		logx.Fatal().Err(err).Str("path", cfg.TaxonomyPath).Msg("Failed to load purpose taxonomy")
	}
	logx.Info().Int("categories", tax.Len()).Msg("Purpose taxonomy loaded")

	client, err := nodes.NewGenAIClient(ctx, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	chatModel, err := nodes.NewExtractionChatModel(ctx, client, &cfg.Extraction)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create extraction model")
	}

	transcripts := conversations.NewTranscriptManager(
		repo.NewRedisTranscriptRepository(rdb, cfg.Call.TranscriptTTL),
		cfg.Call,
	)

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

	store, err := archive.NewGormStore(cfg.Archive, tax)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to open intake archive")
	}
	defer store.Close()

	svc, err := intake.NewService(intake.Deps{
		Oracle:         oracle,
		Taxonomy:       tax,
		Intake:         cfg.Intake,
		Prompt:         cfg.Prompt,
		ExtractTimeout: cfg.Extraction.Timeout,
		Recorder:       transcripts,
		Sink:           store,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create intake service")
	}

	calls := telephony.NewManager(ctx, cfg.Telephony, svc, client, cfg.Prompt, rdb)
	server := telephony.NewServer(cfg.Telephony, calls, store)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logx.Info().Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			logx.Error().Err(err).Msg("Telephony server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	if err := calls.Shutdown(shutdownCtx); err != nil {
		logx.Warn().Err(err).Msg("Active calls did not finish in time")
	}
}
