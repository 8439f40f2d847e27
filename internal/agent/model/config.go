package model

import "time"

// ================ Config ================
type ExtractionModelConfig struct {
	Model       string        `envconfig:"EXTRACT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int           `envconfig:"EXTRACT_MAX_TOKENS" default:"1024"`
	Temperature float32       `envconfig:"EXTRACT_TEMPERATURE" default:"0.1"`
	Timeout     time.Duration `envconfig:"EXTRACT_TIMEOUT" default:"8s"`
	Thinking    int32         `envconfig:"EXTRACT_THINKING_BUDGET" default:"0"`
}

type IntakeConfig struct {
	MaxAttempts     int           `envconfig:"INTAKE_MAX_ATTEMPTS" default:"3"`
	QueueSize       int           `envconfig:"INTAKE_QUEUE_SIZE" default:"16"`
	DispatchTimeout time.Duration `envconfig:"INTAKE_DISPATCH_TIMEOUT" default:"30s"`
	ReleaseTimeout  time.Duration `envconfig:"INTAKE_RELEASE_TIMEOUT" default:"5s"`
}

type PromptConfig struct {
	OfficeName string `envconfig:"PROMPT_OFFICE_NAME" default:"NBS UPO office"`
	Voice      string `envconfig:"PROMPT_VOICE" default:"Zephyr"`
}

type CallConfig struct {
	TranscriptTTL time.Duration `envconfig:"CALL_TRANSCRIPT_TTL" default:"24h"`
	HistoryTurns  int           `envconfig:"EXTRACT_HISTORY_TURNS" default:"6"`
}
