package telephony

import "time"

type Config struct {
	Port     int `envconfig:"TELEPHONY_PORT" default:"8081"`
	MaxCalls int `envconfig:"TELEPHONY_MAX_CALLS" default:"20"`
	// PublicHost is the host Twilio reaches the stream endpoint on. The
	// request host is used when empty.
	PublicHost    string        `envconfig:"TELEPHONY_PUBLIC_HOST"`
	LiveModel     string        `envconfig:"LIVE_MODEL" default:"gemini-live-2.5-flash-preview"`
	CallTTL       time.Duration `envconfig:"TELEPHONY_CALL_TTL" default:"1h"`
	TranscriptGap time.Duration `envconfig:"TELEPHONY_TRANSCRIPT_GAP" default:"1200ms"`
}
