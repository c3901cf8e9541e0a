package config

import (
	"fmt"
	"time"
)

const (
	TranscriberGoogle = "google"
	TranscriberOpenAI = "openai"

	OrderingSequence = "sequence"
	OrderingArrival  = "arrival"
)

type Config struct {
	Env                        string
	DefaultTranscribeLanguage  string
	MaxSessionDurationMin      int
	DatabaseURL                string
	Transcriber                string
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	OpenAIAPIKey               string
	OpenAIBaseURL              string
	TranscribeModel            string
	OrganizeModel              string
	FormatModel                string
	PolishModel                string
	CleanupModel               string
	DiscordToken               string
	DiscordGuildID             string
	DiscordCountOtherBots      bool
	ChunkDuration              time.Duration
	OrganizeInterval           time.Duration
	FormatInterval             time.Duration
	PolishInterval             time.Duration
	MaxInFlightChunks          int
	MaxQueuedChunks            int
	TranscribeTimeout          time.Duration
	TransformTimeout           time.Duration
	FinalizeGrace              time.Duration
	AutosaveDebounce           time.Duration
	TranscriptOrdering         string
	NoteTimezone               string
	NoteWebhookURL             string
	MetricsAddr                string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	switch c.Transcriber {
	case TranscriberGoogle:
		if c.GoogleCloudProjectID == "" || c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID and GOOGLE_CLOUD_CREDENTIALS_JSON are required when TRANSCRIBER=%s", TranscriberGoogle)
		}
	case TranscriberOpenAI:
	default:
		return fmt.Errorf("TRANSCRIBER must be %q or %q, got %q", TranscriberGoogle, TranscriberOpenAI, c.Transcriber)
	}
	switch c.TranscriptOrdering {
	case OrderingSequence, OrderingArrival:
	default:
		return fmt.Errorf("TRANSCRIPT_ORDERING must be %q or %q, got %q", OrderingSequence, OrderingArrival, c.TranscriptOrdering)
	}
	if c.MaxSessionDurationMin <= 0 {
		return fmt.Errorf("MAX_SESSION_DURATION_MIN must be positive, got %d", c.MaxSessionDurationMin)
	}
	if c.MaxInFlightChunks <= 0 {
		return fmt.Errorf("MAX_INFLIGHT_CHUNKS must be positive, got %d", c.MaxInFlightChunks)
	}
	if c.MaxQueuedChunks <= 0 {
		return fmt.Errorf("MAX_QUEUED_CHUNKS must be positive, got %d", c.MaxQueuedChunks)
	}
	for _, d := range c.positiveDurationChecks() {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if _, err := time.LoadLocation(c.NoteTimezone); err != nil {
		return fmt.Errorf("NOTE_TIMEZONE is invalid: %w", err)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DEFAULT_TRANSCRIBE_LANGUAGE", value: c.DefaultTranscribeLanguage},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "OPENAI_API_KEY", value: c.OpenAIAPIKey},
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "NOTE_TIMEZONE", value: c.NoteTimezone},
	}
}

type durationField struct {
	name  string
	value time.Duration
}

func (c *Config) positiveDurationChecks() []durationField {
	return []durationField{
		{name: "CHUNK_DURATION", value: c.ChunkDuration},
		{name: "ORGANIZE_INTERVAL", value: c.OrganizeInterval},
		{name: "FORMAT_INTERVAL", value: c.FormatInterval},
		{name: "POLISH_INTERVAL", value: c.PolishInterval},
		{name: "TRANSCRIBE_TIMEOUT", value: c.TranscribeTimeout},
		{name: "TRANSFORM_TIMEOUT", value: c.TransformTimeout},
		{name: "FINALIZE_GRACE", value: c.FinalizeGrace},
		{name: "AUTOSAVE_DEBOUNCE", value: c.AutosaveDebounce},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
