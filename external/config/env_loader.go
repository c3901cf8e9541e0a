package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/mojinote/internal/config"
)

type envConfig struct {
	Env                        string        `env:"ENV" envDefault:"production"`
	DefaultTranscribeLanguage  string        `env:"DEFAULT_TRANSCRIBE_LANGUAGE" envDefault:"en-US"`
	MaxSessionDurationMin      int           `env:"MAX_SESSION_DURATION_MIN" envDefault:"120"`
	DatabaseURL                string        `env:"DATABASE_URL,required"`
	Transcriber                string        `env:"TRANSCRIBER" envDefault:"openai"`
	GoogleCloudProjectID       string        `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string        `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string        `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"us"`
	GoogleCloudSpeechModel     string        `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"chirp_3"`
	OpenAIAPIKey               string        `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL              string        `env:"OPENAI_BASE_URL"`
	TranscribeModel            string        `env:"TRANSCRIBE_MODEL" envDefault:"whisper-1"`
	OrganizeModel              string        `env:"ORGANIZE_MODEL" envDefault:"gpt-4o-mini"`
	FormatModel                string        `env:"FORMAT_MODEL" envDefault:"gpt-4o-mini"`
	PolishModel                string        `env:"POLISH_MODEL" envDefault:"gpt-4o"`
	CleanupModel               string        `env:"CLEANUP_MODEL" envDefault:"gpt-4o"`
	DiscordToken               string        `env:"DISCORD_TOKEN,required"`
	DiscordGuildID             string        `env:"DISCORD_GUILD_ID,required"`
	DiscordCountOtherBots      bool          `env:"DISCORD_COUNT_OTHER_BOTS_AS_PARTICIPANTS" envDefault:"false"`
	ChunkDuration              time.Duration `env:"CHUNK_DURATION" envDefault:"3500ms"`
	OrganizeInterval           time.Duration `env:"ORGANIZE_INTERVAL" envDefault:"60s"`
	FormatInterval             time.Duration `env:"FORMAT_INTERVAL" envDefault:"60s"`
	PolishInterval             time.Duration `env:"POLISH_INTERVAL" envDefault:"120s"`
	MaxInFlightChunks          int           `env:"MAX_INFLIGHT_CHUNKS" envDefault:"4"`
	MaxQueuedChunks            int           `env:"MAX_QUEUED_CHUNKS" envDefault:"32"`
	TranscribeTimeout          time.Duration `env:"TRANSCRIBE_TIMEOUT" envDefault:"30s"`
	TransformTimeout           time.Duration `env:"TRANSFORM_TIMEOUT" envDefault:"90s"`
	FinalizeGrace              time.Duration `env:"FINALIZE_GRACE" envDefault:"15s"`
	AutosaveDebounce           time.Duration `env:"AUTOSAVE_DEBOUNCE" envDefault:"2s"`
	TranscriptOrdering         string        `env:"TRANSCRIPT_ORDERING" envDefault:"sequence"`
	NoteTimezone               string        `env:"NOTE_TIMEZONE" envDefault:"UTC"`
	NoteWebhookURL             string        `env:"NOTE_WEBHOOK_URL"`
	MetricsAddr                string        `env:"METRICS_ADDR"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		DefaultTranscribeLanguage:  raw.DefaultTranscribeLanguage,
		MaxSessionDurationMin:      raw.MaxSessionDurationMin,
		DatabaseURL:                raw.DatabaseURL,
		Transcriber:                raw.Transcriber,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		OpenAIAPIKey:               raw.OpenAIAPIKey,
		OpenAIBaseURL:              raw.OpenAIBaseURL,
		TranscribeModel:            raw.TranscribeModel,
		OrganizeModel:              raw.OrganizeModel,
		FormatModel:                raw.FormatModel,
		PolishModel:                raw.PolishModel,
		CleanupModel:               raw.CleanupModel,
		DiscordToken:               raw.DiscordToken,
		DiscordGuildID:             raw.DiscordGuildID,
		DiscordCountOtherBots:      raw.DiscordCountOtherBots,
		ChunkDuration:              raw.ChunkDuration,
		OrganizeInterval:           raw.OrganizeInterval,
		FormatInterval:             raw.FormatInterval,
		PolishInterval:             raw.PolishInterval,
		MaxInFlightChunks:          raw.MaxInFlightChunks,
		MaxQueuedChunks:            raw.MaxQueuedChunks,
		TranscribeTimeout:          raw.TranscribeTimeout,
		TransformTimeout:           raw.TransformTimeout,
		FinalizeGrace:              raw.FinalizeGrace,
		AutosaveDebounce:           raw.AutosaveDebounce,
		TranscriptOrdering:         raw.TranscriptOrdering,
		NoteTimezone:               raw.NoteTimezone,
		NoteWebhookURL:             raw.NoteWebhookURL,
		MetricsAddr:                raw.MetricsAddr,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
