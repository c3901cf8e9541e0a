package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/foxseedlab/mojinote/internal/audio"
	"github.com/foxseedlab/mojinote/internal/transcriber"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type WhisperConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

// WhisperTranscriber sends each chunk as a WAV file to an OpenAI-compatible
// audio transcription endpoint.
type WhisperTranscriber struct {
	client   oai.Client
	model    string
	language string
}

func NewWhisperTranscriber(cfg WhisperConfig) *WhisperTranscriber {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &WhisperTranscriber{
		client:   oai.NewClient(opts...),
		model:    cfg.Model,
		language: whisperLanguage(cfg.Language),
	}
}

var _ transcriber.Transcriber = (*WhisperTranscriber)(nil)

func (t *WhisperTranscriber) Transcribe(ctx context.Context, chunk audio.Chunk) (string, error) {
	wav := audio.EncodeWAV(chunk.Payload, chunk.SampleRate, chunk.Channels)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), chunk.ID+".wav", "audio/wav"),
		Model: oai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = oai.String(t.language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// whisperLanguage reduces a BCP-47 tag such as "en-US" to the ISO-639-1 code
// the transcription endpoint expects.
func whisperLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
