package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/foxseedlab/mojinote/internal/transform"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

type ClientConfig struct {
	APIKey  string
	BaseURL string
}

// ChatTransformer runs one Profile against an OpenAI-compatible chat
// completions endpoint.
type ChatTransformer struct {
	client  oai.Client
	model   string
	profile Profile
}

func NewChatTransformer(cfg ClientConfig, model string, profile Profile) *ChatTransformer {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &ChatTransformer{
		client:  oai.NewClient(opts...),
		model:   model,
		profile: profile,
	}
}

var _ transform.Transformer = (*ChatTransformer)(nil)

func (t *ChatTransformer) Transform(ctx context.Context, req transform.Request) (transform.Result, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(t.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(t.profile.System),
			oai.UserMessage(t.profile.userMessage(req)),
		},
		Temperature: param.NewOpt(t.profile.Temperature),
	}
	if t.profile.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(t.profile.MaxTokens))
	}

	resp, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return transform.Result{}, fmt.Errorf("%s: chat completion: %w", t.profile.Name, err)
	}
	if len(resp.Choices) == 0 {
		return transform.Result{}, fmt.Errorf("%s: empty choices in response", t.profile.Name)
	}

	text := stripCodeFence(resp.Choices[0].Message.Content)
	if t.profile.Tidy {
		text = transform.Tidy(text)
	}
	if strings.TrimSpace(text) == "" {
		return transform.Result{}, fmt.Errorf("%s: %w", t.profile.Name, transform.ErrEmptyResult)
	}
	return transform.Result{Text: text}, nil
}

// stripCodeFence removes a markdown code fence wrapped around the whole reply.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return text
	}
	body := strings.TrimSuffix(trimmed[3:], "```")
	if i := strings.IndexByte(body, '\n'); i >= 0 && !strings.Contains(body[:i], "<") {
		body = body[i+1:]
	}
	return strings.TrimSpace(body)
}
