package narrate

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI narrates with the Chat Completions API.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int
}

func newOpenAI(cfg Config) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: cfg.MaxTokens,
	}
}

func (o *OpenAI) Name() string { return ProviderOpenAI }

func (o *OpenAI) Narrate(ctx context.Context, facts Facts) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(Prompt(facts)),
		},
		MaxCompletionTokens: openai.Int(int64(o.maxTokens)),
		N:                   openai.Int(1),
	})
	if err != nil {
		return "", fmt.Errorf("openai narrative: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai narrative: empty response")
	}
	log.Debug().
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Msg("openai narrative generated")
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
