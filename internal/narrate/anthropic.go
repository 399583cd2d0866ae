package narrate

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// Anthropic narrates with the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func newAnthropic(cfg Config) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: cfg.MaxTokens,
	}
}

func (a *Anthropic) Name() string { return ProviderAnthropic }

func (a *Anthropic) Narrate(ctx context.Context, facts Facts) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(a.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(Prompt(facts))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic narrative: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	log.Debug().
		Int64("input_tokens", resp.Usage.InputTokens).
		Int64("output_tokens", resp.Usage.OutputTokens).
		Msg("anthropic narrative generated")
	return strings.TrimSpace(b.String()), nil
}
