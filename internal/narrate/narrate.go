// Package narrate turns diagnostic findings into a short executive summary
// using a hosted language model.
package narrate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	defaultMaxTokens = 600
	defaultTimeout   = 2 * time.Minute
)

const systemPrompt = `You are a senior data quality analyst. Write a concise executive summary
(at most three short paragraphs) of a dataset diagnostic report for a
non-technical stakeholder. State whether the data is ready for modeling,
the most important risks, and the next actions. Do not invent numbers.`

// Facts are the diagnostic findings a narrative is written from.
type Facts struct {
	Dataset        string
	Rows           int
	Columns        int
	Target         string
	Score          int
	Band           string
	Interpretation string
	Findings       []string
}

// Narrator writes an executive summary.
type Narrator interface {
	Name() string
	Narrate(ctx context.Context, facts Facts) (string, error)
}

// Config selects and configures a Narrator.
type Config struct {
	Provider  string        `mapstructure:"provider"`
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// New builds the Narrator named by cfg.Provider. The API key falls back to
// the provider's usual environment variable.
func New(cfg Config) (Narrator, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		return newAnthropic(cfg), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai API key is required")
		}
		return newOpenAI(cfg), nil
	}
	return nil, fmt.Errorf("unknown narrator provider %q", cfg.Provider)
}

// Prompt renders facts as the user message sent to the model.
func Prompt(f Facts) string {
	var b strings.Builder
	if f.Dataset != "" {
		fmt.Fprintf(&b, "Dataset: %s\n", f.Dataset)
	}
	fmt.Fprintf(&b, "Rows: %d\nColumns: %d\nTarget: %s\n", f.Rows, f.Columns, f.Target)
	fmt.Fprintf(&b, "Health score: %d/100 (%s)\n", f.Score, f.Band)
	if f.Interpretation != "" {
		fmt.Fprintf(&b, "Interpretation: %s\n", f.Interpretation)
	}
	if len(f.Findings) > 0 {
		b.WriteString("Findings:\n")
		for _, finding := range f.Findings {
			fmt.Fprintf(&b, "- %s\n", finding)
		}
	}
	return b.String()
}
