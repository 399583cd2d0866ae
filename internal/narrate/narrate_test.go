package narrate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var facts = Facts{
	Dataset:        "churn.csv",
	Rows:           100,
	Columns:        6,
	Target:         "churned",
	Score:          72,
	Band:           "Good",
	Interpretation: "Dataset is generally healthy, but some issues may require attention.",
	Findings: []string{
		"income is 12.0% missing",
		"customer_id looks like an identifier",
	},
}

func TestPrompt(t *testing.T) {
	snaps.MatchSnapshot(t, Prompt(facts))
}

func TestNewRequiresKnownProviderAndKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New(Config{Provider: "bard"})
	assert.ErrorContains(t, err, "unknown narrator provider")
	_, err = New(Config{Provider: ProviderAnthropic})
	assert.ErrorContains(t, err, "API key is required")
	_, err = New(Config{Provider: ProviderOpenAI})
	assert.ErrorContains(t, err, "API key is required")

	t.Setenv("OPENAI_API_KEY", "from-env")
	n, err := New(Config{Provider: "OpenAI"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, n.Name())
}

func TestAnthropicNarrate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, defaultAnthropicModel, body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "  The data is mostly ready.  "}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 120, "output_tokens": 8}
		}`))
	}))
	defer srv.Close()

	n, err := New(Config{Provider: ProviderAnthropic, APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	got, err := n.Narrate(context.Background(), facts)
	require.NoError(t, err)
	assert.Equal(t, "The data is mostly ready.", got)
}

func TestOpenAINarrate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Address missing income first."}}],
			"usage": {"prompt_tokens": 100, "completion_tokens": 6, "total_tokens": 106}
		}`))
	}))
	defer srv.Close()

	n, err := New(Config{Provider: ProviderOpenAI, APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	got, err := n.Narrate(context.Background(), facts)
	require.NoError(t, err)
	assert.Equal(t, "Address missing income first.", got)
}

func TestNarrateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad request"}}`))
	}))
	defer srv.Close()

	n, err := New(Config{Provider: ProviderOpenAI, APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = n.Narrate(context.Background(), facts)
	assert.ErrorContains(t, err, "openai narrative")
}
