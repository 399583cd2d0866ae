package modeling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ClientConfig configures a remote Model Diagnostics Service client.
type ClientConfig struct {
	BaseURL    string           `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	APIKey     string           `json:"-" yaml:"-" mapstructure:"api_key"`
	RateLimit  float64          `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst      int              `json:"burst" yaml:"burst" mapstructure:"burst"`
	Resilience ResilienceConfig `json:"resilience" yaml:"resilience" mapstructure:"resilience"`
}

// DefaultClientConfig returns a config with no base URL, one request per
// second and the default resilience settings.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RateLimit:  1,
		Burst:      1,
		Resilience: DefaultResilienceConfig(),
	}
}

// Client calls a remote Model Diagnostics Service over HTTP.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	guard    *guard
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a Client posting to <BaseURL>/v1/diagnostics.
func NewClient(cfg ClientConfig, opts ...ClientOption) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("model diagnostics base URL is required")
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/v1/diagnostics",
		apiKey:   cfg.APIKey,
		http:     &http.Client{},
		limiter:  rate.NewLimiter(limit, burst),
		guard:    newGuard(cfg.Resilience),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *Breaker {
	return c.guard.breaker
}

type payload struct {
	Target         string           `json:"target"`
	Numeric        []string         `json:"numeric"`
	Categorical    []string         `json:"categorical"`
	Datetime       []string         `json:"datetime"`
	Classification bool             `json:"classification"`
	Records        []map[string]any `json:"records"`
}

type response struct {
	Result
	Error string `json:"error,omitempty"`
}

// Diagnose implements Service.
func (c *Client) Diagnose(ctx context.Context, req Request) (*Result, error) {
	if req.Data == nil {
		return nil, &Error{Message: "no data"}
	}
	body, err := json.Marshal(payload{
		Target:         req.Target,
		Numeric:        nonNil(req.Numeric),
		Categorical:    nonNil(req.Categorical),
		Datetime:       nonNil(req.Datetime),
		Classification: req.Classification,
		Records:        req.Data.Records(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode diagnostics request: %w", err)
	}

	var res *Result
	err = c.guard.do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		r, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) post(ctx context.Context, body []byte) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewRetryableError(err, ctx.Err() == context.DeadlineExceeded)
		}
		return nil, NewRetryableError(fmt.Errorf("model diagnostics request: %w", err), true)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewRetryableError(fmt.Errorf("read model diagnostics response: %w", err), true)
	}
	log.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("model diagnostics response")

	var out response
	decodeErr := json.Unmarshal(data, &out)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		re := NewRetryableError(fmt.Errorf("model diagnostics service returned %d", resp.StatusCode), true)
		re.RetryAfter = retryAfter(resp.Header.Get("Retry-After"))
		return nil, re
	case resp.StatusCode >= 400:
		if decodeErr == nil && out.Error != "" {
			return nil, &Error{Message: out.Error}
		}
		return nil, fmt.Errorf("model diagnostics service returned %d", resp.StatusCode)
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("decode model diagnostics response: %w", decodeErr)
	}
	if out.Error != "" {
		return nil, &Error{Message: out.Error}
	}
	result := out.Result
	return &result, nil
}

func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
