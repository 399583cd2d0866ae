package modeling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrCircuitOpen is returned without contacting the remote service while
// the circuit breaker is open.
var ErrCircuitOpen = errors.New("model diagnostics circuit breaker is open")

// RetryConfig controls retries of remote diagnosis calls.
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay" yaml:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor" mapstructure:"backoff_factor"`
	Jitter        bool          `json:"jitter" yaml:"jitter" mapstructure:"jitter"`
}

// BreakerConfig controls the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold" mapstructure:"success_threshold"`
	ResetTimeout     time.Duration `json:"reset_timeout" yaml:"reset_timeout" mapstructure:"reset_timeout"`
}

// ResilienceConfig groups the retry, breaker and timeout settings of the
// remote client.
type ResilienceConfig struct {
	Retry          RetryConfig   `json:"retry" yaml:"retry" mapstructure:"retry"`
	Breaker        BreakerConfig `json:"breaker" yaml:"breaker" mapstructure:"breaker"`
	AttemptTimeout time.Duration `json:"attempt_timeout" yaml:"attempt_timeout" mapstructure:"attempt_timeout"`
}

// DefaultResilienceConfig returns the settings used when none are given.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		Retry: RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
			Jitter:        true,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			ResetTimeout:     30 * time.Second,
		},
		AttemptTimeout: 2 * time.Minute,
	}
}

// RetryableError marks a transport failure as worth retrying, optionally
// after a server-provided delay.
type RetryableError struct {
	Err        error
	Retryable  bool
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// NewRetryableError classifies err.
func NewRetryableError(err error, retryable bool) *RetryableError {
	return &RetryableError{Err: err, Retryable: retryable}
}

// IsRetryable reports whether err, or any error it wraps, is a retryable
// RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re) && re.Retryable
}

// delay returns how long to wait before the given retry attempt, counting
// from one.
func (c RetryConfig) delay(attempt int, err error) time.Duration {
	var re *RetryableError
	if errors.As(err, &re) && re.RetryAfter > 0 {
		return re.RetryAfter
	}
	d := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt-1))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.Jitter {
		d += d * 0.1 * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker stops calls to a failing service until ResetTimeout has passed,
// then lets probe calls through until SuccessThreshold of them succeed.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
	return b.state != BreakerOpen
}

// Record updates the breaker with the outcome of a call.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		switch b.state {
		case BreakerHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.state = BreakerClosed
				b.failures = 0
			}
		case BreakerClosed:
			b.failures = 0
		}
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.FailureThreshold {
		if b.state != BreakerOpen {
			log.Warn().Int("failures", b.failures).Msg("model diagnostics circuit breaker opened")
		}
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.successes = 0
}

// guard runs an operation under the breaker, a per-attempt timeout and the
// retry policy.
type guard struct {
	cfg     ResilienceConfig
	breaker *Breaker
	sleep   func(context.Context, time.Duration) error
}

func newGuard(cfg ResilienceConfig) *guard {
	return &guard{cfg: cfg, breaker: NewBreaker(cfg.Breaker), sleep: sleepContext}
}

func (g *guard) do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := g.cfg.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !g.breaker.Allow() {
			return ErrCircuitOpen
		}
		last = g.attempt(ctx, op)
		if last == nil || !IsRetryable(last) {
			g.breaker.Record(transportFailure(last))
			return last
		}
		g.breaker.Record(last)

		if attempt == attempts {
			break
		}
		wait := g.cfg.Retry.delay(attempt, last)
		log.Debug().
			Err(last).
			Int("attempt", attempt).
			Dur("delay", wait).
			Msg("retrying model diagnostics request")
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("model diagnostics failed after %d attempts: %w", attempts, last)
}

func (g *guard) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	if g.cfg.AttemptTimeout <= 0 {
		return op(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
	defer cancel()
	return op(ctx)
}

// transportFailure drops errors that say nothing about the health of the
// service, such as a rejected payload.
func transportFailure(err error) error {
	var me *Error
	if errors.As(err, &me) {
		return nil
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
