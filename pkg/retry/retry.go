// Package retry provides retry logic with exponential backoff, used by the
// S3 trace source when downloading a trace file before simulation starts.
package retry

import (
	"context"
	stderr "errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cachesim/cachesim/pkg/errors"
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	Jitter       bool          `yaml:"jitter" json:"jitter"`

	// RetryableErrors lists the error codes a retry attempt should retry on.
	RetryableErrors []errors.ErrorCode `yaml:"retryable_errors" json:"retryable_errors"`

	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DefaultConfig returns the retry policy used for S3 trace downloads.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryableErrors: []errors.ErrorCode{
			errors.ErrCodeIoOpenFailed,
			errors.ErrCodeIoStatFailed,
			errors.ErrCodeInternalError,
		},
	}
}

// Retryer executes a function with exponential backoff retry.
type Retryer struct {
	config Config
}

// New creates a Retryer, filling in zero-valued fields with defaults.
func New(config Config) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	return &Retryer{config: config}
}

// Do executes fn with retry logic under a background context.
func (r *Retryer) Do(fn func() error) error {
	return r.DoWithContext(context.Background(), func(ctx context.Context) error {
		return fn()
	})
}

// DoWithContext executes fn with retry logic, honoring ctx cancellation
// between attempts and during backoff sleeps.
func (r *Retryer) DoWithContext(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("operation canceled: %w", ctx.Err())
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.shouldRetry(err, attempt) {
			return err
		}

		if attempt < r.config.MaxAttempts {
			delay := r.calculateDelay(attempt)
			if r.config.OnRetry != nil {
				r.config.OnRetry(attempt, err, delay)
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("operation canceled after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
}

func (r *Retryer) shouldRetry(err error, attempt int) bool {
	if attempt >= r.config.MaxAttempts {
		return false
	}

	var simErr *errors.SimError
	if stderr.As(err, &simErr) {
		for _, code := range r.config.RetryableErrors {
			if simErr.Code == code {
				return true
			}
		}
		return false
	}

	// Plain errors (e.g. network I/O) are retried by default.
	return true
}

func (r *Retryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		jitter := delay * 0.2 * (rand.Float64()*2 - 1)
		delay += jitter
	}
	return time.Duration(delay)
}
