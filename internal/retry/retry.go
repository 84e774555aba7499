// Package retry provides bounded retries with exponential backoff and
// jitter. The store wrappers use it to absorb transient lock errors inside a
// single operation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts     int              // total attempts including the first
	InitialDelay    time.Duration    // delay before the second attempt
	MaxDelay        time.Duration    // backoff ceiling
	Multiplier      float64          // backoff multiplier
	RandomizeFactor float64          // jitter factor (0-1)
	RetryIf         func(error) bool // retry predicate
}

// DefaultConfig returns the configuration used by the store wrappers.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     3,
		InitialDelay:    50 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         DefaultRetryIf,
	}
}

// Operation is one retryable unit of work.
type Operation func(ctx context.Context) error

// Result reports how a retried operation went.
type Result struct {
	Attempts int
	Duration time.Duration
	Err      error
}

// Retrier executes operations under a Config.
type Retrier struct {
	config *Config
}

// New creates a retrier, normalizing out-of-range settings.
func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	if config.RandomizeFactor < 0 {
		config.RandomizeFactor = 0
	} else if config.RandomizeFactor > 1 {
		config.RandomizeFactor = 1
	}
	if config.RetryIf == nil {
		config.RetryIf = DefaultRetryIf
	}
	return &Retrier{config: config}
}

// Do runs op until it succeeds, the attempts are exhausted, the predicate
// rejects the error, or the context ends.
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	start := time.Now()
	result := &Result{}

	var lastErr error
	delay := r.config.InitialDelay

retryLoop:
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			lastErr = fmt.Errorf("context ended before attempt %d: %w", attempt, err)
			break
		}

		err := op(ctx)
		if err == nil {
			result.Duration = time.Since(start)
			return result
		}
		lastErr = err

		if !r.config.RetryIf(err) || attempt >= r.config.MaxAttempts {
			break
		}

		select {
		case <-time.After(r.jitter(delay)):
			delay = r.next(delay)
		case <-ctx.Done():
			lastErr = fmt.Errorf("context ended during retry delay: %w", ctx.Err())
			break retryLoop
		}
	}

	result.Duration = time.Since(start)
	result.Err = lastErr
	return result
}

func (r *Retrier) jitter(delay time.Duration) time.Duration {
	if r.config.RandomizeFactor == 0 {
		return delay
	}
	delta := float64(delay) * r.config.RandomizeFactor
	return time.Duration(float64(delay) - delta + rand.Float64()*2*delta)
}

func (r *Retrier) next(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * r.config.Multiplier)
	if next > r.config.MaxDelay {
		return r.config.MaxDelay
	}
	return next
}

// TemporaryError marks an error as retryable.
type TemporaryError struct {
	Err error
}

func (e *TemporaryError) Error() string {
	return fmt.Sprintf("temporary error: %v", e.Err)
}

func (e *TemporaryError) Unwrap() error {
	return e.Err
}

func (e *TemporaryError) Temporary() bool {
	return true
}

// PermanentError marks an error as not worth retrying.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// DefaultRetryIf retries temporary errors, refuses permanent ones, and
// retries anything unclassified.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	type temporary interface {
		Temporary() bool
	}
	var te temporary
	if errors.As(err, &te) {
		return te.Temporary()
	}

	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return false
	}
	return true
}

// Retry runs op with the default configuration.
func Retry(ctx context.Context, op Operation) error {
	return New(DefaultConfig()).Do(ctx, op).Err
}

// RetryWithConfig runs op with a custom configuration.
func RetryWithConfig(ctx context.Context, config *Config, op Operation) error {
	return New(config).Do(ctx, op).Err
}
