package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config bounds a retry loop. Pass nil to the Do functions to use
// DefaultConfig.
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0 to 1, fraction of each delay randomized in both directions
	MaxSameErrorType int     // consecutive same-class failures before giving up early, 0 disables
}

// DefaultConfig retries three times starting at 100ms, doubling up to 5s,
// with 10% jitter. Five identical failure classes in a row end the loop
// early.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

// backoff tracks the growing delay between attempts.
type backoff struct {
	cfg   *Config
	delay time.Duration
}

func newBackoff(cfg *Config) *backoff {
	return &backoff{cfg: cfg, delay: cfg.InitialDelay}
}

// wait sleeps for the current jittered delay or until ctx is done, then
// grows the delay for the next attempt.
func (b *backoff) wait(ctx context.Context) error {
	d := b.delay
	if b.cfg.JitterFactor > 0 {
		d += time.Duration(float64(d) * b.cfg.JitterFactor * (rand.Float64()*2 - 1))
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
		return ctx.Err()
	}

	b.delay = time.Duration(float64(b.delay) * b.cfg.Multiplier)
	if b.delay > b.cfg.MaxDelay {
		b.delay = b.cfg.MaxDelay
	}
	return nil
}

// Do runs fn until it succeeds or the attempts are exhausted, waiting with
// exponential backoff in between. Context cancellation cuts the wait short
// and returns ctx.Err().
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that produce a value, such as a client
// constructor.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	b := newBackoff(cfg)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if attempt < cfg.MaxRetries {
			if werr := b.wait(ctx); werr != nil {
				return result, werr
			}
		}
	}

	return result, lastErr
}

// RetryableError lets an error declare its own retryability instead of
// relying on message matching. Model client errors implement it.
type RetryableError interface {
	error
	IsRetryable() bool
}

// retryablePatterns marks transient failures from the document store, the
// cache, and OpenAI-compatible model endpoints. Self-hosted endpoints
// surface GPU faults in the response body.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"timeout",
	"timed out",
	"network is unreachable",
	"temporary failure",
	"too many connections",
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"too many requests",
	"service unavailable",
	"service busy",
	"cuda error",
	"gpu error",
	"out of memory",
}

// IsRetryable reports whether an error is worth retrying. Errors that
// implement RetryableError decide for themselves; anything else is matched
// against known transient patterns.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// errorClass buckets an error message so repeated identical failures can be
// told apart from flapping. An endpoint alternating 503 and timeout keeps
// retrying; one stuck on 503 gives up early.
func errorClass(err error) string {
	if err == nil {
		return "nil"
	}

	msg := strings.ToLower(err.Error())

	for _, code := range []string{"503", "502", "504", "500", "429", "404", "403", "401", "400"} {
		if strings.Contains(msg, code) {
			return code
		}
	}

	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"):
		return "connection"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return "timeout"
	case strings.Contains(msg, "broken pipe"):
		return "broken_pipe"
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return "rate_limit"
	case strings.Contains(msg, "cuda error"), strings.Contains(msg, "gpu error"):
		return "gpu"
	case strings.Contains(msg, "out of memory"):
		return "oom"
	}

	return "unknown"
}

// DoIfRetryable is Do for errors that may be permanent: a non-retryable
// error returns immediately with no further attempts, and MaxSameErrorType
// consecutive failures of one class end the loop early.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	b := newBackoff(cfg)
	streak := 0
	lastClass := ""

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		if class := errorClass(err); class == lastClass {
			streak++
			if cfg.MaxSameErrorType > 0 && streak >= cfg.MaxSameErrorType {
				return fmt.Errorf("giving up after %d consecutive %s failures: %w", streak, class, err)
			}
		} else {
			streak = 1
			lastClass = class
		}

		if attempt < cfg.MaxRetries {
			if werr := b.wait(ctx); werr != nil {
				return werr
			}
		}
	}

	return lastErr
}
