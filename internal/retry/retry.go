// Package retry implements the bounded-backoff policy used by the LLM
// transports.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// Config bounds a retry loop.
type Config struct {
	// MaxAttempts counts the first try. Values below 1 mean one attempt.
	MaxAttempts int

	// InitialDelay is the backoff after the first failure.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Factor multiplies the delay between attempts.
	Factor float64

	// Jitter randomizes each delay into [0.5, 1.5] of its base value.
	Jitter bool
}

// Exponential is the usual transport policy: doubling delays with jitter.
func Exponential(maxAttempts int, initial, max time.Duration) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: initial,
		MaxDelay:     max,
		Factor:       2.0,
		Jitter:       true,
	}
}

func (c *Config) sanitize() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Factor <= 0 {
		c.Factor = 2.0
	}
}

// Result reports how a retry loop ended.
type Result struct {
	// Attempts made, including the first.
	Attempts int

	// Err is the final error, nil on success.
	Err error
}

// Do runs op until it succeeds, returns a permanent error, exhausts the
// attempt budget, or the context ends.
func Do(ctx context.Context, cfg Config, op func() error) Result {
	cfg.sanitize()

	var res Result
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		err := op()
		res.Err = err
		if err == nil || IsPermanent(err) || attempt == cfg.MaxAttempts {
			return res
		}

		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res
		case <-time.After(delayFor(attempt, cfg)):
		}
	}
	return res
}

// DoWithValue is Do for operations that produce a value.
func DoWithValue[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, Result) {
	var value T
	res := Do(ctx, cfg, func() error {
		var err error
		value, err = op()
		return err
	})
	return value, res
}

func delayFor(attempt int, cfg Config) time.Duration {
	d := Backoff(attempt, cfg.InitialDelay, cfg.MaxDelay, cfg.Factor)
	if cfg.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64())) // #nosec G404 -- jitter only
	}
	return d
}

// Backoff is the raw exponential delay for an attempt, before jitter.
func Backoff(attempt int, initial, max time.Duration, factor float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	if factor <= 0 {
		factor = 2.0
	}
	d := float64(initial) * math.Pow(factor, float64(attempt-1))
	if d > float64(max) {
		d = float64(max)
	}
	return time.Duration(d)
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
