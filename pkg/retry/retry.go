package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Common errors
var (
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrContextCanceled    = errors.New("context canceled during retry")
)

// Config contains retry configuration
type Config struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// InitialInterval is the wait before the first retry
	InitialInterval time.Duration
	// MaxInterval caps the backoff
	MaxInterval time.Duration
	// Multiplier grows the interval after each retry
	Multiplier float64
	// JitterFactor adds +/- this fraction of randomness to each interval
	JitterFactor float64
}

// DefaultConfig returns exponential backoff of 1s, 2s, 4s ... capped at 30s
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      5,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// ConnectConfig is a short schedule for dialing infrastructure at startup
func ConnectConfig(maxRetries int, interval time.Duration) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: interval,
		MaxInterval:     10 * interval,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// Operation is the function to be retried
type Operation func(ctx context.Context) error

// PermanentError stops retrying immediately
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks an error as not retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Result describes a finished retry loop
type Result struct {
	// Err is nil on success
	Err error
	// Attempts counts the initial attempt too
	Attempts int
	// LastError is the error returned by the last attempt
	LastError error
	// TotalDuration includes the waits
	TotalDuration time.Duration
}

// Callback is invoked before each wait
type Callback func(attempt int, err error, next time.Duration)

// Retrier runs operations with exponential backoff
type Retrier struct {
	config *Config
}

// New creates a Retrier, filling zero values with defaults
func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}
	c := *config
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	c.JitterFactor = math.Max(0, math.Min(1, c.JitterFactor))
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return &Retrier{config: &c}
}

// Do runs op until it succeeds, fails permanently or retries run out
func (r *Retrier) Do(ctx context.Context, op Operation, onRetry Callback) *Result {
	start := time.Now()
	res := &Result{}

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		res.Attempts = attempt + 1

		if ctx.Err() != nil {
			res.Err = ErrContextCanceled
			break
		}

		err := op(ctx)
		if err == nil {
			res.Err = nil
			res.TotalDuration = time.Since(start)
			return res
		}
		res.LastError = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			res.Err = perm.Err
			res.LastError = perm.Err
			break
		}

		if attempt == r.config.MaxRetries {
			res.Err = ErrMaxRetriesExceeded
			break
		}

		wait := r.interval(attempt)
		if onRetry != nil {
			onRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Err = ErrContextCanceled
			res.TotalDuration = time.Since(start)
			return res
		case <-timer.C:
		}
	}

	res.TotalDuration = time.Since(start)
	return res
}

// Backoff returns the wait before retry number attempt+1, for loops that
// retry forever and only need the schedule
func (r *Retrier) Backoff(attempt int) time.Duration {
	return r.interval(attempt)
}

func (r *Retrier) interval(attempt int) time.Duration {
	d := float64(r.config.InitialInterval) * math.Pow(r.config.Multiplier, float64(attempt))

	if r.config.JitterFactor > 0 {
		jitter := d * r.config.JitterFactor
		d += (rand.Float64()*2 - 1) * jitter
	}
	if d > float64(r.config.MaxInterval) {
		d = float64(r.config.MaxInterval)
	}
	if d <= 0 {
		d = float64(r.config.InitialInterval)
	}
	return time.Duration(d)
}

// Do is a convenience wrapper returning only the final error. When retries
// run out the last operation error is wrapped so callers can still inspect it.
func Do(ctx context.Context, config *Config, op Operation, onRetry Callback) error {
	res := New(config).Do(ctx, op, onRetry)
	if res.Err == nil {
		return nil
	}
	if errors.Is(res.Err, ErrMaxRetriesExceeded) || errors.Is(res.Err, ErrContextCanceled) {
		if res.LastError != nil {
			return errors.Join(res.Err, res.LastError)
		}
	}
	return res.Err
}
