package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		Multiplier:      2.0,
		JitterFactor:    0,
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", config.MaxRetries)
	}
	if config.InitialInterval != time.Second {
		t.Errorf("InitialInterval = %v, want 1s", config.InitialInterval)
	}
	if config.MaxInterval != 30*time.Second {
		t.Errorf("MaxInterval = %v, want 30s", config.MaxInterval)
	}
}

func TestNew_FillsZeroValues(t *testing.T) {
	config := &Config{JitterFactor: 3}
	r := New(config)

	if r.config.InitialInterval != time.Second {
		t.Errorf("InitialInterval = %v, want 1s", r.config.InitialInterval)
	}
	if r.config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", r.config.Multiplier)
	}
	if r.config.JitterFactor != 1 {
		t.Errorf("JitterFactor = %f, want clamp to 1", r.config.JitterFactor)
	}
	if config.InitialInterval != 0 {
		t.Error("New must not mutate the caller's config")
	}
}

func TestRetrier_Do_SuccessFirstTry(t *testing.T) {
	calls := 0
	res := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, nil)

	if res.Err != nil {
		t.Errorf("Err = %v, want nil", res.Err)
	}
	if res.Attempts != 1 || calls != 1 {
		t.Errorf("Attempts = %d, calls = %d, want 1", res.Attempts, calls)
	}
}

func TestRetrier_Do_SuccessAfterRetries(t *testing.T) {
	calls := 0
	var retried []int
	res := New(fastConfig(5)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	}, func(attempt int, err error, next time.Duration) {
		retried = append(retried, attempt)
	})

	if res.Err != nil {
		t.Errorf("Err = %v, want nil", res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("callback attempts = %v, want [1 2]", retried)
	}
}

func TestRetrier_Do_MaxRetriesExceeded(t *testing.T) {
	opErr := errors.New("still down")
	res := New(fastConfig(2)).Do(context.Background(), func(ctx context.Context) error {
		return opErr
	}, nil)

	if !errors.Is(res.Err, ErrMaxRetriesExceeded) {
		t.Errorf("Err = %v, want ErrMaxRetriesExceeded", res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if !errors.Is(res.LastError, opErr) {
		t.Errorf("LastError = %v, want %v", res.LastError, opErr)
	}
}

func TestRetrier_Do_PermanentError(t *testing.T) {
	opErr := errors.New("bad credentials")
	calls := 0
	res := New(fastConfig(5)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(opErr)
	}, nil)

	if !errors.Is(res.Err, opErr) {
		t.Errorf("Err = %v, want %v", res.Err, opErr)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetrier_Do_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	res := New(&Config{MaxRetries: 5, InitialInterval: time.Second}).Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	}, nil)

	if !errors.Is(res.Err, ErrContextCanceled) {
		t.Errorf("Err = %v, want ErrContextCanceled", res.Err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestInterval_ExponentialAndCapped(t *testing.T) {
	r := New(&Config{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
	})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for attempt, w := range want {
		if got := r.interval(attempt); got != w {
			t.Errorf("interval(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestInterval_JitterStaysInRange(t *testing.T) {
	r := New(&Config{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.5,
	})

	for i := 0; i < 100; i++ {
		got := r.interval(0)
		if got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("interval(0) = %v, want within [50ms, 150ms]", got)
		}
	}
}

func TestDo_WrapsLastError(t *testing.T) {
	opErr := errors.New("connection refused")
	err := Do(context.Background(), fastConfig(1), func(ctx context.Context) error {
		return opErr
	}, nil)

	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("err = %v, want ErrMaxRetriesExceeded", err)
	}
	if !errors.Is(err, opErr) {
		t.Errorf("err = %v, want it to wrap %v", err, opErr)
	}
}

func TestConnectConfig(t *testing.T) {
	c := ConnectConfig(3, 200*time.Millisecond)
	if c.MaxRetries != 3 || c.InitialInterval != 200*time.Millisecond || c.MaxInterval != 2*time.Second {
		t.Errorf("unexpected connect config: %+v", c)
	}
}

func TestRetrier_Backoff(t *testing.T) {
	r := New(fastConfig(0))

	if got := r.Backoff(0); got != 5*time.Millisecond {
		t.Errorf("Backoff(0) = %v, want 5ms", got)
	}
	if got := r.Backoff(1); got != 10*time.Millisecond {
		t.Errorf("Backoff(1) = %v, want 10ms", got)
	}
	if got := r.Backoff(50); got != 20*time.Millisecond {
		t.Errorf("Backoff(50) = %v, want capped 20ms", got)
	}
}
