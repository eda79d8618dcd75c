package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastConfig(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if res.Err != nil || res.Attempts != 3 {
		t.Errorf("result = %+v, calls = %d", res, calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return errors.New("always")
	})
	if res.Err == nil || res.Attempts != 3 || calls != 3 {
		t.Errorf("result = %+v, calls = %d", res, calls)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	cause := errors.New("bad request")
	res := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return Permanent(cause)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(res.Err, cause) {
		t.Errorf("err = %v", res.Err)
	}
}

func TestDo_ContextCancelStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	res := Do(ctx, Config{MaxAttempts: 5, InitialDelay: time.Hour}, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if calls != 1 || !errors.Is(res.Err, context.Canceled) {
		t.Errorf("calls = %d, err = %v", calls, res.Err)
	}
}

func TestDoWithValue(t *testing.T) {
	calls := 0
	v, res := DoWithValue(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if v != "ok" || res.Err != nil {
		t.Errorf("value = %q, result = %+v", v, res)
	}
}

func TestBackoff(t *testing.T) {
	base := 250 * time.Millisecond
	if d := Backoff(1, base, 2*time.Second, 2.0); d != base {
		t.Errorf("attempt 1 = %v", d)
	}
	if d := Backoff(2, base, 2*time.Second, 2.0); d != 500*time.Millisecond {
		t.Errorf("attempt 2 = %v", d)
	}
	if d := Backoff(10, base, 2*time.Second, 2.0); d != 2*time.Second {
		t.Errorf("attempt 10 should cap, got %v", d)
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, status := range []int{408, 429, 500, 502, 503, 504} {
		if !RetryableStatus(status) {
			t.Errorf("status %d should be retryable", status)
		}
	}
	for _, status := range []int{200, 400, 401, 404} {
		if RetryableStatus(status) {
			t.Errorf("status %d should not be retryable", status)
		}
	}
}
