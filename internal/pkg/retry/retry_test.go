package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

func noSleep(context.Context, time.Duration) error { return nil }

func failingN(n int, failure error) (func(context.Context) (string, error), *int) {
	calls := 0
	return func(context.Context) (string, error) {
		calls++
		if calls <= n {
			return "", failure
		}
		return "ok", nil
	}, &calls
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	fn, calls := failingN(2, statusErr(503))
	p := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Sleep: noSleep}

	v, err := Do(context.Background(), p, fn)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if v != "ok" {
		t.Fatalf("unexpected value %q", v)
	}
	if *calls != 3 {
		t.Fatalf("expected 3 calls, got %d", *calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	fn, calls := failingN(3, statusErr(500))
	p := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Sleep: noSleep}

	_, err := Do(context.Background(), p, fn)
	var se statusErr
	if !errors.As(err, &se) || int(se) != 500 {
		t.Fatalf("expected last error, got %v", err)
	}
	if *calls != 3 {
		t.Fatalf("expected 3 calls, got %d", *calls)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	fn, calls := failingN(5, errors.New("bad input"))
	retried := 0
	p := Policy{
		MaxAttempts: 5,
		Sleep:       noSleep,
		RetryIf:     func(error) bool { return false },
		OnRetry:     func(int, error, time.Duration) { retried++ },
	}

	if _, err := Do(context.Background(), p, fn); err == nil {
		t.Fatalf("expected error")
	}
	if *calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", *calls)
	}
	if retried != 0 {
		t.Fatalf("expected no retry callbacks, got %d", retried)
	}
}

func TestDo_BackoffWithinJitterAndClamped(t *testing.T) {
	for _, jitter := range []float64{-1, -0.5, 0, 0.5, 0.999} {
		var delays []time.Duration
		p := Policy{
			MaxAttempts:  7,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     1 * time.Second,
			Multiplier:   2,
			Sleep:        noSleep,
			Jitter:       func() float64 { return jitter },
			OnRetry:      func(_ int, _ error, d time.Duration) { delays = append(delays, d) },
		}
		fn, _ := failingN(10, statusErr(429))
		_, _ = Do(context.Background(), p, fn)

		if len(delays) != 6 {
			t.Fatalf("jitter=%v: expected 6 delays, got %d", jitter, len(delays))
		}

		nominal := 100 * time.Millisecond
		for i, d := range delays {
			lo := time.Duration(float64(nominal) * 0.9)
			hi := time.Duration(float64(nominal) * 1.1)
			if hi > p.MaxDelay {
				hi = p.MaxDelay
			}
			if lo > p.MaxDelay {
				lo = p.MaxDelay
			}
			if d < lo || d > hi {
				t.Fatalf("jitter=%v delay[%d]=%s outside [%s, %s]", jitter, i, d, lo, hi)
			}
			if d > p.MaxDelay {
				t.Fatalf("delay[%d]=%s exceeds max", i, d)
			}
			if i > 0 && nominal < p.MaxDelay && d < delays[i-1] {
				t.Fatalf("jitter=%v delays decreased before clamp: %v", jitter, delays)
			}
			nominal *= 2
			if nominal > p.MaxDelay {
				nominal = p.MaxDelay
			}
		}
	}
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{
		MaxAttempts:  5,
		InitialDelay: time.Hour,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		},
	}
	_, err := Do(ctx, p, func(context.Context) (int, error) {
		calls++
		return 0, statusErr(502)
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"429", statusErr(429), true},
		{"500", fmt.Errorf("wrapped: %w", statusErr(500)), true},
		{"404", statusErr(404), false},
		{"network", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"cancelled", context.Canceled, false},
		{"plain", errors.New("nope"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestPresets(t *testing.T) {
	api := API()
	if api.MaxAttempts != 3 || api.InitialDelay != time.Second {
		t.Fatalf("unexpected API preset: %+v", api)
	}
	c := Critical()
	if c.MaxAttempts != 5 || c.InitialDelay != 2*time.Second || c.MaxDelay != 60*time.Second {
		t.Fatalf("unexpected Critical preset: %+v", c)
	}
}
