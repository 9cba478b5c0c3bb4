package retry

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"syscall"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultMultiplier  = 2.0

	jitterFraction = 0.10
)

// Policy configures Do. Zero fields fall back to the API() profile values.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// RetryIf reports whether err is worth another attempt. Defaults to IsTransient.
	RetryIf func(err error) bool
	// OnRetry observes every scheduled retry before the backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleep and Jitter are overridable for tests. Jitter returns a value in [-1, 1).
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func() float64
}

// API is the profile for ordinary third-party API calls.
func API() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   DefaultMultiplier,
	}
}

// Critical is the profile for operations whose failure loses data.
func Critical() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   DefaultMultiplier,
	}
}

func (p Policy) normalized() Policy {
	def := API()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.RetryIf == nil {
		p.RetryIf = IsTransient
	}
	if p.Sleep == nil {
		p.Sleep = sleep
	}
	if p.Jitter == nil {
		p.Jitter = func() float64 { return rand.Float64()*2 - 1 }
	}
	return p
}

// Do calls fn until it succeeds, the policy gives up, or ctx is done.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	current := p.InitialDelay
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !p.RetryIf(err) || attempt >= p.MaxAttempts {
			return zero, err
		}

		delay := p.delay(current)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if serr := p.Sleep(ctx, delay); serr != nil {
			return zero, err
		}
		current = clamp(time.Duration(float64(current)*p.Multiplier), p.MaxDelay)
	}
}

func Run(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (p Policy) delay(nominal time.Duration) time.Duration {
	j := p.Jitter()
	if j < -1 {
		j = -1
	}
	if j > 1 {
		j = 1
	}
	d := time.Duration(float64(nominal) * (1 + j*jitterFraction))
	return clamp(d, p.MaxDelay)
}

func clamp(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	if d < 0 {
		return 0
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type statusCoder interface {
	HTTPStatus() int
}

// IsTransient reports network failures, HTTP 429 and HTTP 5xx.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatus()
		return code == 429 || code >= 500
	}

	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
