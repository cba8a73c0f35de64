package catalog

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"slices"
	"strings"
	"time"
)

// RetryConfig bounds how often a failed upstream GET is repeated and how
// long to wait in between.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig keeps retries short: the user is waiting on a search.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}
}

// backoff yields the waits between attempts. Every wait and the base it
// grows from stay under max when max is set.
type backoff struct {
	base   time.Duration
	max    time.Duration
	factor float64
	jitter func(time.Duration) time.Duration
}

func newBackoff(cfg RetryConfig) *backoff {
	return &backoff{
		base:   cfg.InitialDelay,
		max:    cfg.MaxDelay,
		factor: max(cfg.Multiplier, 1),
		jitter: spread,
	}
}

func (b *backoff) step() time.Duration {
	wait := b.clamp(b.jitter(b.base))
	b.base = b.clamp(time.Duration(float64(b.base) * b.factor))
	return wait
}

func (b *backoff) clamp(d time.Duration) time.Duration {
	if b.max > 0 {
		return min(d, b.max)
	}
	return d
}

// spread picks a wait within 25% either side of d.
func spread(d time.Duration) time.Duration {
	if d < 2 {
		return d
	}
	return d*3/4 + rand.N(d/2)
}

// withRetry calls fn until it succeeds, fails permanently, runs out of
// attempts or ctx ends. The last error is returned as is.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)
	b := newBackoff(cfg)
	for n := 1; ; n++ {
		err := fn()
		if err == nil || n >= attempts || ctx.Err() != nil || !transient(err) {
			return err
		}
		if err := pause(ctx, b.step()); err != nil {
			return err
		}
	}
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var transientMarkers = []string{"timeout", "connection reset", "connection refused"}

// transient reports network failures and retryable statuses. A caller
// cancellation never is.
func transient(err error) bool {
	var apiErr *Error
	var netErr net.Error
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.As(err, &apiErr):
		return apiErr.Temporary()
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	msg := strings.ToLower(err.Error())
	return slices.ContainsFunc(transientMarkers, func(m string) bool {
		return strings.Contains(msg, m)
	})
}
