package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket. A nil *Limiter allows everything.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter allows r events per second with bursts of b.
func NewLimiter(r float64, b int) *Limiter {
	return &Limiter{inner: rate.NewLimiter(rate.Limit(r), b)}
}

// PerMinute allows n events per minute with a burst of n. n <= 0 disables
// limiting.
func PerMinute(n int) *Limiter {
	if n <= 0 {
		return &Limiter{inner: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Limiter{inner: rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)}
}

// AllowAt reports whether one event may happen at t and consumes a token if so.
func (l *Limiter) AllowAt(t time.Time) bool {
	if l == nil {
		return true
	}
	return l.inner.AllowN(t, 1)
}

func (l *Limiter) Allow() bool {
	return l.AllowAt(time.Now())
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.inner.Wait(ctx)
}
