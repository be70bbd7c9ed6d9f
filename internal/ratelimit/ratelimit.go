// Package ratelimit budgets outbound RPC requests with golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/fd1az/blockviz/internal/apperror"
)

// Limiter is a token bucket. A nil *Limiter never blocks.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond with the given burst.
// A burst below 1 is raised to 1; a non-positive rate means unlimited.
func New(requestsPerSecond float64, burst int) *Limiter {
	if requestsPerSecond <= 0 {
		return Unlimited()
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Unlimited returns a limiter that never blocks.
func Unlimited() *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
}

// Wait blocks until a request may be sent. Cancellation returns ctx's error;
// a wait that cannot finish before ctx's deadline fails fast with
// CodeRateLimitExceeded.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	err := l.limiter.Wait(ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperror.New(apperror.CodeRateLimitExceeded,
		apperror.WithCause(err),
		apperror.WithContext("local request budget exhausted"))
}

// Allow reports whether a request may be sent now.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}
