// Package retry runs operations under an exponential backoff with a total
// time budget.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/JakeFAU/causas-crawler/internal/metrics"
	"go.uber.org/zap"
)

// Policy shapes the backoff between attempts.
type Policy struct {
	Initial     time.Duration
	Multiplier  float64
	MaxInterval time.Duration
	// MaxElapsed bounds the total time spent retrying; zero means no budget.
	MaxElapsed time.Duration
	Jitter     bool
}

// Default is the policy used for per-case fetches.
func Default() Policy {
	return Policy{
		Initial:     250 * time.Millisecond,
		Multiplier:  2,
		MaxInterval: 10 * time.Second,
		MaxElapsed:  60 * time.Second,
		Jitter:      true,
	}
}

// Backoff returns the wait before attempt+1 (attempt is zero based).
func (p Policy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.Initial) * math.Pow(mult, float64(attempt))
	if p.MaxInterval > 0 && delay > float64(p.MaxInterval) {
		delay = float64(p.MaxInterval)
	}
	if !p.Jitter {
		return time.Duration(delay)
	}
	return randomJitter(time.Duration(delay))
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// ExhaustedError is returned when the budget ran out before fn succeeded.
type ExhaustedError struct {
	Op       string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts in %s: %v", e.Op, e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type options struct {
	op     string
	logger *zap.Logger
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

// Option tunes a single Do call.
type Option func(*options)

// WithOp names the operation in logs, metrics and errors.
func WithOp(op string) Option {
	return func(o *options) {
		o.op = op
	}
}

// WithLogger logs each scheduled retry at warn level.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func withClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(o *options) {
		o.now = now
		o.sleep = sleep
	}
}

// Do calls fn until it succeeds, returns an error retryable rejects, the
// context ends, or the next wait would overrun the policy budget.
func Do(ctx context.Context, policy Policy, retryable func(error) bool, fn func(context.Context) error, opts ...Option) error {
	o := options{
		op:     "operation",
		logger: zap.NewNop(),
		now:    time.Now,
		sleep:  sleep,
	}
	for _, opt := range opts {
		opt(&o)
	}

	start := o.now()
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || retryable == nil || !retryable(err) {
			return err
		}
		wait := policy.Backoff(attempt)
		elapsed := o.now().Sub(start)
		if policy.MaxElapsed > 0 && elapsed+wait > policy.MaxElapsed {
			return &ExhaustedError{Op: o.op, Attempts: attempt + 1, Elapsed: elapsed, Err: err}
		}
		metrics.ObserveRetry(o.op)
		o.logger.Warn("retrying after failure",
			zap.String("op", o.op),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if serr := o.sleep(ctx, wait); serr != nil {
			return errors.Join(err, serr)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
