package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func alwaysRetry(error) bool { return true }

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Multiplier: 2, MaxInterval: 500 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 500*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 500*time.Millisecond, p.Backoff(10))
}

func TestBackoffJitterStaysBelowCeiling(t *testing.T) {
	p := Policy{Initial: time.Second, Multiplier: 2, MaxInterval: 4 * time.Second, Jitter: true}
	for attempt := range 10 {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 4*time.Second)
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	calls := 0
	err := Do(context.Background(), Policy{Initial: time.Second, Multiplier: 2, MaxElapsed: time.Minute}, alwaysRetry,
		func(context.Context) error {
			calls++
			if calls < 3 {
				return errFlaky
			}
			return nil
		}, withClock(clock.Now, clock.Sleep))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.sleeps)
}

func TestDoStopsWhenBudgetIsSpent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	calls := 0
	err := Do(context.Background(), Policy{Initial: 10 * time.Second, Multiplier: 2, MaxElapsed: 60 * time.Second}, alwaysRetry,
		func(context.Context) error {
			calls++
			return errFlaky
		}, withClock(clock.Now, clock.Sleep), WithOp("case 5678"))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.ErrorIs(t, err, errFlaky)
	// waits of 10s, 20s fit in the budget; 40s more would not.
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, "case 5678", exhausted.Op)
	assert.LessOrEqual(t, exhausted.Elapsed, 60*time.Second)
}

func TestDoDoesNotRetryRejectedErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Default(), func(error) bool { return false },
		func(context.Context) error {
			calls++
			return errFlaky
		})
	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Default(), alwaysRetry, func(context.Context) error {
		calls++
		cancel()
		return errFlaky
	})
	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestDoCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Do(ctx, Policy{Initial: time.Hour, Multiplier: 1}, alwaysRetry, func(context.Context) error {
		return errFlaky
	})
	require.ErrorIs(t, err, errFlaky)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
