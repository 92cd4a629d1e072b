package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notibot/internal/transport"
	logx "notibot/pkg/logx"
)

func newTestExecutor(t *testing.T, cfg Config) (*Executor, *[]time.Duration) {
	t.Helper()
	e := New(cfg, logx.Nop())
	slept := &[]time.Duration{}
	e.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	e.jitter = func() float64 { return 0.5 }
	return e, slept
}

func TestTransientRetriesExactlyMaxAttempts(t *testing.T) {
	t.Parallel()
	e, slept := newTestExecutor(t, Config{MaxAttempts: 3, BaseDelay: time.Second, ExpBase: 2})

	calls := 0
	errNet := errors.New("connection reset")
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return errNet
	})

	require.ErrorIs(t, err, errNet)
	assert.Equal(t, 3, calls)
	// Two backoff sleeps between three attempts: 1s*0.5, 2s*0.5.
	require.Len(t, *slept, 2)
	assert.Equal(t, 500*time.Millisecond, (*slept)[0])
	assert.Equal(t, time.Second, (*slept)[1])
}

func TestTransientEventuallySucceeds(t *testing.T) {
	t.Parallel()
	e, _ := newTestExecutor(t, Config{})

	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("blip")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRateLimitSingleDeferredRetry(t *testing.T) {
	t.Parallel()
	e, slept := newTestExecutor(t, Config{})

	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return &transport.RateLimitedError{RetryAfter: 7 * time.Second}
	})

	// Original attempt + exactly one deferred retry, never more.
	assert.Equal(t, 2, calls)
	require.Error(t, err)
	require.Len(t, *slept, 1)
	assert.Equal(t, 7*time.Second, (*slept)[0])
}

func TestRateLimitThenSuccess(t *testing.T) {
	t.Parallel()
	e, _ := newTestExecutor(t, Config{})

	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &transport.RateLimitedError{RetryAfter: time.Second}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestPermanentErrorFailsFast(t *testing.T) {
	t.Parallel()
	e, slept := newTestExecutor(t, Config{})

	calls := 0
	perm := &transport.PermanentError{Code: 400, Msg: "chat not found"}
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return perm
	})

	require.ErrorIs(t, err, error(perm))
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestSleepObservesCancellation(t *testing.T) {
	t.Parallel()
	e := New(Config{MaxAttempts: 5, BaseDelay: time.Hour}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Do(ctx, func(context.Context) error {
		return errors.New("blip")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoffJitterRange(t *testing.T) {
	t.Parallel()
	e := New(Config{BaseDelay: time.Second, ExpBase: 2}, logx.Nop())

	for i := 0; i < 200; i++ {
		d := e.backoff(1) // base*2 scaled by jitter in [0.1, 0.9)
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.Less(t, d, 1800*time.Millisecond)
	}
}
