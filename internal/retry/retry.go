// Package retry wraps fallible transport calls in bounded retries.
//
// Three error classes get three behaviors:
//   - rate-limit signal: wait the platform-reported delay, then exactly
//     one extra attempt outside the retry budget
//   - transient failure: exponential backoff with jitter, bounded attempts
//   - anything else: fail fast
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"notibot/internal/metrics"
	"notibot/internal/transport"
	logx "notibot/pkg/logx"
)

type Config struct {
	MaxAttempts int           // total attempts for transient errors (default 3)
	BaseDelay   time.Duration // default 1s
	ExpBase     float64       // default 2.0
	// AttemptTimeout bounds a single attempt so a hung call cannot eat
	// the whole retry budget. 0 disables the per-attempt deadline.
	AttemptTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.ExpBase <= 0 {
		c.ExpBase = 2.0
	}
	return c
}

type Executor struct {
	cfg Config
	log logx.Logger

	// sleep and jitter are swappable for tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

func New(cfg Config, log logx.Logger) *Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Executor{
		cfg:    cfg.withDefaults(),
		log:    log,
		sleep:  sleepCtx,
		jitter: func() float64 { return 0.1 + rand.Float64()*0.8 },
	}
}

// Do runs op under the retry policy and returns the final error (nil on
// success). A rate-limit signal at any point switches to the deferred
// single-retry path; it is never looped on.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	err := e.doTransient(ctx, op)
	rl, ok := transport.AsRateLimited(err)
	if !ok {
		return err
	}

	metrics.RateLimitWaits.Inc()
	e.log.Warn("rate limited, deferring one retry", logx.Duration("retry_after", rl.RetryAfter))
	if serr := e.sleep(ctx, rl.RetryAfter); serr != nil {
		return serr
	}
	if err := e.attempt(ctx, op); err != nil {
		e.log.Error("send failed after rate-limit wait", logx.Err(err))
		return err
	}
	return nil
}

func (e *Executor) doTransient(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for k := 0; k < e.cfg.MaxAttempts; k++ {
		err := e.attempt(ctx, op)
		if err == nil {
			return nil
		}
		if _, ok := transport.AsRateLimited(err); ok {
			return err
		}
		if !transport.IsTransient(err) {
			e.log.Error("non-retryable error", logx.Err(err))
			return err
		}
		last = err

		if k == e.cfg.MaxAttempts-1 {
			e.log.Error("all retry attempts failed",
				logx.Int("max_attempts", e.cfg.MaxAttempts), logx.Err(err))
			break
		}

		delay := e.backoff(k)
		metrics.RetriesTotal.Inc()
		e.log.Warn("transient error, retrying",
			logx.Int("attempt", k+1),
			logx.Int("max_attempts", e.cfg.MaxAttempts),
			logx.Duration("delay", delay),
			logx.Err(err))
		if serr := e.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return last
}

func (e *Executor) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	if e.cfg.AttemptTimeout > 0 {
		actx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		defer cancel()
		return op(actx)
	}
	return op(ctx)
}

// backoff computes base * expBase^k scaled by a jitter factor drawn
// uniformly from [0.1, 0.9).
func (e *Executor) backoff(k int) time.Duration {
	d := float64(e.cfg.BaseDelay)
	for i := 0; i < k; i++ {
		d *= e.cfg.ExpBase
	}
	return time.Duration(d * e.jitter())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
