package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notibot/internal/notify"
	"notibot/internal/subscription"
	logx "notibot/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []sentAlert
	fail bool
}

type sentAlert struct {
	chatID int64
	text   string
}

func (f *fakeSender) Send(_ context.Context, text string, chatID int64, _ *notify.Options) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false
	}
	f.sent = append(f.sent, sentAlert{chatID: chatID, text: text})
	return true
}

func (f *fakeSender) messages() []sentAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentAlert, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeSubs struct {
	ids []int64
}

func (f *fakeSubs) Subscribers(subscription.Topic) []int64 { return f.ids }

func fixedSampler(m Metrics) Sampler {
	return func(context.Context, string) (Metrics, error) { return m, nil }
}

func newTestService(sender Sender, subs SubscriberSource, sampler Sampler) *Service {
	s := New(Config{
		Interval:        time.Hour,
		CPUThreshold:    80,
		MemoryThreshold: 80,
		DiskThreshold:   90,
		AlertCooldown:   5 * time.Minute,
	}, sender, subs, logx.Nop())
	s.sampler = sampler
	return s
}

func TestAlertOnThresholdBreach(t *testing.T) {
	sender := &fakeSender{}
	s := newTestService(sender, &fakeSubs{ids: []int64{42}}, fixedSampler(Metrics{
		CPUPercent:    95,
		MemoryPercent: 50,
		DiskPercent:   50,
	}))

	s.checkOnce(context.Background())

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(42), msgs[0].chatID)
	assert.Contains(t, msgs[0].text, "CPU")
	assert.Contains(t, msgs[0].text, "95.0%")
	assert.Contains(t, msgs[0].text, "80.0%")
}

func TestNoAlertBelowThreshold(t *testing.T) {
	sender := &fakeSender{}
	s := newTestService(sender, &fakeSubs{ids: []int64{42}}, fixedSampler(Metrics{
		CPUPercent:    50,
		MemoryPercent: 50,
		DiskPercent:   50,
	}))

	s.checkOnce(context.Background())
	assert.Empty(t, sender.messages())
}

func TestCooldownSuppression(t *testing.T) {
	sender := &fakeSender{}
	s := newTestService(sender, &fakeSubs{ids: []int64{42}}, fixedSampler(Metrics{CPUPercent: 95}))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }

	s.checkOnce(context.Background())
	require.Len(t, sender.messages(), 1)

	// 10s later: inside the 5m window, suppressed.
	clock = base.Add(10 * time.Second)
	s.checkOnce(context.Background())
	assert.Len(t, sender.messages(), 1)

	// 400s later: window expired, fires again.
	clock = base.Add(400 * time.Second)
	s.checkOnce(context.Background())
	assert.Len(t, sender.messages(), 2)
}

func TestCooldownKeyedPerMetric(t *testing.T) {
	sender := &fakeSender{}
	s := newTestService(sender, &fakeSubs{ids: []int64{42}}, fixedSampler(Metrics{
		CPUPercent:    95,
		MemoryPercent: 91,
	}))

	s.checkOnce(context.Background())

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].text, "CPU")
	assert.Contains(t, msgs[1].text, "Memory")
}

func TestAlertContinuesPastSendFailure(t *testing.T) {
	sender := &fakeSender{fail: true}
	s := newTestService(sender, &fakeSubs{ids: []int64{1, 2, 3}}, fixedSampler(Metrics{CPUPercent: 95}))

	// Must not panic or abort; failures are logged per recipient.
	s.checkOnce(context.Background())
	assert.Empty(t, sender.messages())
}

func TestSamplerErrorDoesNotAlert(t *testing.T) {
	sender := &fakeSender{}
	s := newTestService(sender, &fakeSubs{ids: []int64{42}}, func(context.Context, string) (Metrics, error) {
		return Metrics{}, errors.New("proc unavailable")
	})

	s.checkOnce(context.Background())
	assert.Empty(t, sender.messages())
}

func TestStartIdempotent(t *testing.T) {
	sender := &fakeSender{}
	s := newTestService(sender, &fakeSubs{}, fixedSampler(Metrics{}))

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)
	assert.True(t, s.Running())

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	s.Stop(stopCtx)
	assert.False(t, s.Running())

	// Stop after stop is a no-op.
	s.Stop(stopCtx)
}

func TestPanicInCheckDoesNotStopLoop(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	sampler := func(context.Context, string) (Metrics, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			panic("sampler exploded")
		}
		return Metrics{}, nil
	}

	s := New(Config{Interval: 10 * time.Millisecond}, &fakeSender{}, &fakeSubs{}, logx.Nop())
	s.sampler = sampler

	ctx := context.Background()
	s.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		s.Stop(stopCtx)
	}()

	// The first tick panics; later ticks must still run.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, time.Second, 5*time.Millisecond)
	assert.True(t, s.Running())
}

func TestSendSystemReportToOne(t *testing.T) {
	sender := &fakeSender{}
	s := newTestService(sender, &fakeSubs{ids: []int64{1, 2}}, fixedSampler(Metrics{
		CPUPercent:    12.5,
		MemoryPercent: 40,
		DiskPercent:   55,
	}))

	s.SendSystemReport(context.Background(), 99)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(99), msgs[0].chatID)
	assert.True(t, strings.Contains(msgs[0].text, "System Status"))
	assert.Contains(t, msgs[0].text, "12.5%")
}

func TestSendSystemReportFanOut(t *testing.T) {
	sender := &fakeSender{}
	s := newTestService(sender, &fakeSubs{ids: []int64{1, 2, 3}}, fixedSampler(Metrics{}))

	s.SendSystemReport(context.Background(), 0)
	assert.Len(t, sender.messages(), 3)
}

func TestCurrentMetricsMap(t *testing.T) {
	s := newTestService(&fakeSender{}, &fakeSubs{}, fixedSampler(Metrics{
		CPUPercent:    33,
		MemoryPercent: 44,
		DiskPercent:   55,
	}))

	m := s.CurrentMetrics(context.Background())
	assert.Equal(t, 33.0, m["cpu_percent"])
	assert.Equal(t, 44.0, m["memory_percent"])
	assert.Equal(t, 55.0, m["disk_percent"])
}
