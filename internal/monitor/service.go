// Package monitor samples host metrics on a fixed cadence, compares
// them against configured thresholds and relays alerts to "system"
// topic subscribers. The loop is self-healing: a bad sample is logged
// and the next tick proceeds as normal.
package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"notibot/internal/metrics"
	"notibot/internal/notify"
	"notibot/internal/subscription"
	logx "notibot/pkg/logx"
)

type Config struct {
	Enabled         bool
	Interval        time.Duration // default 60s
	CPUThreshold    float64       // default 80
	MemoryThreshold float64       // default 80
	DiskThreshold   float64       // default 90
	AlertCooldown   time.Duration // default 300s
	DiskPath        string        // default "/"
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.CPUThreshold <= 0 {
		c.CPUThreshold = 80
	}
	if c.MemoryThreshold <= 0 {
		c.MemoryThreshold = 80
	}
	if c.DiskThreshold <= 0 {
		c.DiskThreshold = 90
	}
	if c.AlertCooldown <= 0 {
		c.AlertCooldown = 5 * time.Minute
	}
	if c.DiskPath == "" {
		c.DiskPath = "/"
	}
	return c
}

// Sender is the slice of the delivery service the monitor needs.
type Sender interface {
	Send(ctx context.Context, text string, chatID int64, opt *notify.Options) bool
}

// SubscriberSource resolves topic fan-out targets.
type SubscriberSource interface {
	Subscribers(topic subscription.Topic) []int64
}

type Service struct {
	cfg     Config
	sender  Sender
	subs    SubscriberSource
	log     logx.Logger
	sampler Sampler
	now     func() time.Time

	mu         sync.Mutex
	running    bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
	lastAlerts map[string]time.Time // (metric, threshold) key -> last firing
}

func New(cfg Config, sender Sender, subs SubscriberSource, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:        cfg.withDefaults(),
		sender:     sender,
		subs:       subs,
		log:        log,
		sampler:    SystemSampler,
		now:        time.Now,
		lastAlerts: map[string]time.Time{},
	}
}

// Start launches the sampling loop. Starting twice is a no-op with a
// warning, not an error.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("monitoring already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.log.Info("monitoring started",
		logx.Duration("interval", s.cfg.Interval),
		logx.Float64("cpu_threshold", s.cfg.CPUThreshold),
		logx.Float64("memory_threshold", s.cfg.MemoryThreshold),
		logx.Float64("disk_threshold", s.cfg.DiskThreshold))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx, stopCh)
	}()
}

// Stop signals the loop and waits for the current iteration to finish.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("monitoring stopped")
	case <-ctx.Done():
		s.log.Warn("monitoring stop timed out")
	}
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick contains one check. A panic in the sampler or the alert path
// kills that tick only; the loop keeps its schedule.
func (s *Service) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in monitoring check", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	s.checkOnce(ctx)
}

// checkOnce samples and evaluates thresholds. Errors never escape: the
// loop sleeps its normal interval and tries again next tick.
func (s *Service) checkOnce(ctx context.Context) {
	m, err := s.sampler(ctx, s.cfg.DiskPath)
	if err != nil {
		s.log.Error("metric sampling failed", logx.Err(err))
		return
	}

	if m.CPUPercent > s.cfg.CPUThreshold {
		s.maybeAlert(ctx, "CPU", m.CPUPercent, s.cfg.CPUThreshold)
	}
	if m.MemoryPercent > s.cfg.MemoryThreshold {
		s.maybeAlert(ctx, "Memory", m.MemoryPercent, s.cfg.MemoryThreshold)
	}
	if m.DiskPercent > s.cfg.DiskThreshold {
		s.maybeAlert(ctx, "Disk", m.DiskPercent, s.cfg.DiskThreshold)
	}

	s.log.Debug("system metrics checked",
		logx.Float64("cpu", m.CPUPercent),
		logx.Float64("memory", m.MemoryPercent),
		logx.Float64("disk", m.DiskPercent))
}

// maybeAlert fires an alert for one breach unless the same
// (metric, threshold) pair fired within the cooldown window.
func (s *Service) maybeAlert(ctx context.Context, metric string, value, threshold float64) {
	key := fmt.Sprintf("%s_%g", metric, threshold)
	now := s.now()

	s.mu.Lock()
	if last, ok := s.lastAlerts[key]; ok && now.Sub(last) < s.cfg.AlertCooldown {
		s.mu.Unlock()
		metrics.AlertsSuppressed.WithLabelValues(metric).Inc()
		s.log.Debug("alert suppressed by cooldown", logx.String("metric", metric))
		return
	}
	s.lastAlerts[key] = now
	s.mu.Unlock()

	metrics.AlertsTotal.WithLabelValues(metric).Inc()

	subscribers := s.subs.Subscribers(subscription.TopicSystem)
	if len(subscribers) == 0 {
		s.log.Warn("no subscribers for system alerts", logx.String("metric", metric))
		return
	}

	msg := formatAlert(metric, value, threshold, "%", now)
	for _, chatID := range subscribers {
		if ok := s.sender.Send(ctx, msg, chatID, &notify.Options{ParseMode: "Markdown"}); ok {
			s.log.Info("alert sent",
				logx.String("metric", metric),
				logx.Int64("user_id", chatID),
				logx.Float64("value", value),
				logx.Float64("threshold", threshold))
		} else {
			s.log.Warn("failed to send alert", logx.String("metric", metric), logx.Int64("user_id", chatID))
		}
	}
}

// CurrentMetrics takes a fresh sample independent of the loop cadence.
func (s *Service) CurrentMetrics(ctx context.Context) map[string]float64 {
	m, err := s.sampler(ctx, s.cfg.DiskPath)
	if err != nil {
		s.log.Error("metric sampling failed", logx.Err(err))
		return map[string]float64{}
	}
	return m.Map()
}

// SendSystemReport formats the current sample and sends it either to
// one recipient (chatID != 0) or to every "system" subscriber.
func (s *Service) SendSystemReport(ctx context.Context, chatID int64) {
	m, err := s.sampler(ctx, s.cfg.DiskPath)
	if err != nil {
		s.log.Error("system report sampling failed", logx.Err(err))
		return
	}
	msg := formatReport(m, s.now())
	opt := &notify.Options{ParseMode: "Markdown"}

	if chatID != 0 {
		s.sender.Send(ctx, msg, chatID, opt)
		s.log.Info("system report sent", logx.Int64("chat_id", chatID))
		return
	}

	subscribers := s.subs.Subscribers(subscription.TopicSystem)
	for _, id := range subscribers {
		s.sender.Send(ctx, msg, id, opt)
	}
	s.log.Info("system report sent", logx.Int("subscribers", len(subscribers)))
}

// DiskUsage reports usage of an arbitrary path for status surfaces.
func (s *Service) DiskUsage(ctx context.Context, path string) (DiskUsage, error) {
	if path == "" {
		path = s.cfg.DiskPath
	}
	du, err := ReadDiskUsage(ctx, path)
	if err != nil {
		s.log.Error("disk usage read failed", logx.String("path", path), logx.Err(err))
	}
	return du, err
}
