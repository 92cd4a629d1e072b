// Package scheduler runs time-triggered notification jobs. Cron and
// interval triggers ride a shared robfig/cron engine; one-shot date
// triggers use plain timers and deregister themselves after firing.
// Fired jobs are executed by a bounded worker pool so a slow delivery
// never blocks the trigger engine.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"notibot/internal/metrics"
	"notibot/internal/notify"
	"notibot/internal/subscription"
	logx "notibot/pkg/logx"
)

type Config struct {
	Enabled     bool
	Workers     int    // default 5
	Timezone    string // IANA name, empty = local
	DefaultJobs bool   // install daily report + weekly summary on Start
	JobTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Minute
	}
	return c
}

// Sender is the slice of the delivery service jobs need.
type Sender interface {
	Send(ctx context.Context, text string, chatID int64, opt *notify.Options) bool
}

// SubscriberSource resolves recipients for jobs scheduled without an
// explicit recipient list.
type SubscriberSource interface {
	Subscribers(topic subscription.Topic) []int64
}

// ReportFunc sends a system report; chatID 0 means every "system"
// subscriber. Wired from the monitor for the default daily job.
type ReportFunc func(ctx context.Context, chatID int64)

// JobInfo is the listing view of one scheduled job.
type JobInfo struct {
	ID         string    `json:"id"`
	Message    string    `json:"message,omitempty"`
	Recipients []int64   `json:"recipients,omitempty"`
	Trigger    string    `json:"trigger"`
	CreatedAt  time.Time `json:"created_at"`
	NextRun    time.Time `json:"next_run,omitempty"`
}

type jobEntry struct {
	id         string
	message    string
	recipients []int64
	trig       Trigger
	createdAt  time.Time
	run        func(ctx context.Context)

	entryID cron.EntryID // cron/interval jobs
	timer   *time.Timer  // date jobs
}

type task struct {
	id      string
	kind    string
	timeout time.Duration
	run     func(ctx context.Context)
}

type Service struct {
	mu sync.Mutex

	cfg    Config
	sender Sender
	subs   SubscriberSource
	report ReportFunc
	log    logx.Logger
	loc    *time.Location

	parser cron.Parser
	c      *cron.Cron
	jobs   map[string]*jobEntry

	queue    chan task
	stopCh   chan struct{}
	workerWG sync.WaitGroup
	inflight sync.WaitGroup
}

func New(cfg Config, sender Sender, subs SubscriberSource, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg.withDefaults(),
		sender: sender,
		subs:   subs,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:   map[string]*jobEntry{},
	}
}

// SetReportFunc wires the system-report callback used by the default
// daily job. Must be called before Start.
func (s *Service) SetReportFunc(fn ReportFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = fn
}

func (s *Service) Enabled() bool { return s.cfg.Enabled }

// Start arms the trigger engine, spawns the worker pool and installs
// the default recurring jobs when configured. Double start is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		s.log.Warn("scheduler already running")
		return
	}
	s.stopCh = make(chan struct{})
	s.queue = make(chan task, 64)

	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))

	// arm jobs registered before start
	for _, j := range s.jobs {
		if err := s.armLocked(j); err != nil {
			s.log.Error("failed to arm job", logx.String("job_id", j.id), logx.Err(err))
		}
	}

	for i := 0; i < s.cfg.Workers; i++ {
		s.workerWG.Add(1)
		go s.worker(ctx, s.stopCh, s.queue)
	}
	s.c.Start()
	s.mu.Unlock()

	if s.cfg.DefaultJobs {
		s.installDefaultJobs()
	}

	s.log.Info("scheduler started",
		logx.Int("workers", s.cfg.Workers),
		logx.String("tz", s.loc.String()))
}

// Stop cancels every trigger and waits for in-flight job executions to
// finish before returning.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil

	<-s.c.Stop().Done()
	s.c = nil
	for _, j := range s.jobs {
		if j.timer != nil {
			j.timer.Stop()
			j.timer = nil
		}
		j.entryID = 0
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs in flight")
	}
}

// Schedule registers a message job under jobID. An existing job with
// the same id is cancelled first, so at most one trigger is ever live
// per id. Returns false on an invalid trigger.
func (s *Service) Schedule(jobID, message string, recipients []int64, trig Trigger) bool {
	if strings.TrimSpace(jobID) == "" {
		s.log.Warn("schedule rejected: empty job id")
		return false
	}
	if err := validateTrigger(trig); err != nil {
		s.log.Warn("schedule rejected", logx.String("job_id", jobID), logx.Err(err))
		return false
	}

	recips := make([]int64, len(recipients))
	copy(recips, recipients)

	j := &jobEntry{
		id:         jobID,
		message:    message,
		recipients: recips,
		trig:       trig,
		createdAt:  time.Now(),
	}
	j.run = func(ctx context.Context) { s.deliverJob(ctx, j) }
	return s.add(j)
}

// ScheduleFunc registers a callback job. Used for jobs whose work is
// not a fixed message, like the default system report.
func (s *Service) ScheduleFunc(jobID string, trig Trigger, fn func(ctx context.Context)) bool {
	if strings.TrimSpace(jobID) == "" || fn == nil {
		return false
	}
	if err := validateTrigger(trig); err != nil {
		s.log.Warn("schedule rejected", logx.String("job_id", jobID), logx.Err(err))
		return false
	}
	j := &jobEntry{id: jobID, trig: trig, createdAt: time.Now(), run: fn}
	return s.add(j)
}

func (s *Service) add(j *jobEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[j.id]; ok {
		s.cancelLocked(old)
	}
	s.jobs[j.id] = j

	if s.c != nil {
		if err := s.armLocked(j); err != nil {
			delete(s.jobs, j.id)
			s.log.Warn("schedule rejected", logx.String("job_id", j.id), logx.Err(err))
			return false
		}
	}
	s.log.Info("job scheduled",
		logx.String("job_id", j.id),
		logx.String("trigger", j.trig.Describe()))
	return true
}

// Unschedule removes a job. Returns false when no such job exists.
func (s *Service) Unschedule(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return false
	}
	s.cancelLocked(j)
	delete(s.jobs, jobID)
	s.log.Info("job unscheduled", logx.String("job_id", jobID))
	return true
}

// Jobs lists registered jobs sorted by id.
func (s *Service) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		info := JobInfo{
			ID:         j.id,
			Message:    j.message,
			Recipients: append([]int64(nil), j.recipients...),
			Trigger:    j.trig.Describe(),
			CreatedAt:  j.createdAt,
		}
		if s.c != nil && j.entryID != 0 {
			info.NextRun = s.c.Entry(j.entryID).Next
		}
		if dt, ok := j.trig.(DateTrigger); ok {
			info.NextRun = dt.At
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

func (s *Service) armLocked(j *jobEntry) error {
	switch t := j.trig.(type) {
	case CronTrigger:
		id, err := s.c.AddFunc(t.spec(), func() { s.enqueue(j, "cron") })
		if err != nil {
			return fmt.Errorf("bad cron spec %q: %w", t.spec(), err)
		}
		j.entryID = id
	case IntervalTrigger:
		spec := "@every " + t.Every.String()
		id, err := s.c.AddFunc(spec, func() { s.enqueue(j, "interval") })
		if err != nil {
			return fmt.Errorf("bad interval %s: %w", t.Every, err)
		}
		j.entryID = id
	case DateTrigger:
		delay := time.Until(t.At)
		if delay < 0 {
			delay = 0
		}
		j.timer = time.AfterFunc(delay, func() { s.fireDate(j) })
	}
	return nil
}

func (s *Service) cancelLocked(j *jobEntry) {
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	if s.c != nil && j.entryID != 0 {
		s.c.Remove(j.entryID)
		j.entryID = 0
	}
}

// fireDate runs when a one-shot timer fires. The registration is dropped
// only once the task made it onto the queue; a job lost to a full queue
// stays listed so it can be seen and rescheduled.
func (s *Service) fireDate(j *jobEntry) {
	if !s.enqueue(j, "date") {
		return
	}
	s.mu.Lock()
	if cur, ok := s.jobs[j.id]; ok && cur == j {
		delete(s.jobs, j.id)
	}
	s.mu.Unlock()
}

func (s *Service) enqueue(j *jobEntry, kind string) bool {
	t := task{id: j.id, kind: kind, timeout: s.cfg.JobTimeout, run: j.run}
	select {
	case s.queue <- t:
		return true
	default:
		s.log.Warn("scheduler queue full, dropping job", logx.String("job_id", j.id))
		return false
	}
}

func (s *Service) worker(ctx context.Context, stopCh chan struct{}, queue chan task) {
	defer s.workerWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, t task) {
	s.inflight.Add(1)
	defer s.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduled job",
				logx.String("job_id", t.id),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	t.run(runCtx)
	metrics.JobsFired.WithLabelValues(t.kind).Inc()
	s.log.Info("job executed",
		logx.String("job_id", t.id),
		logx.String("trigger", t.kind),
		logx.Duration("took", time.Since(start)))
}

// deliverJob sends the job message to each recipient in order. Jobs
// scheduled without explicit recipients fan out to the "scheduled"
// topic subscribers at fire time.
func (s *Service) deliverJob(ctx context.Context, j *jobEntry) {
	recipients := j.recipients
	if len(recipients) == 0 && s.subs != nil {
		recipients = s.subs.Subscribers(subscription.TopicScheduled)
	}
	if len(recipients) == 0 {
		s.log.Warn("job has no recipients", logx.String("job_id", j.id))
		return
	}
	opt := &notify.Options{ParseMode: "Markdown"}
	for _, chatID := range recipients {
		if ok := s.sender.Send(ctx, j.message, chatID, opt); !ok {
			s.log.Warn("job delivery failed",
				logx.String("job_id", j.id),
				logx.Int64("chat_id", chatID))
		}
	}
}

func (s *Service) installDefaultJobs() {
	s.mu.Lock()
	report := s.report
	s.mu.Unlock()

	if report != nil {
		s.ScheduleFunc("daily_report", CronTrigger{Minute: "0", Hour: "9"}, func(ctx context.Context) {
			report(ctx, 0)
		})
	}
	s.Schedule("weekly_summary",
		"📊 *Weekly Summary*\n\nAnother week of smooth operation. Check /api/system for current status.",
		nil,
		CronTrigger{Minute: "0", Hour: "10", Dow: "1"})
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
