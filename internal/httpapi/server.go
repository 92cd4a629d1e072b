// Package httpapi exposes the notification relay over REST: direct
// sends, topic alerts, subscription management, scheduling and system
// status, plus a signed webhook intake for external producers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notibot/internal/notify"
	"notibot/internal/scheduler"
	"notibot/internal/subscription"
	logx "notibot/pkg/logx"
)

type Config struct {
	Addr string // default "127.0.0.1:8080"
	// Token protects /api/* with a bearer check. Empty disables auth;
	// bind to loopback in that case.
	Token string
	// WebhookSecret verifies /webhook callers, either as a shared
	// token or as an HMAC-SHA256 body signature.
	WebhookSecret string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	return c
}

// Notifier is the delivery surface the API drives.
type Notifier interface {
	Send(ctx context.Context, text string, chatID int64, opt *notify.Options) bool
	SendToMany(ctx context.Context, text string, chatIDs []int64, opt *notify.Options) []bool
	SendToDefault(ctx context.Context, text string, opt *notify.Options) []bool
	TestConnectivity(ctx context.Context) bool
	DefaultRecipients() []int64
}

// Registry is the subscription surface.
type Registry interface {
	Subscribe(userID int64, topic subscription.Topic) bool
	Unsubscribe(userID int64, topic subscription.Topic) bool
	Subscribers(topic subscription.Topic) []int64
	All() map[int64][]subscription.Topic
	Stats() subscription.Stats
}

// Monitor is the system-status surface.
type Monitor interface {
	CurrentMetrics(ctx context.Context) map[string]float64
	SendSystemReport(ctx context.Context, chatID int64)
	Running() bool
}

// Scheduler is the job-management surface.
type Scheduler interface {
	Schedule(jobID, message string, recipients []int64, trig scheduler.Trigger) bool
	Unschedule(jobID string) bool
	Jobs() []scheduler.JobInfo
}

type Server struct {
	cfg      Config
	notifier Notifier
	registry Registry
	monitor  Monitor
	sched    Scheduler
	log      logx.Logger

	srv *http.Server
}

func New(cfg Config, notifier Notifier, registry Registry, monitor Monitor, sched Scheduler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg:      cfg.withDefaults(),
		notifier: notifier,
		registry: registry,
		monitor:  monitor,
		sched:    sched,
		log:      log,
	}
}

// Router builds the chi mux. Split out so tests can drive handlers
// without a listening socket.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/webhook", s.handleWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/notify", s.handleNotify)
		r.Post("/alert", s.handleAlert)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", s.handleListSubscriptions)
			r.Post("/", s.handleSubscribe)
			r.Delete("/{userID}/{topic}", s.handleUnsubscribe)
		})

		r.Get("/system", s.handleSystemMetrics)
		r.Post("/system/report", s.handleSystemReport)

		r.Route("/schedule", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleSchedule)
			r.Delete("/{jobID}", s.handleUnschedule)
		})
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", logx.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutCtx); err != nil {
		return err
	}
	s.log.Info("http api stopped")
	return nil
}
