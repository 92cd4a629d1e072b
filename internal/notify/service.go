// Package notify is the delivery service: it turns "send this text or
// media to these recipients" into retried, rate-limited transport calls
// and reports per-recipient boolean outcomes. Error detail never crosses
// this boundary; callers get true/false, logs and the audit trail get
// the rest.
package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"notibot/internal/metrics"
	"notibot/internal/retry"
	"notibot/internal/storage"
	"notibot/internal/transport"
	logx "notibot/pkg/logx"
)

type Service struct {
	cfg     Config
	adapter transport.Adapter
	exec    *retry.Executor
	store   storage.Store // optional audit trail, may be nil
	log     logx.Logger

	limiter *rate.Limiter // nil when RatePerSec == 0
}

func New(cfg Config, adapter transport.Adapter, exec *retry.Executor, store storage.Store, log logx.Logger) *Service {
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = DefaultMaxMessageLen
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return &Service{cfg: cfg, adapter: adapter, exec: exec, store: store, log: log, limiter: limiter}
}

// Send delivers a text message to one recipient. Oversized text is
// truncated, never rejected.
func (s *Service) Send(ctx context.Context, text string, chatID int64, opt *Options) bool {
	text = s.truncate(text, opt)
	so := s.sendOptions(opt)
	return s.deliver(ctx, "text", chatID, func(ctx context.Context) error {
		_, err := s.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, so)
		return err
	})
}

// SendPhoto delivers a photo from a local path or a URL.
func (s *Service) SendPhoto(ctx context.Context, chatID int64, fileOrURL, caption string, opt *Options) bool {
	return s.sendMedia(ctx, "photo", chatID, fileOrURL, caption, opt, s.adapter.SendPhoto)
}

// SendDocument delivers a document from a local path or a URL.
func (s *Service) SendDocument(ctx context.Context, chatID int64, fileOrURL, caption string, opt *Options) bool {
	return s.sendMedia(ctx, "document", chatID, fileOrURL, caption, opt, s.adapter.SendDocument)
}

// SendVideo delivers a video from a local path or a URL.
func (s *Service) SendVideo(ctx context.Context, chatID int64, fileOrURL, caption string, opt *Options) bool {
	return s.sendMedia(ctx, "video", chatID, fileOrURL, caption, opt, s.adapter.SendVideo)
}

type mediaSend func(ctx context.Context, to transport.ChatTarget, media transport.Media, caption string, opt *transport.SendOptions) (transport.MessageRef, error)

func (s *Service) sendMedia(ctx context.Context, kind string, chatID int64, fileOrURL, caption string, opt *Options, fn mediaSend) bool {
	media, err := prepareMedia(fileOrURL)
	if err != nil {
		s.log.Error("media unreadable", logx.String("kind", kind), logx.String("source", fileOrURL), logx.Err(err))
		metrics.SendsTotal.WithLabelValues(kind, "error").Inc()
		return false
	}
	so := s.sendOptions(opt)
	return s.deliver(ctx, kind, chatID, func(ctx context.Context) error {
		_, err := fn(ctx, transport.ChatTarget{ChatID: chatID}, media, caption, so)
		return err
	})
}

// SendToMany fans a text message out to all recipients concurrently.
// results[i] reports recipient i regardless of completion order; one
// recipient failing never blocks or fails the others.
func (s *Service) SendToMany(ctx context.Context, text string, chatIDs []int64, opt *Options) []bool {
	results := make([]bool, len(chatIDs))
	var wg sync.WaitGroup
	for i, id := range chatIDs {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			results[i] = s.Send(ctx, text, id, opt)
		}(i, id)
	}
	wg.Wait()
	return results
}

// SendToDefault sends to the configured default recipient list. No
// defaults configured is not an error: the result is an empty list.
func (s *Service) SendToDefault(ctx context.Context, text string, opt *Options) []bool {
	if len(s.cfg.DefaultRecipients) == 0 {
		s.log.Warn("no default recipients configured")
		return []bool{}
	}
	return s.SendToMany(ctx, text, s.cfg.DefaultRecipients, opt)
}

// TestConnectivity probes the platform's identity endpoint. Used by
// health checks; failures are logged, never raised.
func (s *Service) TestConnectivity(ctx context.Context) bool {
	id, err := s.adapter.Identity(ctx)
	if err != nil {
		s.log.Error("connectivity probe failed", logx.Err(err))
		return false
	}
	s.log.Info("connectivity probe ok", logx.Int64("bot_id", id.ID), logx.String("bot_username", id.Username))
	return true
}

// DefaultRecipients exposes the configured default list (read-only copy).
func (s *Service) DefaultRecipients() []int64 {
	out := make([]int64, len(s.cfg.DefaultRecipients))
	copy(out, s.cfg.DefaultRecipients)
	return out
}

// deliver pushes one operation through the limiter and the retry
// executor, then records the outcome everywhere it is observed.
func (s *Service) deliver(ctx context.Context, kind string, chatID int64, op func(ctx context.Context) error) bool {
	start := time.Now()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.finish(ctx, sendOutcome{kind: kind, chatID: chatID, err: err, took: time.Since(start)})
			return false
		}
	}

	err := s.exec.Do(ctx, op)
	s.finish(ctx, sendOutcome{kind: kind, chatID: chatID, ok: err == nil, err: err, took: time.Since(start)})
	return err == nil
}

func (s *Service) finish(ctx context.Context, o sendOutcome) {
	outcome := "ok"
	if !o.ok {
		outcome = "error"
	}
	metrics.SendsTotal.WithLabelValues(o.kind, outcome).Inc()

	if o.ok {
		s.log.Info("message sent",
			logx.String("kind", o.kind), logx.Int64("chat_id", o.chatID), logx.Duration("took", o.took))
	} else {
		s.log.Error("message send failed",
			logx.String("kind", o.kind), logx.Int64("chat_id", o.chatID), logx.Duration("took", o.took), logx.Err(o.err))
	}

	if s.store != nil {
		errStr := ""
		if o.err != nil {
			errStr = o.err.Error()
		}
		rec := storage.DeliveryRecord{
			At: time.Now(), Kind: o.kind, ChatID: o.chatID,
			OK: o.ok, Error: errStr, TookMS: o.took.Milliseconds(),
		}
		if err := s.store.AppendDelivery(ctx, rec); err != nil {
			s.log.Debug("delivery audit append failed", logx.Err(err))
		}
	}
}

func (s *Service) sendOptions(opt *Options) *transport.SendOptions {
	so := &transport.SendOptions{
		ParseMode:      s.cfg.DefaultParseMode,
		DisablePreview: opt.disablePreview(),
	}
	if opt != nil {
		if opt.ParseMode != "" {
			so.ParseMode = opt.ParseMode
		}
		so.ReplyTo = opt.ReplyTo
	}
	return so
}

// truncate enforces the max message length in runes: over-long text is
// cut to max-3 and the ellipsis marker appended, so the result is
// exactly max long.
func (s *Service) truncate(text string, opt *Options) string {
	maxLen := s.cfg.MaxMessageLen
	if opt != nil && opt.MaxLen > 0 {
		maxLen = opt.MaxLen
	}
	rs := []rune(text)
	if len(rs) <= maxLen {
		return text
	}
	s.log.Warn("message truncated", logx.Int("original_length", len(rs)), logx.Int("max_length", maxLen))
	if maxLen <= len(ellipsis) {
		return string(rs[:maxLen])
	}
	return string(rs[:maxLen-len(ellipsis)]) + ellipsis
}
