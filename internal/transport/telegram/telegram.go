// Package telegram implements transport.Adapter on top of the Telegram
// Bot API via telebot. It only speaks the outbound half of the API:
// this bot relays notifications, it does not consume updates.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "notibot/internal/transport"
	logx "notibot/pkg/logx"
)

type Config struct {
	Token string
	// Timeout bounds a single Bot API call.
	Timeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return a.send(ctx, to, func(chat *tele.Chat, so *tele.SendOptions) (*tele.Message, error) {
		return a.bot.Send(chat, text, so)
	}, opt)
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, media kit.Media, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return a.send(ctx, to, func(chat *tele.Chat, so *tele.SendOptions) (*tele.Message, error) {
		return a.bot.Send(chat, &tele.Photo{File: toFile(media), Caption: caption}, so)
	}, opt)
}

func (a *Adapter) SendDocument(ctx context.Context, to kit.ChatTarget, media kit.Media, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	name := ""
	if media.Blob != nil {
		name = media.Blob.Name
	}
	return a.send(ctx, to, func(chat *tele.Chat, so *tele.SendOptions) (*tele.Message, error) {
		return a.bot.Send(chat, &tele.Document{File: toFile(media), FileName: name, Caption: caption}, so)
	}, opt)
}

func (a *Adapter) SendVideo(ctx context.Context, to kit.ChatTarget, media kit.Media, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return a.send(ctx, to, func(chat *tele.Chat, so *tele.SendOptions) (*tele.Message, error) {
		return a.bot.Send(chat, &tele.Video{File: toFile(media), Caption: caption}, so)
	}, opt)
}

type sendFunc func(chat *tele.Chat, so *tele.SendOptions) (*tele.Message, error)

func (a *Adapter) send(ctx context.Context, to kit.ChatTarget, fn sendFunc, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if err := ctxErr(ctx); err != nil {
		return kit.MessageRef{}, err
	}

	chat := &tele.Chat{ID: to.ChatID}
	so := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}
	if opt.ReplyTo != 0 {
		so.ReplyTo = &tele.Message{ID: opt.ReplyTo, Chat: chat}
	}

	// telebot does not thread a context through Send; run the call in a
	// goroutine so a hung HTTP exchange cannot outlive the caller's budget.
	type result struct {
		msg *tele.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := fn(chat, so)
		done <- result{msg: m, err: err}
	}()

	timer := time.NewTimer(a.cfg.Timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return kit.MessageRef{}, ctx.Err()
	case <-timer.C:
		return kit.MessageRef{}, errors.New("telegram send timed out")
	case r := <-done:
		if r.err != nil {
			return kit.MessageRef{}, classify(r.err)
		}
		return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: r.msg.ID}, nil
	}
}

// Identity calls getMe directly; the cached bot.Me is deliberately not
// used so this doubles as a live connectivity probe.
func (a *Adapter) Identity(ctx context.Context) (kit.Identity, error) {
	if err := ctxErr(ctx); err != nil {
		return kit.Identity{}, err
	}
	raw, err := a.bot.Raw("getMe", nil)
	if err != nil {
		return kit.Identity{}, classify(err)
	}
	var resp struct {
		Result struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"result"`
	}
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&resp); err != nil {
		return kit.Identity{}, err
	}
	return kit.Identity{ID: resp.Result.ID, Username: resp.Result.Username}, nil
}

func toFile(m kit.Media) tele.File {
	if m.Blob != nil {
		return tele.FromReader(bytes.NewReader(m.Blob.Data))
	}
	return tele.FromURL(m.URL)
}

// classify maps telebot errors onto the transport taxonomy:
// flood -> rate limited, API 4xx -> permanent, everything else transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &kit.RateLimitedError{RetryAfter: time.Duration(flood.RetryAfter) * time.Second}
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 {
		return &kit.PermanentError{Code: apiErr.Code, Msg: apiErr.Description}
	}
	return err
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
