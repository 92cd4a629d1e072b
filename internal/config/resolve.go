package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment overrides, applied during Resolve. Values from the
// environment win over the file.
const (
	EnvBotToken      = "TELEGRAM_BOT_TOKEN"
	EnvChatID        = "TELEGRAM_CHAT_ID"
	EnvAPIToken      = "NOTIBOT_API_TOKEN"
	EnvWebhookSecret = "NOTIBOT_WEBHOOK_SECRET"
)

// Settings is the fully resolved runtime view: every duration parsed,
// every default filled, every env override applied. Components read
// from Settings exactly once at wiring time.
type Settings struct {
	Telegram struct {
		Token   string
		Timeout time.Duration
	}

	Logging LoggingConfig

	Delivery struct {
		DefaultRecipients []int64
		ParseMode         string
		MaxMessageLen     int
		RatePerSec        float64
		Retry             struct {
			MaxAttempts    int
			BaseDelay      time.Duration
			ExpBase        float64
			AttemptTimeout time.Duration
		}
	}

	SubscriptionsPath string

	Monitor struct {
		Enabled         bool
		Interval        time.Duration
		CPUThreshold    float64
		MemoryThreshold float64
		DiskThreshold   float64
		AlertCooldown   time.Duration
		DiskPath        string
	}

	Scheduler struct {
		Enabled     bool
		Workers     int
		Timezone    string
		DefaultJobs bool
		JobTimeout  time.Duration
	}

	HTTP struct {
		Enabled       bool
		Addr          string
		Token         string
		WebhookSecret string
		ReadTimeout   time.Duration
		WriteTimeout  time.Duration
		IdleTimeout   time.Duration
	}

	Storage struct {
		Enabled     bool
		Driver      string
		Path        string
		BusyTimeout time.Duration
	}
}

// Resolve validates the raw config and produces typed Settings.
// All parsing happens here; a config that resolves once stays valid
// for the life of the process.
func (c *Config) Resolve() (*Settings, error) {
	s := &Settings{}

	s.Telegram.Token = strings.TrimSpace(c.Telegram.Token)
	if env := os.Getenv(EnvBotToken); env != "" {
		s.Telegram.Token = strings.TrimSpace(env)
	}
	if s.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram.token is required (or set %s)", EnvBotToken)
	}
	var err error
	if s.Telegram.Timeout, err = durationOr("telegram.timeout", c.Telegram.Timeout, 15*time.Second); err != nil {
		return nil, err
	}

	s.Logging = c.Logging
	if s.Logging.Level == "" {
		s.Logging.Level = "info"
	}

	s.Delivery.DefaultRecipients = append([]int64(nil), c.Delivery.DefaultRecipients...)
	if env := os.Getenv(EnvChatID); env != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(env), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid chat id %q: %w", EnvChatID, env, err)
		}
		if !containsID(s.Delivery.DefaultRecipients, id) {
			s.Delivery.DefaultRecipients = append(s.Delivery.DefaultRecipients, id)
		}
	}
	s.Delivery.ParseMode = c.Delivery.ParseMode
	if s.Delivery.ParseMode == "" {
		s.Delivery.ParseMode = "Markdown"
	}
	s.Delivery.MaxMessageLen = c.Delivery.MaxMessageLen
	if s.Delivery.MaxMessageLen <= 0 {
		s.Delivery.MaxMessageLen = 4096
	}
	s.Delivery.RatePerSec = c.Delivery.RatePerSec

	s.Delivery.Retry.MaxAttempts = c.Delivery.Retry.MaxAttempts
	if s.Delivery.Retry.MaxAttempts <= 0 {
		s.Delivery.Retry.MaxAttempts = 3
	}
	if s.Delivery.Retry.BaseDelay, err = durationOr("delivery.retry.base_delay", c.Delivery.Retry.BaseDelay, time.Second); err != nil {
		return nil, err
	}
	s.Delivery.Retry.ExpBase = c.Delivery.Retry.ExpBase
	if s.Delivery.Retry.ExpBase <= 1 {
		s.Delivery.Retry.ExpBase = 2.0
	}
	if s.Delivery.Retry.AttemptTimeout, err = optionalDuration("delivery.retry.attempt_timeout", c.Delivery.Retry.AttemptTimeout); err != nil {
		return nil, err
	}

	s.SubscriptionsPath = c.Subscriptions.Path
	if s.SubscriptionsPath == "" {
		s.SubscriptionsPath = "subscriptions.json"
	}

	s.Monitor.Enabled = c.Monitor.Enabled
	if s.Monitor.Interval, err = durationOr("monitor.interval", c.Monitor.Interval, time.Minute); err != nil {
		return nil, err
	}
	s.Monitor.CPUThreshold = thresholdOrDefault(c.Monitor.CPUThreshold, 80)
	s.Monitor.MemoryThreshold = thresholdOrDefault(c.Monitor.MemoryThreshold, 80)
	s.Monitor.DiskThreshold = thresholdOrDefault(c.Monitor.DiskThreshold, 90)
	if s.Monitor.AlertCooldown, err = durationOr("monitor.alert_cooldown", c.Monitor.AlertCooldown, 5*time.Minute); err != nil {
		return nil, err
	}
	s.Monitor.DiskPath = c.Monitor.DiskPath
	if s.Monitor.DiskPath == "" {
		s.Monitor.DiskPath = "/"
	}

	s.Scheduler.Enabled = c.Scheduler.Enabled
	s.Scheduler.Workers = c.Scheduler.Workers
	if s.Scheduler.Workers <= 0 {
		s.Scheduler.Workers = 5
	}
	s.Scheduler.Timezone = strings.TrimSpace(c.Scheduler.Timezone)
	if s.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(s.Scheduler.Timezone); err != nil {
			return nil, fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	s.Scheduler.DefaultJobs = c.Scheduler.DefaultJobs
	if s.Scheduler.JobTimeout, err = durationOr("scheduler.job_timeout", c.Scheduler.JobTimeout, 2*time.Minute); err != nil {
		return nil, err
	}

	s.HTTP.Enabled = c.HTTP.Enabled
	s.HTTP.Addr = c.HTTP.Addr
	if s.HTTP.Addr == "" {
		s.HTTP.Addr = "127.0.0.1:8080"
	}
	s.HTTP.Token = c.HTTP.Token
	if env := os.Getenv(EnvAPIToken); env != "" {
		s.HTTP.Token = env
	}
	s.HTTP.WebhookSecret = c.HTTP.WebhookSecret
	if env := os.Getenv(EnvWebhookSecret); env != "" {
		s.HTTP.WebhookSecret = env
	}
	if s.HTTP.ReadTimeout, err = durationOr("http.read_timeout", c.HTTP.ReadTimeout, 10*time.Second); err != nil {
		return nil, err
	}
	if s.HTTP.WriteTimeout, err = durationOr("http.write_timeout", c.HTTP.WriteTimeout, 30*time.Second); err != nil {
		return nil, err
	}
	if s.HTTP.IdleTimeout, err = durationOr("http.idle_timeout", c.HTTP.IdleTimeout, 2*time.Minute); err != nil {
		return nil, err
	}

	if c.Storage != nil {
		driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
		switch driver {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if c.Storage.Path == "" {
				return nil, fmt.Errorf("storage.path is required for driver %q", driver)
			}
			s.Storage.Enabled = true
			s.Storage.Driver = driver
			s.Storage.Path = c.Storage.Path
			if s.Storage.BusyTimeout, err = durationOr("storage.busy_timeout", c.Storage.BusyTimeout, 5*time.Second); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("storage.driver: unknown driver %q", driver)
		}
	}

	return s, nil
}

func thresholdOrDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
