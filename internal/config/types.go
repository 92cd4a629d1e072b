package config

// Config is the on-disk shape. Durations are Go duration strings
// (e.g. "500ms", "10s", "1m"); Resolve turns the whole tree into
// typed Settings once at load.
type Config struct {
	Telegram      TelegramConfig      `json:"telegram"`
	Logging       LoggingConfig       `json:"logging"`
	Delivery      DeliveryConfig      `json:"delivery"`
	Subscriptions SubscriptionsConfig `json:"subscriptions"`
	Monitor       MonitorConfig       `json:"monitor"`
	Scheduler     SchedulerConfig     `json:"scheduler"`
	HTTP          HTTPConfig          `json:"http"`
	Storage       *StorageConfig      `json:"storage,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied via TELEGRAM_BOT_TOKEN.
	Token string `json:"token"`
	// Timeout is the per-API-call deadline, default "15s".
	Timeout string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// DeliveryConfig controls message sending and the retry policy.
type DeliveryConfig struct {
	// DefaultRecipients receive messages sent without an explicit
	// target. TELEGRAM_CHAT_ID is appended when set.
	DefaultRecipients []int64     `json:"default_recipients,omitempty"`
	ParseMode         string      `json:"parse_mode,omitempty"` // default "Markdown"
	MaxMessageLen     int         `json:"max_message_len,omitempty"`
	RatePerSec        float64     `json:"rate_per_sec,omitempty"`
	Retry             RetryConfig `json:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int     `json:"max_attempts,omitempty"` // default 3
	BaseDelay      string  `json:"base_delay,omitempty"`   // default "1s"
	ExpBase        float64 `json:"exp_base,omitempty"`     // default 2.0
	AttemptTimeout string  `json:"attempt_timeout,omitempty"`
}

type SubscriptionsConfig struct {
	// Path of the JSON subscriptions file, default "subscriptions.json".
	Path string `json:"path,omitempty"`
}

type MonitorConfig struct {
	Enabled         bool    `json:"enabled"`
	Interval        string  `json:"interval,omitempty"` // default "60s"
	CPUThreshold    float64 `json:"cpu_threshold,omitempty"`
	MemoryThreshold float64 `json:"memory_threshold,omitempty"`
	DiskThreshold   float64 `json:"disk_threshold,omitempty"`
	AlertCooldown   string  `json:"alert_cooldown,omitempty"` // default "300s"
	DiskPath        string  `json:"disk_path,omitempty"`
}

type SchedulerConfig struct {
	Enabled     bool   `json:"enabled"`
	Workers     int    `json:"workers,omitempty"` // default 5
	Timezone    string `json:"timezone,omitempty"`
	DefaultJobs bool   `json:"default_jobs,omitempty"`
	JobTimeout  string `json:"job_timeout,omitempty"`
}

// HTTPConfig controls the REST surface.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8080"
	// Token protects /api/*; NOTIBOT_API_TOKEN overrides.
	Token string `json:"token,omitempty"`
	// WebhookSecret signs /webhook payloads; NOTIBOT_WEBHOOK_SECRET overrides.
	WebhookSecret string `json:"webhook_secret,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

// StorageConfig controls the optional delivery audit store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./deliveries.jsonl" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
