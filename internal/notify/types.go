package notify

import "time"

// DefaultMaxMessageLen is the platform text limit in code units.
const DefaultMaxMessageLen = 4096

const ellipsis = "..."

// Config carries the delivery tunables resolved once at startup.
type Config struct {
	// DefaultRecipients receive SendToDefault traffic. May be empty.
	DefaultRecipients []int64
	DefaultParseMode  string // "", "Markdown", "HTML"
	MaxMessageLen     int    // default DefaultMaxMessageLen
	// RatePerSec is a client-side token bucket in front of the
	// transport, shared by all sends. Fractional rates are allowed;
	// 0 disables it.
	RatePerSec float64
}

// Options tune a single send. Zero value means: configured default
// parse mode, previews disabled, no reply target, default max length.
type Options struct {
	ParseMode      string
	DisablePreview *bool // nil = default (true)
	ReplyTo        int
	MaxLen         int
}

func (o *Options) disablePreview() bool {
	if o == nil || o.DisablePreview == nil {
		return true
	}
	return *o.DisablePreview
}

type sendOutcome struct {
	kind   string
	chatID int64
	ok     bool
	err    error
	took   time.Duration
}
