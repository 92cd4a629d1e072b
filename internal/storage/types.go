package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON Lines append log
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryRecord is one outbound send outcome. Keep it compact and
// schema-stable; this is an audit trail, not a queue.
type DeliveryRecord struct {
	At     time.Time
	Kind   string // text, photo, document, video
	ChatID int64
	OK     bool
	Error  string
	TookMS int64
}
