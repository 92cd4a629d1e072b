// Package storage provides the optional delivery audit trail. Every
// send outcome can be appended to a file or SQLite store for later
// inspection; the relay itself never reads it back on the hot path.
package storage

import (
	"context"
	"errors"
	"strings"

	logx "notibot/pkg/logx"
)

// Store is the minimal persistence API used by the delivery service.
type Store interface {
	AppendDelivery(ctx context.Context, rec DeliveryRecord) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
