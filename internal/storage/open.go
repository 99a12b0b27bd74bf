package storage

import (
	"context"
	"fmt"
	"strings"

	logx "salebot/pkg/logx"
)

// Store is the persistence API used by the settings store and the alert sender.
type Store interface {
	// LoadSettings returns ErrNotFound if nothing was saved yet. Any other
	// error means the persisted record exists but cannot be read.
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error

	AppendAlert(ctx context.Context, r AlertRecord) error
	// RecentAlerts returns up to n records, newest last.
	RecentAlerts(ctx context.Context, n int) ([]AlertRecord, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
