package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "marketbot/pkg/logx"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage. If Driver is empty or "none", storage is
// disabled and Open returns (nil, nil).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// HistoryEntry records one command invocation or one scheduled delivery.
// Keep it compact and schema-stable.
type HistoryEntry struct {
	At     time.Time
	ChatID int64
	Kind   string // "command" | "tick"
	Name   string // command route or subscription name
	OK     bool
	Error  string
	TookMS int64
}

// Store is the minimal persistence API used by the dispatcher and the
// scheduled tick body. Writes are best-effort; failures never surface to
// chat users.
type Store interface {
	AppendHistory(ctx context.Context, e HistoryEntry) error
	PruneHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
