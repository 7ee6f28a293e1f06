package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "deedbot/pkg/logx"
)

// Store is the persistence API used by the dispatch service and the bot.
type Store interface {
	PutReminder(ctx context.Context, r Reminder) error
	GetReminder(ctx context.Context, id string) (Reminder, bool, error)
	// ListReminders returns reminders for a chat; chatID 0 returns all.
	ListReminders(ctx context.Context, chatID int64) ([]Reminder, error)
	DeleteReminder(ctx context.Context, id string) error
	SetNextAt(ctx context.Context, id string, nextAt time.Time) error
	SetPaused(ctx context.Context, id string, paused bool) error

	AppendCompletion(ctx context.Context, c Completion) error
	// ListCompletions returns completions for a chat recorded at or
	// after since; reminderID "" matches all reminders.
	ListCompletions(ctx context.Context, chatID int64, reminderID string, since time.Time) ([]Completion, error)

	// Dedup keys prevent double-sending one occurrence around restarts.
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

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
