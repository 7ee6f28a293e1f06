package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("reminder not found")
)

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled and the bot keeps
// everything in memory only.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Reminder is a stored reminder definition.
// Schedule keeps the user's raw schedule syntax; it is re-parsed on
// load so the stored form stays human-readable.
type Reminder struct {
	ID        string    `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Title     string    `json:"title"`
	Schedule  string    `json:"schedule"`
	NextAt    time.Time `json:"next_at"`
	Paused    bool      `json:"paused"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CompletionStatus is the user's feedback for one fired occurrence.
type CompletionStatus string

const (
	StatusDone    CompletionStatus = "done"
	StatusSkipped CompletionStatus = "skipped"
	StatusSnoozed CompletionStatus = "snoozed"
)

// Completion records feedback for one occurrence.
type Completion struct {
	ReminderID string           `json:"reminder_id"`
	ChatID     int64            `json:"chat_id"`
	Status     CompletionStatus `json:"status"`
	FiredAt    time.Time        `json:"fired_at"`
	At         time.Time        `json:"at"`
}
