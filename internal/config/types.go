// Package config loads the bot's configuration from YAML or JSON with
// strict unknown-field rejection, and hot-reloads it on file changes.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Dispatch   DispatchConfig   `json:"dispatch"`
	Notify     NotifyConfig     `json:"notify"`
	Scheduling SchedulingConfig `json:"scheduling"`
}

type TelegramConfig struct {
	Token       string  `json:"token"`
	OwnerIDs    []int64 `json:"owner_ids"`
	PollTimeout string  `json:"poll_timeout"` // Go duration, default 10s
}

type LoggingConfig struct {
	Level   string `json:"level"` // trace|debug|info|warn|error
	Console bool   `json:"console"`
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path"`
	} `json:"file"`
}

type StorageConfig struct {
	Driver      string `json:"driver"` // "file" | "sqlite" | "" (disabled)
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"` // sqlite only
}

type DispatchConfig struct {
	Workers     int    `json:"workers"`
	QueueSize   int    `json:"queue_size"`
	HistorySize int    `json:"history_size"`
	SweepEvery  string `json:"sweep_every"` // Go duration
	DigestAt    string `json:"digest_at"`   // "HH:MM" local, empty disables
}

type NotifyConfig struct {
	RatePerSec  int    `json:"rate_per_sec"`
	DedupWindow string `json:"dedup_window"` // Go duration
}

type SchedulingConfig struct {
	MinimumLead   string `json:"minimum_lead"`   // Go duration, default 1m
	SnoozeDefault string `json:"snooze_default"` // Go duration, default 15m
}

var ErrNoToken = errors.New("telegram.token is required")

// Validate checks cross-field constraints that a strict decode can't.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return ErrNoToken
	}
	if len(c.Telegram.OwnerIDs) == 0 {
		return errors.New("telegram.owner_ids must list at least one user id")
	}
	switch d := strings.TrimSpace(c.Storage.Driver); d {
	case "", "file", "sqlite":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", d)
	}
	if c.Storage.Driver != "" && strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required when storage is enabled")
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"dispatch.sweep_every", c.Dispatch.SweepEvery},
		{"notify.dedup_window", c.Notify.DedupWindow},
		{"scheduling.minimum_lead", c.Scheduling.MinimumLead},
		{"scheduling.snooze_default", c.Scheduling.SnoozeDefault},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
