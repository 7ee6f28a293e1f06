// Package notify delivers reminder notifications through the transport
// adapter: priority prefixes, send rate limiting, persistent dedup and
// a bounded in-memory history.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"deedbot/internal/storage"
	kit "deedbot/internal/transport"
	logx "deedbot/pkg/logx"
)

var ErrDuplicate = errors.New("notification suppressed by dedup")

type Config struct {
	RatePerSec  int           // sends per second (default 1)
	DedupWindow time.Duration // how long a DedupKey suppresses resends (default 10m)
	HistorySize int           // default 300
}

type HistoryItem struct {
	At       time.Time
	ChatID   int64
	Priority int
	Text     string
	Error    string
}

type Service struct {
	adapter kit.Adapter
	store   storage.Store // may be nil (dedup then degrades to memory only)
	log     logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	// In-memory dedup fallback; authoritative state lives in the store
	// so dedup survives restarts.
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, store: store, log: log, dedup: map[string]time.Time{}}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 10 * time.Minute
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 300
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Notify sends one notification. Duplicate occurrences (same DedupKey
// within the dedup window) return ErrDuplicate without sending.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	if n.Options == nil {
		n.Options = &kit.SendOptions{DisablePreview: true}
	}

	if n.DedupKey != "" {
		if s.seen(ctx, n.DedupKey) {
			s.log.Debug("notification deduped", logx.String("key", n.DedupKey), logx.Int64("chat_id", n.Target.ChatID))
			return ErrDuplicate
		}
	}

	s.mu.Lock()
	limiter := s.limiter
	window := s.cfg.DedupWindow
	s.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	prefix := ""
	switch {
	case n.Priority >= 8:
		prefix = "🚨 "
	case n.Priority >= 5:
		prefix = "⏰ "
	}
	_, err := s.adapter.SendText(ctx, n.Target, prefix+n.Text, n.Options)

	item := HistoryItem{At: time.Now(), ChatID: n.Target.ChatID, Priority: n.Priority, Text: n.Text}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("notification send failed", logx.Int64("chat_id", n.Target.ChatID), logx.Err(err))
	} else {
		s.log.Debug("notification sent", logx.Int64("chat_id", n.Target.ChatID), logx.Int("priority", n.Priority))
		if n.DedupKey != "" {
			s.mark(ctx, n.DedupKey, window)
		}
	}
	s.appendHistory(item)
	return err
}

// History returns a copy of the recent send history (newest last).
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) seen(ctx context.Context, key string) bool {
	now := time.Now()

	s.mu.Lock()
	until, ok := s.dedup[key]
	s.mu.Unlock()
	if ok && now.Before(until) {
		return true
	}

	if s.store != nil {
		until, ok, err := s.store.GetDedup(ctx, key)
		if err == nil && ok && now.Before(until) {
			return true
		}
	}
	return false
}

func (s *Service) mark(ctx context.Context, key string, window time.Duration) {
	until := time.Now().Add(window)

	s.mu.Lock()
	s.dedup[key] = until
	// Opportunistic prune.
	if len(s.dedup) > 1000 {
		now := time.Now()
		for k, v := range s.dedup {
			if now.After(v) {
				delete(s.dedup, k)
			}
		}
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.PutDedup(ctx, key, until); err != nil && !errors.Is(err, storage.ErrDisabled) {
			s.log.Debug("dedup persist failed", logx.String("key", key), logx.Err(err))
		}
	}
}

func (s *Service) appendHistory(x HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, x)
	s.mu.Lock()
	max := s.cfg.HistorySize
	s.mu.Unlock()
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
}
