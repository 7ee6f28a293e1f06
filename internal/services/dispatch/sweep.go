package dispatch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	kit "deedbot/internal/transport"
	"deedbot/pkg/logx"
)

// sweep catches reminders that came due while no timer was armed for
// them (process restarts, dropped fires). Runs on the cron interval.
func (s *Service) sweep() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || s.store == nil {
		return
	}

	rs, err := s.store.ListReminders(ctx, 0)
	if err != nil {
		s.log.Warn("sweep list failed", logx.Err(err))
		return
	}

	now := s.now()
	fired, rearmed := 0, 0
	for _, r := range rs {
		if r.Paused || r.NextAt.IsZero() {
			continue
		}
		if _, ok := s.Armed(r.ID); ok {
			// A live timer owns this one; it will fire on its own.
			continue
		}
		if r.NextAt.After(now) {
			// Future occurrence with no timer (lost across a restart).
			s.Arm(r)
			rearmed++
			continue
		}
		s.enqueue(job{id: r.ID, due: r.NextAt})
		fired++
	}
	if fired > 0 || rearmed > 0 {
		s.log.Info("sweep reconciled reminders", logx.Int("fired", fired), logx.Int("rearmed", rearmed))
	}
}

// digest sends each chat a morning summary of the reminders due today.
func (s *Service) digest() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || s.store == nil {
		return
	}

	rs, err := s.store.ListReminders(ctx, 0)
	if err != nil {
		s.log.Warn("digest list failed", logx.Err(err))
		return
	}

	now := s.now()
	dayEnd := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())

	byChat := map[int64][]string{}
	for _, r := range rs {
		if r.Paused || r.NextAt.IsZero() {
			continue
		}
		if r.NextAt.After(dayEnd) {
			continue
		}
		byChat[r.ChatID] = append(byChat[r.ChatID], fmt.Sprintf("• %s — %s", r.NextAt.Format("15:04"), r.Title))
	}

	for chatID, lines := range byChat {
		sort.Strings(lines)
		text := fmt.Sprintf("Today's good deeds (%d):\n%s", len(lines), strings.Join(lines, "\n"))
		err := s.notify.Notify(ctx, kit.Notification{
			Priority: 1,
			Target:   kit.ChatTarget{ChatID: chatID},
			Text:     text,
			DedupKey: fmt.Sprintf("digest:%d:%s", chatID, now.Format("2006-01-02")),
		})
		if err != nil {
			s.log.Debug("digest send failed", logx.Int64("chat_id", chatID), logx.Err(err))
		}
	}
}
