package dispatch

import (
	"context"
	"fmt"
	"time"

	"deedbot/internal/recurrence"
	"deedbot/internal/storage"
	kit "deedbot/internal/transport"
	"deedbot/pkg/logx"
	"deedbot/pkg/tgui"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan job) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			s.fireOne(ctx, j)
		}
	}
}

func (s *Service) fireOne(ctx context.Context, j job) {
	start := s.now()
	item := HistoryItem{ReminderID: j.id, Due: j.due, Fired: start}

	r, ok, err := s.store.GetReminder(ctx, j.id)
	if err != nil {
		item.Error = err.Error()
		s.appendHistory(item)
		s.log.Warn("fire load failed", logx.String("id", j.id), logx.Err(err))
		return
	}
	if !ok {
		// Deleted between arm and fire.
		return
	}
	item.ChatID = r.ChatID
	item.Title = r.Title
	if r.Paused {
		return
	}

	markup := tgui.NewInline().
		Row(
			tgui.Btn("✅ Done", tgui.Data("deed", "done", r.ID)),
			tgui.Btn("⏭ Skip", tgui.Data("deed", "skip", r.ID)),
		).
		Row(tgui.Btn("💤 Snooze 15m", tgui.Data("deed", "snooze", r.ID))).
		Markup()

	err = s.notify.Notify(ctx, kit.Notification{
		Priority: 5,
		Target:   kit.ChatTarget{ChatID: r.ChatID},
		Text:     fmt.Sprintf("%s\nDue %s", r.Title, j.due.Format("Mon 15:04")),
		Options:  &kit.SendOptions{DisablePreview: true, ReplyMarkupAdapter: markup},
		DedupKey: fmt.Sprintf("fire:%s:%d", r.ID, j.due.Unix()),
	})
	if err != nil {
		item.Error = err.Error()
	}
	s.appendHistory(item)

	if aerr := s.advance(ctx, r, j.due); aerr != nil {
		s.log.Warn("advance after fire failed", logx.String("id", r.ID), logx.Err(aerr))
	}
}

// advance persists the occurrence after from and re-arms the timer.
// Non-recurring reminders are paused instead.
func (s *Service) advance(ctx context.Context, r storage.Reminder, from time.Time) error {
	spec, at, err := recurrence.ParseSchedule(r.Schedule)
	if err != nil {
		return fmt.Errorf("stored schedule %q: %w", r.Schedule, err)
	}
	if !spec.Recurring() {
		s.Disarm(r.ID)
		return s.store.SetPaused(ctx, r.ID, true)
	}

	now := s.now()
	// Step past the fired occurrence even when it is still in the future
	// relative to a clock-skewed now.
	base := now
	if !from.After(base) {
		base = from
	}
	next := recurrence.Next(spec, at, base)
	for !next.After(now) {
		next = recurrence.Next(spec, at, next)
	}
	if err := s.store.SetNextAt(ctx, r.ID, next); err != nil {
		return err
	}
	r.NextAt = next
	s.Arm(r)
	return nil
}

// Snooze pushes a reminder's next occurrence to roughly now+d, running
// the candidate through lead validation so it never lands too close to
// now. The accepted time is persisted and re-armed.
func (s *Service) Snooze(ctx context.Context, id string, d time.Duration) (time.Time, error) {
	s.mu.Lock()
	lead := s.cfg.MinimumLead
	s.mu.Unlock()

	r, ok, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, storage.ErrNotFound
	}

	now := s.now()
	cand := now.Add(d)
	res := recurrence.Resolve(now, cand, recurrence.Validate(cand, now, lead), lead)

	if err := s.store.SetNextAt(ctx, id, res.At); err != nil {
		return time.Time{}, err
	}
	if err := s.store.SetPaused(ctx, id, false); err != nil {
		return time.Time{}, err
	}
	r.NextAt = res.At
	r.Paused = false
	s.Arm(r)

	_ = s.store.AppendCompletion(ctx, storage.Completion{
		ReminderID: id,
		ChatID:     r.ChatID,
		Status:     storage.StatusSnoozed,
		FiredAt:    now,
		At:         now,
	})
	s.log.Info("reminder snoozed", logx.String("id", id), logx.Time("until", res.At))
	return res.At, nil
}

// Complete records the outcome of a fired reminder (done or skipped).
func (s *Service) Complete(ctx context.Context, id string, status storage.CompletionStatus) error {
	r, ok, err := s.store.GetReminder(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrNotFound
	}
	now := s.now()
	return s.store.AppendCompletion(ctx, storage.Completion{
		ReminderID: id,
		ChatID:     r.ChatID,
		Status:     status,
		FiredAt:    now,
		At:         now,
	})
}
