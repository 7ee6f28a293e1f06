package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"deedbot/internal/recurrence"
	"deedbot/internal/stats"
	"deedbot/internal/storage"
	"deedbot/pkg/tgui"
)

const scheduleHelp = `Schedules:
  daily@07:30          every day at 07:30
  21:00                shorthand for daily@21:00
  weekly:mon,thu@21:00 selected weekdays
  monthly:15@09:00     day of month (31 clamps to month end)
  every:4h             every N hours or days (every:2d)
  once:2024-12-01@09:00  a single occurrence`

func (r *Router) register() {
	r.add(Command{Name: "add", Description: "add a reminder", Usage: "/add <schedule> <title>", Access: AccessOwnerOnly, Handle: r.handleAdd})
	r.add(Command{Name: "list", Description: "list reminders", Usage: "/list", Access: AccessOwnerOnly, Handle: r.handleList})
	r.add(Command{Name: "del", Description: "delete a reminder", Usage: "/del <n>", Access: AccessOwnerOnly, Handle: r.handleDelete})
	r.add(Command{Name: "pause", Description: "pause a reminder", Usage: "/pause <n>", Access: AccessOwnerOnly, Handle: r.pauseHandler(true)})
	r.add(Command{Name: "resume", Description: "resume a paused reminder", Usage: "/resume <n>", Access: AccessOwnerOnly, Handle: r.pauseHandler(false)})
	r.add(Command{Name: "done", Description: "mark a reminder done now", Usage: "/done <n>", Access: AccessOwnerOnly, Handle: r.handleDone})
	r.add(Command{Name: "stats", Description: "completion stats", Usage: "/stats", Access: AccessOwnerOnly, Handle: r.handleStats})
	r.add(Command{Name: "help", Description: "show help", Usage: "/help", Access: AccessEveryone, Handle: r.handleHelp})

	r.callbacks["sched:confirm"] = r.cbScheduleConfirm
	r.callbacks["sched:cancel"] = r.cbScheduleCancel
	r.callbacks["deed:done"] = r.cbOutcome(storage.StatusDone, "Nice! Marked as done.")
	r.callbacks["deed:skip"] = r.cbOutcome(storage.StatusSkipped, "Skipped.")
	r.callbacks["deed:snooze"] = r.cbSnooze
}

func (r *Router) handleAdd(ctx context.Context, req *Request) error {
	if len(req.Args) < 2 {
		r.reply(ctx, req, "Usage: /add <schedule> <title>\n\n"+scheduleHelp)
		return nil
	}
	spec, at, err := recurrence.ParseSchedule(req.Args[0])
	if err != nil {
		r.reply(ctx, req, err.Error()+"\n\n"+scheduleHelp)
		return nil
	}
	title := strings.Join(req.Args[1:], " ")
	opt := r.options()

	attempt := recurrence.Begin(recurrence.Request{
		Spec:        spec,
		At:          at,
		Now:         r.now(),
		MinimumLead: opt.MinimumLead,
	})

	if attempt.NeedsConfirmation() {
		res := attempt.Resolution
		token := r.pending.Put(pendingAdd{ChatID: req.Chat.ChatID, Title: title, Schedule: req.Args[0], Attempt: attempt})
		markup := tgui.ConfirmInline(
			tgui.Btn("✅ Schedule anyway", tgui.Data("sched", "confirm", token)),
			tgui.Btn("❌ Cancel", tgui.Data("sched", "cancel", token)),
		).Markup()
		text := fmt.Sprintf(
			"%q at %s lands too close to now.\nMove it to %s?",
			title,
			res.OriginalAt.Format("15:04:05"),
			res.At.Format("Mon Jan 2 15:04"),
		)
		r.replyMarkup(ctx, req, text, markup)
		return nil
	}

	nextAt, err := attempt.Settled()
	if err != nil {
		return err
	}
	return r.createReminder(ctx, req, req.Chat.ChatID, title, req.Args[0], nextAt)
}

func (r *Router) createReminder(ctx context.Context, req *Request, chatID int64, title, schedule string, nextAt time.Time) error {
	now := r.now()
	rem := storage.Reminder{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Title:     title,
		Schedule:  schedule,
		NextAt:    nextAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.PutReminder(ctx, rem); err != nil {
		return err
	}
	r.dispatch.Arm(rem)
	r.reply(ctx, req, fmt.Sprintf("Added %q — next %s.", title, nextAt.Format("Mon Jan 2 15:04")))
	return nil
}

func (r *Router) cbScheduleConfirm(ctx context.Context, req *Request, token string) error {
	p, ok := r.pending.Take(token)
	if !ok {
		return errors.New("this confirmation expired, add the reminder again")
	}
	nextAt, err := p.Attempt.Confirm()
	if err != nil {
		return err
	}
	return r.createReminder(ctx, req, p.ChatID, p.Title, p.Schedule, nextAt)
}

func (r *Router) cbScheduleCancel(ctx context.Context, req *Request, token string) error {
	p, ok := r.pending.Take(token)
	if !ok {
		return nil // already expired, nothing to undo
	}
	if err := p.Attempt.Cancel(); err != nil {
		return err
	}
	r.reply(ctx, req, fmt.Sprintf("Cancelled %q.", p.Title))
	return nil
}

// listFor returns the chat's reminders ordered by next occurrence, the
// ordering the numeric /del and /pause arguments refer to.
func (r *Router) listFor(ctx context.Context, chatID int64) ([]storage.Reminder, error) {
	rs, err := r.store.ListReminders(ctx, chatID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].NextAt.Before(rs[j].NextAt) })
	return rs, nil
}

func (r *Router) handleList(ctx context.Context, req *Request) error {
	rs, err := r.listFor(ctx, req.Chat.ChatID)
	if err != nil {
		return err
	}
	if len(rs) == 0 {
		r.reply(ctx, req, "No reminders yet. Add one with /add.")
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Reminders (%d):\n", len(rs))
	for i, rem := range rs {
		state := rem.NextAt.Format("Mon Jan 2 15:04")
		if rem.Paused {
			state = "paused"
		}
		fmt.Fprintf(&b, "%d. %s — %s (%s)\n", i+1, rem.Title, state, rem.Schedule)
	}
	r.reply(ctx, req, strings.TrimRight(b.String(), "\n"))
	return nil
}

// nthReminder resolves a 1-based /list index argument.
func (r *Router) nthReminder(ctx context.Context, req *Request) (storage.Reminder, bool, error) {
	if len(req.Args) != 1 {
		return storage.Reminder{}, false, nil
	}
	var n int
	if _, err := fmt.Sscanf(req.Args[0], "%d", &n); err != nil || n < 1 {
		return storage.Reminder{}, false, nil
	}
	rs, err := r.listFor(ctx, req.Chat.ChatID)
	if err != nil {
		return storage.Reminder{}, false, err
	}
	if n > len(rs) {
		return storage.Reminder{}, false, nil
	}
	return rs[n-1], true, nil
}

func (r *Router) handleDelete(ctx context.Context, req *Request) error {
	rem, ok, err := r.nthReminder(ctx, req)
	if err != nil {
		return err
	}
	if !ok {
		r.reply(ctx, req, "Usage: /del <n> — n from /list")
		return nil
	}
	if err := r.store.DeleteReminder(ctx, rem.ID); err != nil {
		return err
	}
	r.dispatch.Disarm(rem.ID)
	r.reply(ctx, req, fmt.Sprintf("Deleted %q.", rem.Title))
	return nil
}

func (r *Router) pauseHandler(pause bool) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		rem, ok, err := r.nthReminder(ctx, req)
		if err != nil {
			return err
		}
		if !ok {
			r.reply(ctx, req, fmt.Sprintf("Usage: /%s <n> — n from /list", req.Command))
			return nil
		}
		if err := r.store.SetPaused(ctx, rem.ID, pause); err != nil {
			return err
		}
		if pause {
			r.dispatch.Disarm(rem.ID)
			r.reply(ctx, req, fmt.Sprintf("Paused %q.", rem.Title))
			return nil
		}

		// Resuming recomputes the next occurrence; the stored one may
		// be long past.
		spec, at, err := recurrence.ParseSchedule(rem.Schedule)
		if err != nil {
			return err
		}
		res := recurrence.Schedule(recurrence.Request{Spec: spec, At: at, Now: r.now(), MinimumLead: r.options().MinimumLead})
		if err := r.store.SetNextAt(ctx, rem.ID, res.NextAt); err != nil {
			return err
		}
		rem.Paused = false
		rem.NextAt = res.NextAt
		r.dispatch.Arm(rem)
		r.reply(ctx, req, fmt.Sprintf("Resumed %q — next %s.", rem.Title, res.NextAt.Format("Mon Jan 2 15:04")))
		return nil
	}
}

// handleDone records an off-schedule completion, e.g. a deed done
// before the reminder fired.
func (r *Router) handleDone(ctx context.Context, req *Request) error {
	rem, ok, err := r.nthReminder(ctx, req)
	if err != nil {
		return err
	}
	if !ok {
		r.reply(ctx, req, "Usage: /done <n> — n from /list")
		return nil
	}
	if err := r.dispatch.Complete(ctx, rem.ID, storage.StatusDone); err != nil {
		return err
	}
	r.reply(ctx, req, fmt.Sprintf("Marked %q as done. 🎉", rem.Title))
	return nil
}

func (r *Router) cbOutcome(status storage.CompletionStatus, ack string) CallbackHandlerFunc {
	return func(ctx context.Context, req *Request, id string) error {
		if id == "" {
			return errors.New("missing reminder id")
		}
		if err := r.dispatch.Complete(ctx, id, status); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return errors.New("this reminder no longer exists")
			}
			return err
		}
		r.reply(ctx, req, ack)
		return nil
	}
}

func (r *Router) cbSnooze(ctx context.Context, req *Request, id string) error {
	if id == "" {
		return errors.New("missing reminder id")
	}
	until, err := r.dispatch.Snooze(ctx, id, r.options().SnoozeDefault)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errors.New("this reminder no longer exists")
		}
		return err
	}
	r.reply(ctx, req, fmt.Sprintf("Snoozed until %s.", until.Format("15:04")))
	return nil
}

func (r *Router) handleStats(ctx context.Context, req *Request) error {
	rows, err := r.store.ListCompletions(ctx, req.Chat.ChatID, "", time.Time{})
	if err != nil {
		return err
	}
	s := stats.Compute(rows, r.now())
	if s.Total == 0 {
		r.reply(ctx, req, "No completions yet. Stats show up after your first ✅.")
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Good deeds: %d done, %d skipped, %d snoozed\n", s.Done, s.Skipped, s.Snoozed)
	fmt.Fprintf(&b, "Completion rate: %.0f%%\n", s.Rate*100)
	fmt.Fprintf(&b, "Streak: %d days (best %d)\n\nLast 7 days:\n", s.CurrentStreak, s.BestStreak)
	for _, d := range s.Week {
		bar := strings.Repeat("▪", d.Done)
		if bar == "" {
			bar = "·"
		}
		fmt.Fprintf(&b, "%s %s\n", d.Date.Format("Mon"), bar)
	}
	r.reply(ctx, req, strings.TrimRight(b.String(), "\n"))
	return nil
}

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	var b strings.Builder
	b.WriteString("deedbot — little reminders for good deeds\n\n")
	for _, name := range r.order {
		c := r.commands[name]
		fmt.Fprintf(&b, "%s — %s\n", c.Usage, c.Description)
	}
	b.WriteString("\n" + scheduleHelp)
	r.reply(ctx, req, b.String())
	return nil
}
