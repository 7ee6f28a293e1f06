package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"deedbot/internal/storage"
	kit "deedbot/internal/transport"
	"deedbot/pkg/logx"
)

const ownerID = int64(42)

type sentMessage struct {
	Chat kit.ChatTarget
	Text string
	Opt  *kit.SendOptions
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sentMessage
	answers []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Chat: to, Text: text, Opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeAdapter) last(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeDispatch struct {
	mu        sync.Mutex
	armed     map[string]storage.Reminder
	disarmed  []string
	completed []storage.CompletionStatus
	snoozed   []time.Duration
}

func newFakeDispatch() *fakeDispatch {
	return &fakeDispatch{armed: map[string]storage.Reminder{}}
}

func (f *fakeDispatch) Arm(r storage.Reminder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[r.ID] = r
}

func (f *fakeDispatch) Disarm(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.armed, id)
	f.disarmed = append(f.disarmed, id)
}

func (f *fakeDispatch) Snooze(_ context.Context, id string, d time.Duration) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snoozed = append(f.snoozed, d)
	return time.Now().Add(d), nil
}

func (f *fakeDispatch) Complete(_ context.Context, id string, status storage.CompletionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, status)
	return nil
}

func newTestRouter(t *testing.T, now time.Time) (*Router, *fakeAdapter, *fakeDispatch, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "deedbot")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ad := &fakeAdapter{}
	dp := newFakeDispatch()
	r := New(ad, st, dp, Options{Owners: []int64{ownerID}}, logx.Nop())
	r.now = func() time.Time { return now }
	return r, ad, dp, st
}

func message(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: 100, FromID: from, Text: text}}
}

func callback(from int64, data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb1", FromID: from, ChatID: 100, Data: data}}
}

func firstButtonData(t *testing.T, m sentMessage) string {
	t.Helper()
	if m.Opt == nil || m.Opt.ReplyMarkupAdapter == nil {
		t.Fatalf("message %q has no markup", m.Text)
	}
	rm, ok := m.Opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok {
		t.Fatalf("markup type %T", m.Opt.ReplyMarkupAdapter)
	}
	if len(rm.InlineKeyboard) == 0 || len(rm.InlineKeyboard[0]) == 0 {
		t.Fatal("empty inline keyboard")
	}
	return rm.InlineKeyboard[0][0].Data
}

func TestAddCreatesAndArms(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 10, 0, 30, 0, time.Local)
	r, ad, dp, st := newTestRouter(t, now)

	r.route(context.Background(), message(ownerID, "/add daily@09:00 Water the plants"))

	if got := ad.last(t).Text; !strings.Contains(got, "Added") {
		t.Fatalf("reply = %q", got)
	}
	rs, err := st.ListReminders(context.Background(), 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rs) != 1 {
		t.Fatalf("stored %d reminders, want 1", len(rs))
	}
	rem := rs[0]
	if rem.Title != "Water the plants" || rem.Schedule != "daily@09:00" {
		t.Fatalf("reminder = %+v", rem)
	}
	want := time.Date(2024, 6, 2, 9, 0, 0, 0, time.Local)
	if !rem.NextAt.Equal(want) {
		t.Fatalf("NextAt = %v, want %v", rem.NextAt, want)
	}
	dp.mu.Lock()
	_, armed := dp.armed[rem.ID]
	dp.mu.Unlock()
	if !armed {
		t.Fatal("reminder not armed")
	}
}

func TestAddTooSoonConfirmFlow(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 10, 0, 30, 0, time.Local)
	r, ad, _, st := newTestRouter(t, now)

	// 10:01 is 30s away: below the minimum lead and more than a
	// rounding nudge from the adjusted slot.
	r.route(context.Background(), message(ownerID, "/add once:2024-06-01@10:01 Call grandma"))

	ask := ad.last(t)
	if !strings.Contains(ask.Text, "too close") {
		t.Fatalf("expected confirmation prompt, got %q", ask.Text)
	}
	if rs, _ := st.ListReminders(context.Background(), 100); len(rs) != 0 {
		t.Fatalf("reminder stored before confirmation: %+v", rs)
	}

	confirmData := firstButtonData(t, ask)
	if !strings.HasPrefix(confirmData, "sched:confirm:") {
		t.Fatalf("button data = %q", confirmData)
	}
	r.route(context.Background(), callback(ownerID, confirmData))

	rs, err := st.ListReminders(context.Background(), 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rs) != 1 {
		t.Fatalf("stored %d reminders after confirm, want 1", len(rs))
	}
	want := time.Date(2024, 6, 1, 10, 2, 0, 0, time.Local)
	if !rs[0].NextAt.Equal(want) {
		t.Fatalf("NextAt = %v, want adjusted %v", rs[0].NextAt, want)
	}

	// A replayed confirm token must not create a second reminder.
	r.route(context.Background(), callback(ownerID, confirmData))
	if rs, _ := st.ListReminders(context.Background(), 100); len(rs) != 1 {
		t.Fatalf("replayed token created extra reminder: %d", len(rs))
	}
}

func TestAddTooSoonCancel(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 10, 0, 30, 0, time.Local)
	r, ad, _, st := newTestRouter(t, now)

	r.route(context.Background(), message(ownerID, "/add once:2024-06-01@10:01 Call grandma"))
	ask := ad.last(t)

	rm := ask.Opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	cancelData := rm.InlineKeyboard[0][1].Data
	if !strings.HasPrefix(cancelData, "sched:cancel:") {
		t.Fatalf("cancel data = %q", cancelData)
	}
	r.route(context.Background(), callback(ownerID, cancelData))

	if rs, _ := st.ListReminders(context.Background(), 100); len(rs) != 0 {
		t.Fatalf("cancelled add still stored: %+v", rs)
	}
	if got := ad.last(t).Text; !strings.Contains(got, "Cancelled") {
		t.Fatalf("reply = %q", got)
	}
}

func TestOwnerOnly(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 10, 0, 30, 0, time.Local)
	r, ad, _, st := newTestRouter(t, now)

	r.route(context.Background(), message(999, "/add daily@09:00 Sneaky"))
	if n := ad.count(); n != 0 {
		t.Fatalf("non-owner got %d replies", n)
	}
	if rs, _ := st.ListReminders(context.Background(), 100); len(rs) != 0 {
		t.Fatal("non-owner created a reminder")
	}

	// Callbacks are gated too.
	r.route(context.Background(), callback(999, "deed:done:x"))
	ad.mu.Lock()
	answers := append([]string(nil), ad.answers...)
	ad.mu.Unlock()
	if len(answers) != 1 || !strings.Contains(answers[0], "Not allowed") {
		t.Fatalf("answers = %v", answers)
	}
}

func TestListDeletePauseResume(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 10, 0, 30, 0, time.Local)
	r, ad, dp, st := newTestRouter(t, now)
	ctx := context.Background()

	r.route(ctx, message(ownerID, "/add daily@09:00 First"))
	r.route(ctx, message(ownerID, "/add daily@12:00 Second"))

	r.route(ctx, message(ownerID, "/list"))
	list := ad.last(t).Text
	// Second fires today at 12:00, First not until tomorrow 09:00.
	if !strings.Contains(list, "1. Second") || !strings.Contains(list, "2. First") {
		t.Fatalf("list = %q", list)
	}

	r.route(ctx, message(ownerID, "/pause 1"))
	if got := ad.last(t).Text; !strings.Contains(got, "Paused \"Second\"") {
		t.Fatalf("pause reply = %q", got)
	}
	rs, _ := st.ListReminders(ctx, 100)
	var second storage.Reminder
	for _, rem := range rs {
		if rem.Title == "Second" {
			second = rem
		}
	}
	if !second.Paused {
		t.Fatal("Second not paused in store")
	}
	dp.mu.Lock()
	disarmed := len(dp.disarmed)
	dp.mu.Unlock()
	if disarmed != 1 {
		t.Fatalf("disarmed %d reminders, want 1", disarmed)
	}

	// Paused reminders sort by their stale NextAt; Second still holds
	// slot 1 (12:00 today vs tomorrow 09:00).
	r.route(ctx, message(ownerID, "/resume 1"))
	if got := ad.last(t).Text; !strings.Contains(got, "Resumed \"Second\"") {
		t.Fatalf("resume reply = %q", got)
	}

	r.route(ctx, message(ownerID, "/del 2"))
	if got := ad.last(t).Text; !strings.Contains(got, "Deleted \"First\"") {
		t.Fatalf("delete reply = %q", got)
	}
	if rs, _ := st.ListReminders(ctx, 100); len(rs) != 1 {
		t.Fatalf("want 1 reminder left, got %d", len(rs))
	}
}

func TestCallbackOutcomes(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 10, 0, 30, 0, time.Local)
	r, ad, dp, _ := newTestRouter(t, now)
	ctx := context.Background()

	r.route(ctx, callback(ownerID, "deed:done:some-id"))
	r.route(ctx, callback(ownerID, "deed:skip:some-id"))
	r.route(ctx, callback(ownerID, "deed:snooze:some-id"))

	dp.mu.Lock()
	completed := append([]storage.CompletionStatus(nil), dp.completed...)
	snoozed := append([]time.Duration(nil), dp.snoozed...)
	dp.mu.Unlock()

	if len(completed) != 2 || completed[0] != storage.StatusDone || completed[1] != storage.StatusSkipped {
		t.Fatalf("completed = %v", completed)
	}
	if len(snoozed) != 1 || snoozed[0] != 15*time.Minute {
		t.Fatalf("snoozed = %v", snoozed)
	}
	if got := ad.last(t).Text; !strings.Contains(got, "Snoozed until") {
		t.Fatalf("snooze reply = %q", got)
	}
}

func TestConfirmKeepsRequestingChat(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 10, 0, 30, 0, time.Local)
	r, ad, _, st := newTestRouter(t, now)
	ctx := context.Background()

	r.route(ctx, message(ownerID, "/add once:2024-06-01@10:01 Call grandma"))
	confirmData := firstButtonData(t, ad.last(t))

	// Confirmation tapped from a different chat than the one that asked:
	// the reminder still belongs to the requesting chat.
	r.route(ctx, kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb2", FromID: ownerID, ChatID: 999, Data: confirmData}})

	rs, err := st.ListReminders(ctx, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rs) != 1 || rs[0].ChatID != 100 {
		t.Fatalf("reminders in chat 100 = %+v, want the confirmed one", rs)
	}
}

func TestDoneCommand(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 10, 0, 30, 0, time.Local)
	r, ad, dp, _ := newTestRouter(t, now)
	ctx := context.Background()

	r.route(ctx, message(ownerID, "/add daily@09:00 Water the plants"))
	r.route(ctx, message(ownerID, "/done 1"))

	dp.mu.Lock()
	completed := append([]storage.CompletionStatus(nil), dp.completed...)
	dp.mu.Unlock()
	if len(completed) != 1 || completed[0] != storage.StatusDone {
		t.Fatalf("completed = %v", completed)
	}
	if got := ad.last(t).Text; !strings.Contains(got, "Marked \"Water the plants\"") {
		t.Fatalf("done reply = %q", got)
	}
}

func TestStatsEmpty(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 10, 0, 30, 0, time.Local)
	r, ad, _, _ := newTestRouter(t, now)

	r.route(context.Background(), message(ownerID, "/stats"))
	if got := ad.last(t).Text; !strings.Contains(got, "No completions yet") {
		t.Fatalf("stats reply = %q", got)
	}
}

func TestHelpListsSchedules(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 10, 0, 30, 0, time.Local)
	r, ad, _, _ := newTestRouter(t, now)

	r.route(context.Background(), message(ownerID, "/help"))
	got := ad.last(t).Text
	for _, want := range []string{"/add", "daily@07:30", "weekly:mon,thu@21:00", "every:4h"} {
		if !strings.Contains(got, want) {
			t.Fatalf("help %q missing %q", got, want)
		}
	}
}
