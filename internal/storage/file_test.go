package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "deedbot/pkg/logx"
)

func openTestStore(t *testing.T, dir string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "deedbot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	return st
}

func TestFileStoreReminderRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	st := openTestStore(t, dir)

	next := time.Now().Add(time.Hour).Truncate(time.Second)
	r := Reminder{ID: "r1", ChatID: 42, Title: "morning walk", Schedule: "daily@07:30", NextAt: next}
	if err := st.PutReminder(ctx, r); err != nil {
		t.Fatalf("PutReminder error: %v", err)
	}

	got, ok, err := st.GetReminder(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("GetReminder = (%v, %v, %v)", got, ok, err)
	}
	if got.Title != "morning walk" || got.Schedule != "daily@07:30" || !got.NextAt.Equal(next) {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}

	// Survives reopen.
	if err := st.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	st = openTestStore(t, dir)
	defer st.Close()

	got, ok, err = st.GetReminder(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("GetReminder after reopen = (%v, %v)", ok, err)
	}
	if !got.NextAt.Equal(next) {
		t.Fatalf("NextAt after reopen = %v, want %v", got.NextAt, next)
	}
}

func TestFileStoreListAndMutate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		r := Reminder{ID: id, ChatID: 1, Title: id, Schedule: "daily@09:00", NextAt: base.Add(time.Duration(3-i) * time.Hour)}
		if err := st.PutReminder(ctx, r); err != nil {
			t.Fatalf("PutReminder(%s) error: %v", id, err)
		}
	}
	if err := st.PutReminder(ctx, Reminder{ID: "other", ChatID: 2, Title: "x", Schedule: "daily@09:00", NextAt: base}); err != nil {
		t.Fatalf("PutReminder error: %v", err)
	}

	list, err := st.ListReminders(ctx, 1)
	if err != nil {
		t.Fatalf("ListReminders error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	// Ordered by NextAt ascending.
	if list[0].ID != "c" || list[2].ID != "a" {
		t.Fatalf("order = %s,%s,%s", list[0].ID, list[1].ID, list[2].ID)
	}

	all, err := st.ListReminders(ctx, 0)
	if err != nil {
		t.Fatalf("ListReminders(all) error: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len(all) = %d, want 4", len(all))
	}

	if err := st.SetPaused(ctx, "a", true); err != nil {
		t.Fatalf("SetPaused error: %v", err)
	}
	got, _, _ := st.GetReminder(ctx, "a")
	if !got.Paused {
		t.Fatal("reminder not paused")
	}

	newNext := base.Add(48 * time.Hour)
	if err := st.SetNextAt(ctx, "b", newNext); err != nil {
		t.Fatalf("SetNextAt error: %v", err)
	}
	got, _, _ = st.GetReminder(ctx, "b")
	if !got.NextAt.Equal(newNext) {
		t.Fatalf("NextAt = %v, want %v", got.NextAt, newNext)
	}

	if err := st.DeleteReminder(ctx, "c"); err != nil {
		t.Fatalf("DeleteReminder error: %v", err)
	}
	if err := st.DeleteReminder(ctx, "c"); err != ErrNotFound {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
}

func TestFileStoreCompletions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	now := time.Now()
	entries := []Completion{
		{ReminderID: "r1", ChatID: 1, Status: StatusDone, FiredAt: now.Add(-2 * time.Hour), At: now.Add(-2 * time.Hour)},
		{ReminderID: "r1", ChatID: 1, Status: StatusSkipped, FiredAt: now.Add(-time.Hour), At: now.Add(-time.Hour)},
		{ReminderID: "r2", ChatID: 1, Status: StatusDone, FiredAt: now, At: now},
		{ReminderID: "r3", ChatID: 2, Status: StatusDone, FiredAt: now, At: now},
	}
	for _, c := range entries {
		if err := st.AppendCompletion(ctx, c); err != nil {
			t.Fatalf("AppendCompletion error: %v", err)
		}
	}

	got, err := st.ListCompletions(ctx, 1, "", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ListCompletions error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	got, err = st.ListCompletions(ctx, 1, "r1", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ListCompletions(r1) error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(r1) = %d, want 2", len(got))
	}

	// since filter cuts old entries.
	got, err = st.ListCompletions(ctx, 1, "", now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("ListCompletions(since) error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(since) = %d, want 1", len(got))
	}
}

func TestFileStoreDedupSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	st := openTestStore(t, dir)

	until := time.Now().Add(time.Hour)
	if err := st.PutDedup(ctx, "r1:1700000000", until); err != nil {
		t.Fatalf("PutDedup error: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	st = openTestStore(t, dir)
	defer st.Close()
	got, ok, err := st.GetDedup(ctx, "r1:1700000000")
	if err != nil || !ok {
		t.Fatalf("GetDedup = (%v, %v)", ok, err)
	}
	if got.UnixMilli() != until.UnixMilli() {
		t.Fatalf("until = %v, want %v", got, until)
	}

	if _, ok, _ := st.GetDedup(ctx, "missing"); ok {
		t.Fatal("missing key reported present")
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: ""}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("disabled Open = (%v, %v), want (nil, nil)", st, err)
	}
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
}
