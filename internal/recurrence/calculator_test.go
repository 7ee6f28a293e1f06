package recurrence

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.Local)
}

func mustWeekly(t *testing.T, days ...time.Weekday) Spec {
	t.Helper()
	s, err := Weekly(days...)
	if err != nil {
		t.Fatalf("Weekly(%v) error: %v", days, err)
	}
	return s
}

func mustMonthly(t *testing.T, day int) Spec {
	t.Helper()
	s, err := Monthly(day)
	if err != nil {
		t.Fatalf("Monthly(%d) error: %v", day, err)
	}
	return s
}

func TestNextDaily(t *testing.T) {
	t.Parallel()
	// 2024-06-01 is a Saturday.
	now := date(2024, time.June, 1, 10, 0)

	tests := []struct {
		name string
		at   TimeOfDay
		want time.Time
	}{
		// Later today must stay today, not roll to tomorrow.
		{name: "two minutes ahead stays today", at: TimeOfDay{10, 2}, want: date(2024, time.June, 1, 10, 2)},
		{name: "passed time rolls to tomorrow", at: TimeOfDay{9, 0}, want: date(2024, time.June, 2, 9, 0)},
		{name: "exactly now counts as passed", at: TimeOfDay{10, 0}, want: date(2024, time.June, 2, 10, 0)},
		{name: "end of day stays today", at: TimeOfDay{23, 59}, want: date(2024, time.June, 1, 23, 59)},
		{name: "midnight rolls to tomorrow", at: TimeOfDay{0, 0}, want: date(2024, time.June, 2, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Next(Daily(), tt.at, now)
			if !got.Equal(tt.want) {
				t.Fatalf("Next(daily, %s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

// Daily occurrences strictly after now's time-of-day must land on now's
// calendar date, for any now.
func TestNextDailyNoFalseRollover(t *testing.T) {
	t.Parallel()
	nows := []time.Time{
		date(2024, time.June, 1, 0, 0),
		date(2024, time.June, 1, 12, 30),
		date(2024, time.December, 31, 23, 0),
		date(2024, time.February, 28, 6, 15),
	}
	for _, now := range nows {
		at := TimeOfDay{Hour: now.Hour(), Minute: now.Minute()}
		at.Minute++
		if at.Minute > 59 {
			at.Minute = 0
			at.Hour++
		}
		if at.Hour > 23 {
			continue
		}
		got := Next(Daily(), at, now)
		y, m, d := got.Date()
		ny, nm, nd := now.Date()
		if y != ny || m != nm || d != nd {
			t.Fatalf("now=%v at=%s: occurrence %v left the current date", now, at, got)
		}
	}
}

func TestNextWeekly(t *testing.T) {
	t.Parallel()
	now := date(2024, time.June, 1, 10, 0) // Saturday

	tests := []struct {
		name string
		spec Spec
		at   TimeOfDay
		want time.Time
	}{
		{
			// Today's weekday selected but the time has passed: full week wrap.
			name: "same weekday passed wraps a week",
			spec: mustWeekly(t, time.Saturday),
			at:   TimeOfDay{9, 0},
			want: date(2024, time.June, 8, 9, 0),
		},
		{
			name: "same weekday later today",
			spec: mustWeekly(t, time.Saturday),
			at:   TimeOfDay{18, 0},
			want: date(2024, time.June, 1, 18, 0),
		},
		{
			name: "next selected day this week",
			spec: mustWeekly(t, time.Monday, time.Thursday),
			at:   TimeOfDay{7, 0},
			want: date(2024, time.June, 3, 7, 0),
		},
		{
			name: "earliest of several candidates wins",
			spec: mustWeekly(t, time.Sunday, time.Friday),
			at:   TimeOfDay{21, 0},
			want: date(2024, time.June, 2, 21, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Next(tt.spec, tt.at, now)
			if !got.Equal(tt.want) {
				t.Fatalf("Next(%s, %s) = %v, want %v", tt.spec, tt.at, got, tt.want)
			}
		})
	}
}

func TestNextMonthly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		day  int
		at   TimeOfDay
		now  time.Time
		want time.Time
	}{
		{
			name: "later this month",
			day:  15, at: TimeOfDay{9, 0},
			now:  date(2024, time.June, 1, 10, 0),
			want: date(2024, time.June, 15, 9, 0),
		},
		{
			name: "passed this month advances",
			day:  1, at: TimeOfDay{9, 0},
			now:  date(2024, time.June, 1, 10, 0),
			want: date(2024, time.July, 1, 9, 0),
		},
		{
			// Day 31 clamps to Feb 29 in a leap year rather than skipping to March.
			name: "day 31 clamps in february",
			day:  31, at: TimeOfDay{8, 30},
			now:  date(2024, time.January, 31, 9, 0),
			want: date(2024, time.February, 29, 8, 30),
		},
		{
			name: "day 31 clamps in non-leap february",
			day:  31, at: TimeOfDay{8, 0},
			now:  date(2023, time.February, 1, 7, 0),
			want: date(2023, time.February, 28, 8, 0),
		},
		{
			name: "day 31 clamps within current 30-day month",
			day:  31, at: TimeOfDay{12, 0},
			now:  date(2024, time.April, 10, 9, 0),
			want: date(2024, time.April, 30, 12, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Next(mustMonthly(t, tt.day), tt.at, tt.now)
			if !got.Equal(tt.want) {
				t.Fatalf("Next(monthly:%d, %s, now=%v) = %v, want %v", tt.day, tt.at, tt.now, got, tt.want)
			}
		})
	}
}

func TestNextEvery(t *testing.T) {
	t.Parallel()

	every := func(n int, u Unit) Spec {
		s, err := Every(n, u)
		if err != nil {
			t.Fatalf("Every(%d, %v) error: %v", n, u, err)
		}
		return s
	}

	t.Run("hours from now", func(t *testing.T) {
		now := date(2024, time.June, 1, 10, 0)
		got := Next(every(4, UnitHours), TimeOfDay{}, now)
		want := date(2024, time.June, 1, 14, 0)
		if !got.Equal(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("days from now", func(t *testing.T) {
		now := date(2024, time.June, 1, 10, 0)
		got := Next(every(2, UnitDays), TimeOfDay{}, now)
		want := date(2024, time.June, 3, 10, 0)
		if !got.Equal(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("sub-minute now rounds up", func(t *testing.T) {
		now := time.Date(2024, time.June, 1, 10, 0, 20, 0, time.Local)
		got := Next(every(1, UnitHours), TimeOfDay{}, now)
		want := date(2024, time.June, 1, 11, 1)
		if !got.Equal(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got.Before(now.Add(1 * time.Hour)) {
			t.Fatalf("rounded candidate %v fell below now+interval", got)
		}
	})
}

func TestNextOnce(t *testing.T) {
	t.Parallel()
	now := date(2024, time.June, 1, 10, 0)

	spec, err := Once(2024, time.September, 1)
	if err != nil {
		t.Fatalf("Once error: %v", err)
	}
	got := Next(spec, TimeOfDay{10, 0}, now)
	want := date(2024, time.September, 1, 10, 0)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	// A past date is returned as-is; rejecting it is the validator's job.
	past, err := Once(2020, time.January, 1)
	if err != nil {
		t.Fatalf("Once error: %v", err)
	}
	got = Next(past, TimeOfDay{10, 0}, now)
	want = date(2020, time.January, 1, 10, 0)
	if !got.Equal(want) {
		t.Fatalf("past once: got %v, want %v", got, want)
	}
}

func TestSpecConstructorsReject(t *testing.T) {
	t.Parallel()

	if _, err := Weekly(); err == nil {
		t.Error("Weekly() with no days should fail")
	}
	if _, err := Monthly(0); err == nil {
		t.Error("Monthly(0) should fail")
	}
	if _, err := Monthly(32); err == nil {
		t.Error("Monthly(32) should fail")
	}
	if _, err := Every(0, UnitHours); err == nil {
		t.Error("Every(0) should fail")
	}
	if _, err := Once(2024, time.February, 30); err == nil {
		t.Error("Once(feb 30) should fail")
	}
	if _, err := At(24, 0); err == nil {
		t.Error("At(24, 0) should fail")
	}
	if _, err := At(12, 60); err == nil {
		t.Error("At(12, 60) should fail")
	}
}
