package recurrence

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		kind Kind
		at   TimeOfDay
	}{
		{name: "daily", raw: "daily@07:30", kind: KindDaily, at: TimeOfDay{7, 30}},
		{name: "bare hhmm shorthand", raw: "07:30", kind: KindDaily, at: TimeOfDay{7, 30}},
		{name: "weekly names", raw: "weekly:mon,thu@21:00", kind: KindWeekly, at: TimeOfDay{21, 0}},
		{name: "weekly digits", raw: "weekly:1,7@06:15", kind: KindWeekly, at: TimeOfDay{6, 15}},
		{name: "monthly", raw: "monthly:15@09:00", kind: KindMonthly, at: TimeOfDay{9, 0}},
		{name: "every hours", raw: "every:4h", kind: KindEvery},
		{name: "every days", raw: "every:2d", kind: KindEvery},
		{name: "once", raw: "once:2026-09-01@10:00", kind: KindOnce, at: TimeOfDay{10, 0}},
		{name: "mixed case and spaces", raw: "  Daily@08:00 ", kind: KindDaily, at: TimeOfDay{8, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, at, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if spec.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", spec.Kind, tt.kind)
			}
			if at != tt.at {
				t.Fatalf("TimeOfDay = %v, want %v", at, tt.at)
			}
		})
	}
}

func TestParseScheduleDetails(t *testing.T) {
	t.Parallel()

	spec, _, err := ParseSchedule("weekly:mon,thu@21:00")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if !spec.Days.Has(time.Monday) || !spec.Days.Has(time.Thursday) || spec.Days.Count() != 2 {
		t.Fatalf("Days = %s", spec.Days)
	}

	spec, _, err = ParseSchedule("weekly:7@06:00")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if !spec.Days.Has(time.Sunday) {
		t.Fatalf("digit 7 should map to Sunday, got %s", spec.Days)
	}

	spec, _, err = ParseSchedule("every:2d")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if spec.Interval != 2 || spec.Unit != UnitDays {
		t.Fatalf("Interval = %d %v", spec.Interval, spec.Unit)
	}

	spec, _, err = ParseSchedule("once:2026-09-01@10:00")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if spec.Year != 2026 || spec.Month != time.September || spec.Day != 1 {
		t.Fatalf("date = %04d-%02d-%02d", spec.Year, int(spec.Month), spec.Day)
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	bad := []string{
		"",
		"not-a-schedule",
		"daily",              // missing time
		"daily@24:00",        // invalid hour
		"daily@12:60",        // invalid minute
		"weekly:@09:00",      // empty weekday set
		"weekly:funday@09:00",
		"weekly:8@09:00",
		"monthly:0@09:00",
		"monthly:32@09:00",
		"every:0h",
		"every:4x",
		"every:4h@09:00", // interval schedules take no @time
		"once:2026-02-30@10:00",
		"once:tomorrow@10:00",
	}
	for _, raw := range bad {
		if _, _, err := ParseSchedule(raw); err == nil {
			t.Errorf("ParseSchedule(%q) should fail", raw)
		}
	}
}

func TestSpecString(t *testing.T) {
	t.Parallel()
	round := []string{
		"daily",
		"weekly:mon,thu",
		"monthly:15",
		"every:4h",
		"every:2d",
		"once:2026-09-01",
	}
	for _, want := range round {
		spec, _, err := ParseSchedule(specStringToParseable(want))
		if err != nil {
			t.Fatalf("ParseSchedule(%q) error: %v", want, err)
		}
		if got := spec.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

// specStringToParseable re-attaches a time where the syntax requires one.
func specStringToParseable(s string) string {
	switch s {
	case "every:4h", "every:2d":
		return s
	default:
		return s + "@09:00"
	}
}
