package recurrence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Schedule syntax accepted from users:
//
//	daily@07:30                every day at 07:30
//	weekly:mon,thu@21:00       given weekdays at 21:00
//	monthly:15@09:00           the 15th each month at 09:00
//	every:4h / every:2d        every N hours or days from now
//	once:2026-09-01@10:00      a single date at 10:00
//	07:30                      shorthand for daily@07:30
//
// Weekdays accept three-letter names (mon..sun) or digits 1..7 with
// Monday=1.

var (
	reHHMM     = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)
	reInterval = regexp.MustCompile(`^(\d+)([hd])$`)
	reDate     = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
)

var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
	"sun": time.Sunday,
}

// ParseSchedule parses the schedule syntax into a validated Spec and
// TimeOfDay. For "every:" schedules the TimeOfDay is zero and unused.
func ParseSchedule(raw string) (Spec, TimeOfDay, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return Spec{}, TimeOfDay{}, fmt.Errorf("schedule required")
	}

	// Bare HH:MM => daily shorthand.
	if reHHMM.MatchString(s) {
		at, err := ParseTimeOfDay(s)
		if err != nil {
			return Spec{}, TimeOfDay{}, err
		}
		return Daily(), at, nil
	}

	head, at, hasAt, err := splitAt(s)
	if err != nil {
		return Spec{}, TimeOfDay{}, err
	}

	kind, arg, _ := strings.Cut(head, ":")
	switch kind {
	case "daily":
		if arg != "" {
			return Spec{}, TimeOfDay{}, fmt.Errorf("daily takes no argument, got %q", arg)
		}
		if !hasAt {
			return Spec{}, TimeOfDay{}, fmt.Errorf("daily requires a time, e.g. daily@07:30")
		}
		return Daily(), at, nil

	case "weekly":
		if !hasAt {
			return Spec{}, TimeOfDay{}, fmt.Errorf("weekly requires a time, e.g. weekly:mon,thu@21:00")
		}
		days, err := parseWeekdays(arg)
		if err != nil {
			return Spec{}, TimeOfDay{}, err
		}
		spec, err := Weekly(days...)
		if err != nil {
			return Spec{}, TimeOfDay{}, err
		}
		return spec, at, nil

	case "monthly":
		if !hasAt {
			return Spec{}, TimeOfDay{}, fmt.Errorf("monthly requires a time, e.g. monthly:15@09:00")
		}
		day, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return Spec{}, TimeOfDay{}, fmt.Errorf("invalid day of month %q", arg)
		}
		spec, err := Monthly(day)
		if err != nil {
			return Spec{}, TimeOfDay{}, err
		}
		return spec, at, nil

	case "every":
		if hasAt {
			return Spec{}, TimeOfDay{}, fmt.Errorf("every: schedules are interval-based and take no @time")
		}
		m := reInterval.FindStringSubmatch(strings.TrimSpace(arg))
		if m == nil {
			return Spec{}, TimeOfDay{}, fmt.Errorf("invalid interval %q (use e.g. every:4h or every:2d)", arg)
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Spec{}, TimeOfDay{}, fmt.Errorf("invalid interval %q", arg)
		}
		unit := UnitHours
		if m[2] == "d" {
			unit = UnitDays
		}
		spec, err := Every(n, unit)
		if err != nil {
			return Spec{}, TimeOfDay{}, err
		}
		return spec, TimeOfDay{}, nil

	case "once":
		if !hasAt {
			return Spec{}, TimeOfDay{}, fmt.Errorf("once requires a time, e.g. once:2026-09-01@10:00")
		}
		m := reDate.FindStringSubmatch(strings.TrimSpace(arg))
		if m == nil {
			return Spec{}, TimeOfDay{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", arg)
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		spec, err := Once(year, time.Month(month), day)
		if err != nil {
			return Spec{}, TimeOfDay{}, err
		}
		return spec, at, nil
	}

	return Spec{}, TimeOfDay{}, fmt.Errorf(
		"invalid schedule %q (use daily@HH:MM, weekly:days@HH:MM, monthly:N@HH:MM, every:Nh, once:YYYY-MM-DD@HH:MM)",
		raw,
	)
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	m := reHHMM.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return TimeOfDay{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	return At(h, mi)
}

func splitAt(s string) (head string, at TimeOfDay, ok bool, err error) {
	head, tail, found := strings.Cut(s, "@")
	head = strings.TrimSpace(head)
	if !found {
		return head, TimeOfDay{}, false, nil
	}
	at, err = ParseTimeOfDay(tail)
	if err != nil {
		return "", TimeOfDay{}, false, err
	}
	return head, at, true, nil
}

func parseWeekdays(arg string) ([]time.Weekday, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, ErrEmptyWeekdays
	}
	var days []time.Weekday
	for _, tok := range strings.Split(arg, ",") {
		tok = strings.TrimSpace(tok)
		if d, ok := weekdayNames[tok]; ok {
			days = append(days, d)
			continue
		}
		// Digits: Monday=1 .. Sunday=7.
		if n, err := strconv.Atoi(tok); err == nil && n >= 1 && n <= 7 {
			days = append(days, time.Weekday(n%7))
			continue
		}
		return nil, fmt.Errorf("invalid weekday %q (use mon..sun or 1..7)", tok)
	}
	return days, nil
}
