package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind selects the frequency variant of a Spec.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindDaily
	KindWeekly
	KindMonthly
	KindEvery
	KindOnce
)

func (k Kind) String() string {
	switch k {
	case KindDaily:
		return "daily"
	case KindWeekly:
		return "weekly"
	case KindMonthly:
		return "monthly"
	case KindEvery:
		return "every"
	case KindOnce:
		return "once"
	default:
		return "unknown"
	}
}

// Unit is the interval unit for KindEvery.
type Unit uint8

const (
	UnitHours Unit = iota
	UnitDays
)

func (u Unit) String() string {
	if u == UnitDays {
		return "d"
	}
	return "h"
}

// Weekdays is a bitmask set of time.Weekday.
type Weekdays uint8

func WeekdaysOf(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w
}

func (w Weekdays) Has(d time.Weekday) bool { return w&(1<<uint(d)) != 0 }

func (w Weekdays) Count() int {
	n := 0
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Has(d) {
			n++
		}
	}
	return n
}

func (w Weekdays) String() string {
	var parts []string
	// Render Monday-first; that is how users write schedules.
	order := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		time.Friday, time.Saturday, time.Sunday,
	}
	for _, d := range order {
		if w.Has(d) {
			parts = append(parts, strings.ToLower(d.String()[:3]))
		}
	}
	return strings.Join(parts, ",")
}

// Spec is an immutable frequency specification.
//
// A valid Spec is only obtained through one of the constructors below;
// malformed input fails there, before it can ever reach the calculator.
type Spec struct {
	Kind Kind

	// KindWeekly
	Days Weekdays

	// KindMonthly
	DayOfMonth int

	// KindEvery
	Interval int
	Unit     Unit

	// KindOnce
	Year  int
	Month time.Month
	Day   int
}

var (
	ErrEmptyWeekdays    = errors.New("weekly spec requires at least one weekday")
	ErrDayOfMonthRange  = errors.New("day of month must be within 1..31")
	ErrIntervalPositive = errors.New("interval must be >= 1")
)

// Daily occurs every day at the given time-of-day.
func Daily() Spec { return Spec{Kind: KindDaily} }

// Weekly occurs on the given weekdays. The set must be non-empty.
func Weekly(days ...time.Weekday) (Spec, error) {
	w := WeekdaysOf(days...)
	if w == 0 {
		return Spec{}, ErrEmptyWeekdays
	}
	return Spec{Kind: KindWeekly, Days: w}, nil
}

// Monthly occurs on the given day each month (1..31). In months shorter
// than day, the occurrence clamps to the last day of that month.
func Monthly(day int) (Spec, error) {
	if day < 1 || day > 31 {
		return Spec{}, fmt.Errorf("%w: got %d", ErrDayOfMonthRange, day)
	}
	return Spec{Kind: KindMonthly, DayOfMonth: day}, nil
}

// Every occurs every n units (hours or days), relative to "now".
// The time-of-day parameter is ignored for this variant.
func Every(n int, unit Unit) (Spec, error) {
	if n < 1 {
		return Spec{}, fmt.Errorf("%w: got %d", ErrIntervalPositive, n)
	}
	if unit != UnitHours && unit != UnitDays {
		return Spec{}, fmt.Errorf("unknown interval unit %d", unit)
	}
	return Spec{Kind: KindEvery, Interval: n, Unit: unit}, nil
}

// Once is a single occurrence on a specific calendar date.
func Once(year int, month time.Month, day int) (Spec, error) {
	if year < 1 {
		return Spec{}, fmt.Errorf("invalid year %d", year)
	}
	// Round-trip through time.Date to catch impossible dates (feb 30, month 13).
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Spec{}, fmt.Errorf("invalid date %04d-%02d-%02d", year, int(month), day)
	}
	return Spec{Kind: KindOnce, Year: year, Month: month, Day: day}, nil
}

// Recurring reports whether the spec produces more than one occurrence.
func (s Spec) Recurring() bool { return s.Kind != KindOnce && s.Kind != KindUnknown }

func (s Spec) String() string {
	switch s.Kind {
	case KindDaily:
		return "daily"
	case KindWeekly:
		return "weekly:" + s.Days.String()
	case KindMonthly:
		return fmt.Sprintf("monthly:%d", s.DayOfMonth)
	case KindEvery:
		return fmt.Sprintf("every:%d%s", s.Interval, s.Unit)
	case KindOnce:
		return fmt.Sprintf("once:%04d-%02d-%02d", s.Year, int(s.Month), s.Day)
	default:
		return "unknown"
	}
}

// TimeOfDay is a wall-clock time with no date and no zone.
type TimeOfDay struct {
	Hour   int // 0..23
	Minute int // 0..59
}

// At validates hour/minute ranges.
func At(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour %d", hour)
	}
	if minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute %d", minute)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// on places the time-of-day onto d's calendar date, in d's location.
func (t TimeOfDay) on(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, d.Location())
}
