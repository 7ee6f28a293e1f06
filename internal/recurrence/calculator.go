package recurrence

import "time"

// Next computes the next occurrence of spec at the given time-of-day,
// relative to the injected now. The candidate is always a full instant
// in now's location.
//
// The "already passed" check compares complete instants (date AND
// time-of-day) against now. Comparing the time-of-day alone would roll
// "2 minutes from now" to tomorrow whenever the date is fixed first;
// that is exactly the bug class this function exists to prevent.
//
// An occurrence exactly equal to now counts as already passed.
//
// For KindOnce the specified date is honored even when it lies in the
// past; rejecting past instants is the validator's job.
func Next(spec Spec, at TimeOfDay, now time.Time) time.Time {
	switch spec.Kind {
	case KindDaily:
		// Today, or tomorrow if today's instant is not strictly in the future.
		for i := 0; i <= 1; i++ {
			cand := at.on(now.AddDate(0, 0, i))
			if cand.After(now) {
				return cand
			}
		}

	case KindWeekly:
		// Scan forward day-by-day, today inclusive, wrapping into next week.
		// Day 7 covers "today qualifies but today's time has passed".
		for i := 0; i <= 7; i++ {
			d := now.AddDate(0, 0, i)
			if !spec.Days.Has(d.Weekday()) {
				continue
			}
			cand := at.on(d)
			if cand.After(now) {
				return cand
			}
		}

	case KindMonthly:
		// Current month first, then next month. Short months clamp the
		// day to their last day.
		for i := 0; i <= 1; i++ {
			first := time.Date(now.Year(), now.Month()+time.Month(i), 1, 0, 0, 0, 0, now.Location())
			day := clampDay(spec.DayOfMonth, first.Year(), first.Month())
			cand := time.Date(first.Year(), first.Month(), day, at.Hour, at.Minute, 0, 0, now.Location())
			if cand.After(now) {
				return cand
			}
		}

	case KindEvery:
		return ceilMinute(now.Add(spec.interval()))

	case KindOnce:
		return time.Date(spec.Year, spec.Month, spec.Day, at.Hour, at.Minute, 0, 0, now.Location())
	}

	return time.Time{}
}

func (s Spec) interval() time.Duration {
	d := time.Duration(s.Interval) * time.Hour
	if s.Unit == UnitDays {
		d *= 24
	}
	return d
}

// clampDay caps day to the number of days in (year, month).
func clampDay(day int, year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

// ceilMinute rounds t up to the next whole minute (exact minutes stay).
// Rounding up guarantees the result never lands before the unrounded
// instant, so an interval candidate cannot drop below now+interval.
func ceilMinute(t time.Time) time.Time {
	trunc := t.Truncate(time.Minute)
	if trunc.Before(t) {
		return trunc.Add(time.Minute)
	}
	return trunc
}
