// Package stats turns completion history into progress numbers:
// completion rate, day streaks and a recent per-day breakdown.
package stats

import (
	"sort"
	"time"

	"deedbot/internal/storage"
)

type DayCount struct {
	Date    time.Time // midnight, local
	Done    int
	Skipped int
	Snoozed int
}

type Summary struct {
	Total   int
	Done    int
	Skipped int
	Snoozed int

	// Rate is done / (done + skipped). Snoozes are deferrals, not
	// outcomes, so they don't count against the rate.
	Rate float64

	CurrentStreak int // consecutive days with at least one done, ending today or yesterday
	BestStreak    int

	// Week is the last 7 days, oldest first, today last.
	Week [7]DayCount
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Compute summarizes a chat's completion rows relative to now.
// Rows may arrive in any order.
func Compute(rows []storage.Completion, now time.Time) Summary {
	var s Summary
	today := midnight(now)
	for i := range s.Week {
		s.Week[i].Date = today.AddDate(0, 0, i-6)
	}

	doneDays := map[time.Time]bool{}
	for _, c := range rows {
		s.Total++
		day := midnight(c.At.In(now.Location()))
		switch c.Status {
		case storage.StatusDone:
			s.Done++
			doneDays[day] = true
		case storage.StatusSkipped:
			s.Skipped++
		case storage.StatusSnoozed:
			s.Snoozed++
		}

		// Match by calendar date rather than hour arithmetic so DST
		// shifts can't bucket a row into the wrong day.
		for i := range s.Week {
			if !day.Equal(s.Week[i].Date) {
				continue
			}
			switch c.Status {
			case storage.StatusDone:
				s.Week[i].Done++
			case storage.StatusSkipped:
				s.Week[i].Skipped++
			case storage.StatusSnoozed:
				s.Week[i].Snoozed++
			}
			break
		}
	}

	if outcomes := s.Done + s.Skipped; outcomes > 0 {
		s.Rate = float64(s.Done) / float64(outcomes)
	}

	s.CurrentStreak, s.BestStreak = streaks(doneDays, today)
	return s
}

// streaks returns the running streak (ending today, or yesterday if
// today has no completion yet) and the best streak ever.
func streaks(doneDays map[time.Time]bool, today time.Time) (current, best int) {
	if len(doneDays) == 0 {
		return 0, 0
	}

	start := today
	if !doneDays[start] {
		start = start.AddDate(0, 0, -1)
	}
	for d := start; doneDays[d]; d = d.AddDate(0, 0, -1) {
		current++
	}

	days := make([]time.Time, 0, len(doneDays))
	for d := range doneDays {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	run := 1
	best = 1
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour || days[i].AddDate(0, 0, -1).Equal(days[i-1]) {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return current, best
}
