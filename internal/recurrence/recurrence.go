// Package recurrence implements the pure calendar math behind recurring
// lesson agreements: frequency-aware occurrence generation inside a bounded
// query window, plus the small date/time helpers the rest of the scheduling
// engine builds on. The package holds no state and never touches storage.
package recurrence

import (
	"fmt"
	"time"
)

// Frequency enumerates the supported recurrence cadences.
type Frequency string

const (
	FreqDaily    Frequency = "DAILY"
	FreqWeekly   Frequency = "WEEKLY"
	FreqBiweekly Frequency = "BIWEEKLY"
	FreqMonthly  Frequency = "MONTHLY"
)

// Valid reports whether the frequency is one of the supported cadences.
func (f Frequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqBiweekly, FreqMonthly:
		return true
	}
	return false
}

// Pattern describes when an agreement recurs. StartDate and EndDate are
// date-only values (UTC midnight). For MONTHLY the anchor is StartDate's
// day-of-month; Weekday is display-only at that frequency.
type Pattern struct {
	Frequency Frequency
	Weekday   time.Weekday
	StartDate time.Time
	EndDate   *time.Time
}

// DateOnly truncates a timestamp to its calendar date at UTC midnight.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextWeekday returns the first date on weekday w at or after from.
func NextWeekday(from time.Time, w time.Weekday) time.Time {
	from = DateOnly(from)
	delta := (int(w) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, delta)
}

// DaysBetween returns the whole days from a to b (negative when b precedes a).
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// OnCadence reports whether date sits on the same weekly cadence as anchor:
// a whole multiple of 7 days apart. Recurring deviations speak only for
// occurrences on their anchor's cadence, whatever the agreement frequency.
func OnCadence(anchor, date time.Time) bool {
	return DaysBetween(anchor, date)%7 == 0
}

// AddMonthClamped advances a date by n calendar months keeping the anchor
// day-of-month, clamped to the last day of shorter months (day 31 becomes
// day 28/29/30 where needed).
func AddMonthClamped(anchor time.Time, n int, dayOfMonth int) time.Time {
	anchor = DateOnly(anchor)
	first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC)
	shifted := first.AddDate(0, n, 0)
	day := dayOfMonth
	if last := daysInMonth(shifted.Year(), shifted.Month()); day > last {
		day = last
	}
	return time.Date(shifted.Year(), shifted.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Occurrences generates the ordered base-pattern dates of p that fall inside
// [from, to], before any deviation is applied. The window is inclusive on
// both ends and additionally bounded by the pattern's own validity window.
func Occurrences(p Pattern, from, to time.Time) []time.Time {
	from = DateOnly(from)
	to = DateOnly(to)

	lo := from
	if p.StartDate.After(lo) {
		lo = DateOnly(p.StartDate)
	}
	hi := to
	if p.EndDate != nil && p.EndDate.Before(hi) {
		hi = DateOnly(*p.EndDate)
	}
	if hi.Before(lo) {
		return nil
	}

	var dates []time.Time
	switch p.Frequency {
	case FreqDaily:
		for d := lo; !d.After(hi); d = d.AddDate(0, 0, 1) {
			dates = append(dates, d)
		}
	case FreqWeekly:
		for d := NextWeekday(lo, p.Weekday); !d.After(hi); d = d.AddDate(0, 0, 7) {
			dates = append(dates, d)
		}
	case FreqBiweekly:
		anchor := NextWeekday(DateOnly(p.StartDate), p.Weekday)
		first := anchor
		if diff := DaysBetween(anchor, lo); diff > 0 {
			steps := (diff + 13) / 14
			first = anchor.AddDate(0, 0, steps*14)
		}
		for d := first; !d.After(hi); d = d.AddDate(0, 0, 14) {
			dates = append(dates, d)
		}
	case FreqMonthly:
		dom := DateOnly(p.StartDate).Day()
		for n := 0; ; n++ {
			d := AddMonthClamped(p.StartDate, n, dom)
			if d.After(hi) {
				break
			}
			if d.Before(lo) {
				continue
			}
			dates = append(dates, d)
		}
	}
	return dates
}

// IsOccurrence reports whether date d is a base-pattern occurrence of p.
func IsOccurrence(p Pattern, d time.Time) bool {
	d = DateOnly(d)
	if d.Before(DateOnly(p.StartDate)) {
		return false
	}
	if p.EndDate != nil && d.After(DateOnly(*p.EndDate)) {
		return false
	}
	switch p.Frequency {
	case FreqDaily:
		return true
	case FreqWeekly:
		return d.Weekday() == p.Weekday
	case FreqBiweekly:
		anchor := NextWeekday(DateOnly(p.StartDate), p.Weekday)
		diff := DaysBetween(anchor, d)
		return diff >= 0 && diff%14 == 0
	case FreqMonthly:
		dom := DateOnly(p.StartDate).Day()
		want := dom
		if last := daysInMonth(d.Year(), d.Month()); want > last {
			want = last
		}
		return d.Day() == want
	}
	return false
}

// ClockMinutes parses an "HH:MM" wall-clock value into minutes since
// midnight.
func ClockMinutes(clock string) (int, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Overlaps reports whether two half-open minute intervals
// [start1, start1+dur1) and [start2, start2+dur2) intersect.
func Overlaps(start1, dur1, start2, dur2 int) bool {
	return start1 < start2+dur2 && start2 < start1+dur1
}
