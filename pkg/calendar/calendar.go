// Package calendar holds the date arithmetic shared by scheduling and billing.
// All helpers work on calendar dates: values are truncated to midnight in
// their own location and compared by year/month/day only.
package calendar

import "time"

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.At }

// Today returns the current date in loc.
func Today(clock Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(clock.Now().In(loc))
}

// DateOf truncates t to midnight in its location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Date builds a midnight UTC date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysInMonth returns the number of days in t's month.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// MonthStart returns the first day of t's month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// MonthEnd returns the last day of t's month.
func MonthEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location())
}

// YearMonth formats t as YYYY-MM.
func YearMonth(t time.Time) string {
	return t.Format("2006-01")
}

// AddDays moves a date by n calendar days, independent of DST.
func AddDays(t time.Time, n int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+n, 0, 0, 0, 0, t.Location())
}

// DayOfMonth returns the date with the given day in t's month, clamped to month end.
func DayOfMonth(t time.Time, day int) time.Time {
	if day < 1 {
		day = 1
	}
	if last := DaysInMonth(t); day > last {
		day = last
	}
	return time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, t.Location())
}

// Before reports whether a's date is strictly before b's date.
func Before(a, b time.Time) bool {
	return compare(a, b) < 0
}

// After reports whether a's date is strictly after b's date.
func After(a, b time.Time) bool {
	return compare(a, b) > 0
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return compare(a, b) == 0
}

func compare(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	switch {
	case ay != by:
		return ay - by
	case am != bm:
		return int(am) - int(bm)
	default:
		return ad - bd
	}
}

// EachDay calls fn for every date in [from, to].
func EachDay(from, to time.Time, fn func(day time.Time)) {
	for day := DateOf(from); !After(day, to); day = AddDays(day, 1) {
		fn(day)
	}
}

// CountWeekdays counts dates in [from, to] whose weekday is in days.
func CountWeekdays(from, to time.Time, days []time.Weekday) int {
	if len(days) == 0 {
		return 0
	}
	set := make(map[time.Weekday]struct{}, len(days))
	for _, d := range days {
		set[d] = struct{}{}
	}
	count := 0
	EachDay(from, to, func(day time.Time) {
		if _, ok := set[day.Weekday()]; ok {
			count++
		}
	})
	return count
}

// OverlapDays returns the inclusive number of days shared by [aFrom, aTo] and [bFrom, bTo].
func OverlapDays(aFrom, aTo, bFrom, bTo time.Time) int {
	start := aFrom
	if After(bFrom, start) {
		start = bFrom
	}
	end := aTo
	if Before(bTo, end) {
		end = bTo
	}
	if After(start, end) {
		return 0
	}
	days := 0
	EachDay(start, end, func(time.Time) { days++ })
	return days
}
