package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 29, DaysInMonth(Date(2024, time.February, 10)))
	assert.Equal(t, 28, DaysInMonth(Date(2026, time.February, 1)))
	assert.Equal(t, 31, DaysInMonth(Date(2026, time.October, 31)))
}

func TestDayOfMonthClampsToMonthEnd(t *testing.T) {
	assert.Equal(t, Date(2026, time.February, 28), DayOfMonth(Date(2026, time.February, 3), 31))
	assert.Equal(t, Date(2026, time.April, 1), DayOfMonth(Date(2026, time.April, 20), 0))
}

func TestCountWeekdays(t *testing.T) {
	monWedFri := []time.Weekday{time.Monday, time.Wednesday, time.Friday}

	// June 2026 starts on a Monday.
	assert.Equal(t, 13, CountWeekdays(Date(2026, time.June, 1), Date(2026, time.June, 30), monWedFri))
	assert.Equal(t, 0, CountWeekdays(Date(2026, time.June, 1), Date(2026, time.June, 30), nil))
	assert.Equal(t, 1, CountWeekdays(Date(2026, time.June, 3), Date(2026, time.June, 3), monWedFri))
	assert.Equal(t, 0, CountWeekdays(Date(2026, time.June, 5), Date(2026, time.June, 4), monWedFri))
}

func TestOverlapDays(t *testing.T) {
	monthStart := Date(2026, time.October, 1)
	monthEnd := Date(2026, time.October, 31)

	assert.Equal(t, 12, OverlapDays(Date(2026, time.October, 20), Date(2026, time.November, 15), monthStart, monthEnd))
	assert.Equal(t, 5, OverlapDays(Date(2026, time.September, 20), Date(2026, time.October, 5), monthStart, monthEnd))
	assert.Equal(t, 0, OverlapDays(Date(2026, time.November, 1), Date(2026, time.November, 5), monthStart, monthEnd))
}

func TestTodayUsesLocation(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	clock := FixedClock{At: time.Date(2026, time.October, 14, 20, 0, 0, 0, time.UTC)}

	today := Today(clock, seoul)
	assert.Equal(t, 15, today.Day())
	assert.Equal(t, 0, today.Hour())
}

func TestCompareHelpers(t *testing.T) {
	a := time.Date(2026, time.October, 15, 23, 0, 0, 0, time.UTC)
	b := Date(2026, time.October, 15)
	assert.True(t, SameDay(a, b))
	assert.False(t, Before(a, b))
	assert.True(t, After(AddDays(b, 1), a))
	assert.Equal(t, "2026-10", YearMonth(a))
	assert.Equal(t, Date(2026, time.October, 31), MonthEnd(b))
	assert.Equal(t, Date(2026, time.October, 1), MonthStart(b))
}
