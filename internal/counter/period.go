package counter

import (
	"time"

	"github.com/benvon/smaug/internal/models"
)

var daysPerMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// Boundaries holds the last instant of the current window for each period.
type Boundaries struct {
	Minute time.Time `json:"minute" yaml:"minute"`
	Hour   time.Time `json:"hour" yaml:"hour"`
	Day    time.Time `json:"day" yaml:"day"`
	Month  time.Time `json:"month" yaml:"month"`
}

// For returns the boundary of p, or the zero time for an unknown period.
func (b Boundaries) For(p models.Period) time.Time {
	switch p {
	case models.PeriodMinute:
		return b.Minute
	case models.PeriodHour:
		return b.Hour
	case models.PeriodDay:
		return b.Day
	case models.PeriodMonth:
		return b.Month
	}
	return time.Time{}
}

// Map returns the boundaries keyed by period.
func (b Boundaries) Map() map[models.Period]time.Time {
	return map[models.Period]time.Time{
		models.PeriodMinute: b.Minute,
		models.PeriodHour:   b.Hour,
		models.PeriodDay:    b.Day,
		models.PeriodMonth:  b.Month,
	}
}

// PeriodEnds computes the window ends for t in t's location. The month end is
// the last day of the month at 23:59:59; each finer boundary keeps the
// trailing clock components of the coarser one and replaces the leading
// component with t's own day, hour or minute.
func PeriodEnds(t time.Time) Boundaries {
	loc := t.Location()
	year, month, day := t.Date()

	monthEnd := time.Date(year, month, lastDayOfMonth(year, month), 23, 59, 59, 0, loc)
	h, m, s := monthEnd.Clock()
	dayEnd := time.Date(year, month, day, h, m, s, 0, loc)
	hourEnd := time.Date(year, month, day, t.Hour(), dayEnd.Minute(), dayEnd.Second(), 0, loc)
	minuteEnd := time.Date(year, month, day, t.Hour(), t.Minute(), hourEnd.Second(), 0, loc)

	return Boundaries{
		Minute: minuteEnd,
		Hour:   hourEnd,
		Day:    dayEnd,
		Month:  monthEnd,
	}
}

func lastDayOfMonth(year int, month time.Month) int {
	if month == time.February && isLeapYear(year) {
		return 29
	}
	return daysPerMonth[month-1]
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
