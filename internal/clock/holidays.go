package clock

import "time"

// HolidayCalendar answers whether a given date is a market holiday.
type HolidayCalendar interface {
	IsHoliday(t time.Time) bool
}

// NYSEHolidays computes the fixed, rule-based set of NYSE-observed
// holidays per year (New Year's Day, MLK Day, Presidents' Day, Good
// Friday, Memorial Day, Juneteenth, Independence Day, Labor Day,
// Thanksgiving, Christmas), rather than a literal dated list, so the
// simulation's 1970-to-present-and-beyond range never runs out of table.
type NYSEHolidays struct{}

// IsHoliday reports whether t's calendar date (in Location) is an observed
// NYSE holiday.
func (NYSEHolidays) IsHoliday(t time.Time) bool {
	t = t.In(Location)
	y := t.Year()
	d := dateOnly(t)

	for _, h := range []time.Time{
		observedFixed(y, time.January, 1),
		nthWeekday(y, time.January, time.Monday, 3),   // MLK Day
		nthWeekday(y, time.February, time.Monday, 3),  // Presidents' Day
		goodFriday(y),
		lastWeekday(y, time.May, time.Monday),         // Memorial Day
		observedFixed(y, time.June, 19),               // Juneteenth
		observedFixed(y, time.July, 4),
		nthWeekday(y, time.September, time.Monday, 1), // Labor Day
		nthWeekday(y, time.November, time.Thursday, 4), // Thanksgiving
		observedFixed(y, time.December, 25),
	} {
		if dateOnly(h).Equal(d) {
			return true
		}
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Location)
}

// observedFixed returns the given month/day, shifted to the nearest
// weekday if it falls on a weekend (Saturday -> Friday, Sunday -> Monday).
func observedFixed(year int, month time.Month, day int) time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, Location)
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	default:
		return t
	}
}

// nthWeekday returns the nth occurrence of weekday in month/year (1-based).
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	t := time.Date(year, month, 1, 0, 0, 0, 0, Location)
	offset := (int(weekday) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, offset+7*(n-1))
}

// lastWeekday returns the last occurrence of weekday in month/year.
func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	next := time.Date(year, month+1, 1, 0, 0, 0, 0, Location)
	last := next.AddDate(0, 0, -1)
	offset := (int(last.Weekday()) - int(weekday) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// goodFriday computes Good Friday (two days before Easter Sunday) via the
// anonymous Gregorian computus algorithm.
func goodFriday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	easter := time.Date(year, time.Month(month), day, 0, 0, 0, 0, Location)
	return easter.AddDate(0, 0, -2)
}
