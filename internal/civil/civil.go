package civil

import (
	"fmt"
	"time"
)

// Instant is a calendar-local date and time together with the fields
// derived from it (year-day, weekday) and the absolute instant it denotes.
//
// The derived fields are only ever produced by normalize; callers mutate an
// Instant exclusively through the Add* helpers, so YearDay and Weekday always
// agree with (Year, Month, Day).
type Instant struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int

	// YearDay is 1-based (Jan 1 == 1).
	YearDay int
	Weekday time.Weekday

	// Unix is seconds since the epoch.
	Unix int64

	loc *time.Location
}

// FromUnix converts epoch seconds into the civil fields of loc.
// A nil loc means time.Local.
func FromUnix(sec int64, loc *time.Location) Instant {
	if loc == nil {
		loc = time.Local
	}
	return fromTime(time.Unix(sec, 0).In(loc))
}

// FromTime converts t into the civil fields of t's own location.
func FromTime(t time.Time) Instant {
	return fromTime(t)
}

// Date returns local midnight of the given date in loc. Out of range month or
// day values are normalized the same way AddDays does it.
func Date(year int, month time.Month, day int, loc *time.Location) Instant {
	if loc == nil {
		loc = time.Local
	}
	return normalize(year, month, day, 0, 0, 0, loc)
}

func fromTime(t time.Time) Instant {
	return Instant{
		Year:    t.Year(),
		Month:   t.Month(),
		Day:     t.Day(),
		Hour:    t.Hour(),
		Minute:  t.Minute(),
		Second:  t.Second(),
		YearDay: t.YearDay(),
		Weekday: t.Weekday(),
		Unix:    t.Unix(),
		loc:     t.Location(),
	}
}

// normalize folds overflowing fields (e.g. July 32 -> August 1) and recomputes
// every derived field from the result.
func normalize(year int, month time.Month, day, hour, min, sec int, loc *time.Location) Instant {
	return fromTime(time.Date(year, month, day, hour, min, sec, 0, loc))
}

// Location returns the zone the civil fields are expressed in.
func (i Instant) Location() *time.Location {
	if i.loc == nil {
		return time.Local
	}
	return i.loc
}

// Time returns i as a time.Time in its own location.
func (i Instant) Time() time.Time {
	return time.Unix(i.Unix, 0).In(i.Location())
}

// AddDays moves the date portion by n calendar days, keeping the wall clock
// time. n may be negative.
func (i Instant) AddDays(n int) Instant {
	return normalize(i.Year, i.Month, i.Day+n, i.Hour, i.Minute, i.Second, i.Location())
}

// AddWeeks is AddDays(7*n).
func (i Instant) AddWeeks(n int) Instant {
	return i.AddDays(7 * n)
}

// AddYear advances i by one calendar year worth of days: 366 when a Feb 29
// falls between i and the same date next year, 365 otherwise.
func (i Instant) AddYear() Instant {
	var leapAhead bool
	switch {
	case i.Month == time.February && i.Day == 29:
		leapAhead = false
	case i.Month <= time.February:
		leapAhead = IsLeapYear(i.Year)
	default:
		leapAhead = IsLeapYear(i.Year + 1)
	}
	if leapAhead {
		return i.AddDays(366)
	}
	return i.AddDays(365)
}

// Midnight returns the start of i's calendar day.
func (i Instant) Midnight() Instant {
	return normalize(i.Year, i.Month, i.Day, 0, 0, 0, i.Location())
}

// String formats i as "2006-01-02 15:04:05".
func (i Instant) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", i.Year, int(i.Month), i.Day, i.Hour, i.Minute, i.Second)
}

// IsLeapYear reports whether y is a Gregorian leap year.
func IsLeapYear(y int) bool {
	switch {
	case y%400 == 0:
		return true
	case y%100 == 0:
		return false
	case y%4 == 0:
		return true
	default:
		return false
	}
}

var monthDays = [...]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// DaysInMonth returns the number of days of month m in year y.
func DaysInMonth(y int, m time.Month) int {
	if m == time.February && IsLeapYear(y) {
		return 29
	}
	return monthDays[m-1]
}

// SameCalendarDay reports whether a and b fall on the same civil date.
func SameCalendarDay(a, b Instant) bool {
	return a.Year == b.Year && a.YearDay == b.YearDay
}

// DaysBetween returns the number of civil days from a's date to b's date.
// Wall clock times are ignored; the result is negative if b is earlier.
func DaysBetween(a, b Instant) int {
	da := time.Date(a.Year, a.Month, a.Day, 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year, b.Month, b.Day, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
