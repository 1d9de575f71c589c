package tariff

import (
	"time"

	"cloud.google.com/go/civil"
)

// =============================================================================
// CALENDAR UTILITIES - Query dates are calendar days, never instants
// =============================================================================

func NewDate(year int, month time.Month, day int) civil.Date {
	return civil.Date{Year: year, Month: month, Day: day}
}

func StartOfYear(year int) civil.Date { return NewDate(year, time.January, 1) }
func EndOfYear(year int) civil.Date   { return NewDate(year, time.December, 31) }

// MidYear is the neutral sampling point for a year without suspensions.
func MidYear(year int) civil.Date { return NewDate(year, time.July, 1) }

// ParseDate parses an ISO date (YYYY-MM-DD).
func ParseDate(s string) (civil.Date, error) {
	return civil.ParseDate(s)
}

// Today returns the current date in UTC.
func Today() civil.Date {
	return civil.DateOf(time.Now().UTC())
}

func onOrBefore(a, b civil.Date) bool { return !a.After(b) }
func onOrAfter(a, b civil.Date) bool  { return !a.Before(b) }

func laterOf(a, b civil.Date) civil.Date {
	if a.After(b) {
		return a
	}
	return b
}
