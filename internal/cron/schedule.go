package cron

import (
	"fmt"
	"time"
)

// maxYearScan bounds the search for a valid date. Feb 29 needs at most eight
// years (1896 to 1904 skips a leap year).
const maxYearScan = 8

// YearlySchedule fires once a year at Hour:Minute on Month/Day. It implements
// robfig/cron's Schedule so it can share the Registry's runner with
// expression jobs. Feb 29 fires only in leap years.
type YearlySchedule struct {
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// Next returns the first trigger instant strictly after t, in t's location.
// A zero time means the date never occurs.
func (s YearlySchedule) Next(t time.Time) time.Time {
	loc := t.Location()
	for y := t.Year(); y <= t.Year()+maxYearScan; y++ {
		c := time.Date(y, s.Month, s.Day, s.Hour, s.Minute, 0, 0, loc)
		// time.Date normalizes Feb 30 into March; skip those years
		if c.Month() != s.Month || c.Day() != s.Day {
			continue
		}
		if c.After(t) {
			return c
		}
	}
	return time.Time{}
}

func (s YearlySchedule) Valid() bool {
	if s.Month < time.January || s.Month > time.December {
		return false
	}
	if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
		return false
	}
	// 2000 is a leap year so Feb 29 passes here
	c := time.Date(2000, s.Month, s.Day, 0, 0, 0, 0, time.UTC)
	return s.Day >= 1 && c.Month() == s.Month && c.Day() == s.Day
}

func (s YearlySchedule) String() string {
	return fmt.Sprintf("yearly %02d-%02d %02d:%02d", int(s.Month), s.Day, s.Hour, s.Minute)
}
