// Package birthday holds the reminder entity and its date rules.
package birthday

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const MinYear = 1900

var (
	ErrValidation = errors.New("invalid birthday")
	ErrDuplicate  = errors.New("birthday already exists")
	ErrNotFound   = errors.New("birthday not found")
)

// ValidationError describes bad user input. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Birthday is one tracked subject. Year is 0 when the birth year is unknown.
type Birthday struct {
	SubjectID string
	Name      string
	Month     time.Month
	Day       int
	Year      int
}

// Store persists birthdays keyed by subject id.
type Store interface {
	GetBirthday(ctx context.Context, subjectID string) (*Birthday, error)
	InsertBirthday(ctx context.Context, b Birthday) error
	UpdateBirthday(ctx context.Context, b Birthday) error
	DeleteBirthday(ctx context.Context, subjectID string) (bool, error)
	ListBirthdays(ctx context.Context) ([]Birthday, error)
}

// Validate checks the date against the calendar. now bounds the birth year.
func (b Birthday) Validate(now time.Time) error {
	if b.SubjectID == "" {
		return &ValidationError{Field: "subject", Reason: "must not be empty"}
	}
	if b.Month < time.January || b.Month > time.December {
		return &ValidationError{Field: "month", Reason: fmt.Sprintf("%d is not between 1 and 12", b.Month)}
	}
	if b.Year != 0 && (b.Year < MinYear || b.Year > now.Year()+1) {
		return &ValidationError{Field: "year", Reason: fmt.Sprintf("must be between %d and %d", MinYear, now.Year()+1)}
	}
	// Feb 29 is a real birthday even though the birth year is unknown.
	refYear := b.Year
	if refYear == 0 {
		refYear = 2000
	}
	if b.Day < 1 || b.Day > DaysIn(b.Month, refYear) {
		return &ValidationError{Field: "day", Reason: fmt.Sprintf("%s has no day %d", b.Month, b.Day)}
	}
	return nil
}

// IsToday reports whether t falls on the birthday's month and day.
func (b Birthday) IsToday(t time.Time) bool {
	return t.Month() == b.Month && t.Day() == b.Day
}

// AgeOn returns the age turned on t, or 0 when the year is unknown.
func (b Birthday) AgeOn(t time.Time) int {
	if b.Year == 0 {
		return 0
	}
	age := t.Year() - b.Year
	if t.Month() < b.Month || (t.Month() == b.Month && t.Day() < b.Day) {
		age--
	}
	return age
}

// Next returns the next midnight in t's location on which the birthday falls, on or
// after the start of the day containing t.
func (b Birthday) Next(t time.Time) time.Time {
	today := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	for y := t.Year(); y <= t.Year()+8; y++ {
		if b.Day > DaysIn(b.Month, y) {
			continue
		}
		c := time.Date(y, b.Month, b.Day, 0, 0, 0, 0, t.Location())
		if !c.Before(today) {
			return c
		}
	}
	return time.Time{}
}

// DaysUntil counts whole days from t's date to the next occurrence.
func (b Birthday) DaysUntil(t time.Time) int {
	next := b.Next(t)
	if next.IsZero() {
		return -1
	}
	today := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return int(next.Sub(today).Hours()/24 + 0.5)
}

// FormatDate renders the month and day, e.g. "Jan 02".
func (b Birthday) FormatDate() string {
	return time.Date(2000, b.Month, b.Day, 0, 0, 0, 0, time.UTC).Format("Jan 02")
}

func DaysIn(m time.Month, year int) int {
	if m == time.February {
		if isLeap(year) {
			return 29
		}
		return 28
	}
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
