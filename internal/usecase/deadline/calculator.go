package deadline

import (
	"fmt"
	"time"
)

// Default return deadline: 3:00 PM local time
const (
	DefaultHour   = 15
	DefaultMinute = 0
)

// TimeInfo describes a request's position relative to its deadline.
// When IsOverdue is true, Hours/Minutes are the time elapsed since the
// deadline; otherwise they are the time remaining until it.
type TimeInfo struct {
	IsOverdue bool
	Hours     int
	Minutes   int
	Message   string
}

// Validation is the result of checking a proposed return date
type Validation struct {
	IsValid bool
	Message string
}

// Calculator computes the daily return cutoff and distances to it.
// All methods are pure functions of their inputs; the current time is
// always passed in explicitly so behaviour is deterministic under test.
type Calculator struct {
	hour   int
	minute int
}

// NewCalculator creates a calculator with the given cutoff time.
// Out-of-range values fall back to the 3:00 PM default.
func NewCalculator(hour, minute int) *Calculator {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		hour = DefaultHour
		minute = DefaultMinute
	}
	return &Calculator{hour: hour, minute: minute}
}

// DeadlineFor returns the given date with its time set to the cutoff
// (15:00:00.000 local by default)
func (c *Calculator) DeadlineFor(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.hour, c.minute, 0, 0, date.Location())
}

// TimeUntil computes the distance between now and a deadline.
// Overdue iff now >= deadline.
func (c *Calculator) TimeUntil(deadline, now time.Time) TimeInfo {
	diff := deadline.Sub(now)

	if diff <= 0 {
		elapsed := -diff
		hours := int(elapsed / time.Hour)
		minutes := int((elapsed % time.Hour) / time.Minute)
		return TimeInfo{
			IsOverdue: true,
			Hours:     hours,
			Minutes:   minutes,
			Message:   fmt.Sprintf("Overdue by %dh %dm", hours, minutes),
		}
	}

	hours := int(diff / time.Hour)
	minutes := int((diff % time.Hour) / time.Minute)

	var message string
	if hours > 0 {
		message = fmt.Sprintf("%dh %dm remaining", hours, minutes)
	} else {
		message = fmt.Sprintf("%dm remaining", minutes)
	}

	return TimeInfo{
		IsOverdue: false,
		Hours:     hours,
		Minutes:   minutes,
		Message:   message,
	}
}

// ValidateReturnDate checks a proposed return date against the cutoff rules:
// the date's cutoff must not already be in the past, and "today" is rejected
// once today's cutoff has passed.
func (c *Calculator) ValidateReturnDate(returnDate, now time.Time) Validation {
	cutoff := c.DeadlineFor(returnDate)

	if cutoff.Before(now) {
		return Validation{
			IsValid: false,
			Message: "Return date cannot be in the past",
		}
	}

	if sameDay(returnDate, now) && c.IsPastDeadline(now, now) {
		return Validation{
			IsValid: false,
			Message: fmt.Sprintf("Cannot set return date for today after %s. Please select tomorrow or later.", c.cutoffLabel()),
		}
	}

	return Validation{
		IsValid: true,
		Message: fmt.Sprintf("Cash must be returned by %s", c.FormatDeadline(returnDate)),
	}
}

// IsPastDeadline reports whether now is past the cutoff on the given date
func (c *Calculator) IsPastDeadline(date, now time.Time) bool {
	return now.After(c.DeadlineFor(date))
}

// NextValidReturnDate returns today's cutoff if it has not yet passed,
// otherwise tomorrow's
func (c *Calculator) NextValidReturnDate(now time.Time) time.Time {
	if c.IsPastDeadline(now, now) {
		return c.DeadlineFor(now.AddDate(0, 0, 1))
	}
	return c.DeadlineFor(now)
}

// FormatDeadline renders a date with its cutoff time for user-facing messages
func (c *Calculator) FormatDeadline(date time.Time) string {
	return fmt.Sprintf("%s at %s", date.Format("Mon, Jan 2 2006"), c.cutoffLabel())
}

func (c *Calculator) cutoffLabel() string {
	return time.Date(0, 1, 1, c.hour, c.minute, 0, 0, time.UTC).Format("3:04 PM")
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
