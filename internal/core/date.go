package core

import (
	"fmt"
	"strings"
	"time"
)

// Date is a calendar date in UTC without a time-of-day component.
type Date struct {
	time.Time
}

// MonthKey identifies a month bucket as YYYY-MM.
type MonthKey string

const dateLayout = "2006-01-02"

// dateLayouts is tried in order; the first successful parse wins.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"2006/01/02",
	"01-02-2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006",
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts the date formats commonly found in bank exports and
// truncates any time-of-day component.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(strings.Trim(s, "\""))
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t.Year(), int(t.Month()), t.Day()), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// DaysUntil returns whole calendar days from d to o.
func (d Date) DaysUntil(o Date) int {
	return int(o.Sub(d.Time).Hours() / 24)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MonthKeyOf returns the bucket key for a date.
func MonthKeyOf(d Date) MonthKey {
	return MonthKey(d.Format("2006-01"))
}

// ParseMonthKey validates a YYYY-MM key.
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid month key %q: expected YYYY-MM", s)
	}
	return MonthKey(t.Format("2006-01")), nil
}

// Label returns a human-readable month label such as "January 2024".
func (k MonthKey) Label() string {
	t, err := time.Parse("2006-01", string(k))
	if err != nil {
		return string(k)
	}
	return t.Format("January 2006")
}

// Start returns the first day of the month.
func (k MonthKey) Start() Date {
	t, err := time.Parse("2006-01", string(k))
	if err != nil {
		return Date{}
	}
	return NewDate(t.Year(), int(t.Month()), 1)
}

// Previous returns the key of the preceding month.
func (k MonthKey) Previous() MonthKey {
	start := k.Start()
	if start.IsZero() {
		return ""
	}
	return MonthKeyOf(Date{Time: start.AddDate(0, -1, 0)})
}
