package calendar

import (
	"fmt"
	"iter"
	"sync"
	"time"
)

// MonthDay is a fixed annual date such as a public holiday.
type MonthDay struct {
	Month time.Month
	Day   int
}

func (md MonthDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(md.Month), md.Day)
}

// DefaultHolidays are the fixed-date public holidays on which no rates are published.
var DefaultHolidays = []MonthDay{
	{time.January, 1},
	{time.April, 23},
	{time.May, 1},
	{time.May, 19},
	{time.July, 15},
	{time.August, 30},
	{time.October, 29},
}

// HolidaySet holds the holidays of a single year. It is never modified after construction.
type HolidaySet struct {
	year int
	days map[MonthDay]struct{}
}

func NewHolidaySet(year int, fixed []MonthDay) *HolidaySet {
	days := make(map[MonthDay]struct{}, len(fixed))
	for _, md := range fixed {
		// Feb 29 only exists in leap years
		if time.Date(year, md.Month, md.Day, 0, 0, 0, 0, time.UTC).Day() != md.Day {
			continue
		}
		days[md] = struct{}{}
	}
	return &HolidaySet{year: year, days: days}
}

func (h *HolidaySet) Year() int { return h.year }

func (h *HolidaySet) Contains(date time.Time) bool {
	if date.Year() != h.year {
		return false
	}
	_, ok := h.days[MonthDay{Month: date.Month(), Day: date.Day()}]
	return ok
}

func (h *HolidaySet) Len() int { return len(h.days) }

// Calendar decides whether rates are published on a given date.
type Calendar struct {
	fixed []MonthDay

	mu    sync.Mutex
	years map[int]*HolidaySet
}

func New(holidays []MonthDay) *Calendar {
	fixed := make([]MonthDay, len(holidays))
	copy(fixed, holidays)
	return &Calendar{fixed: fixed, years: make(map[int]*HolidaySet)}
}

// HolidaysFor returns the holiday set of the year, building it on first use.
func (c *Calendar) HolidaysFor(year int) *HolidaySet {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hs, ok := c.years[year]; ok {
		return hs
	}
	hs := NewHolidaySet(year, c.fixed)
	c.years[year] = hs
	return hs
}

func (c *Calendar) IsHoliday(date time.Time) bool {
	return c.HolidaysFor(date.Year()).Contains(date)
}

func IsWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsTradingDay reports whether date is neither a weekend day nor a holiday.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	return !IsWeekend(date) && !c.IsHoliday(date)
}

// DateOf strips the time of day from t as observed in loc.
// The result is midnight UTC so that dates compare with Equal and Before.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts date by n months, clamping to the last day of the target month.
func AddMonths(date time.Time, n int) time.Time {
	y, m, d := date.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, date.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, date.Location())
}

// Days yields every date in [from, to] in ascending order.
func Days(from, to time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			if !yield(d) {
				return
			}
		}
	}
}

// DaysDesc yields every date in [from, to] newest first.
func DaysDesc(from, to time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for d := to; !d.Before(from); d = d.AddDate(0, 0, -1) {
			if !yield(d) {
				return
			}
		}
	}
}

// ParseMonthDay parses "MM-DD".
func ParseMonthDay(s string) (MonthDay, error) {
	t, err := time.Parse("01-02", s)
	if err != nil {
		return MonthDay{}, fmt.Errorf("invalid holiday %q, expected MM-DD: %w", s, err)
	}
	return MonthDay{Month: t.Month(), Day: t.Day()}, nil
}

func ParseMonthDays(values []string) ([]MonthDay, error) {
	res := make([]MonthDay, 0, len(values))
	for _, v := range values {
		md, err := ParseMonthDay(v)
		if err != nil {
			return nil, err
		}
		res = append(res, md)
	}
	return res, nil
}
