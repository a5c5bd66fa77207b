package rate

import (
	"time"

	"fxquotes/internal/calendar"

	"github.com/jonboulle/clockwork"
)

// Window is the rolling retention window [today - Months, today] in Location.
type Window struct {
	Clock    clockwork.Clock
	Location *time.Location
	Months   int
}

func (w Window) Today() time.Time {
	return calendar.DateOf(w.Clock.Now(), w.Location)
}

// Start returns the first date kept relative to today. It is also the pruning cutoff.
func (w Window) Start(today time.Time) time.Time {
	return calendar.AddMonths(today, -w.Months)
}

func (w Window) Contains(today, date time.Time) bool {
	return !date.Before(w.Start(today)) && !date.After(today)
}
