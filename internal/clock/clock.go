package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so date-sensitive logic can be driven by tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)

// Today truncates t to midnight UTC, the calendar day used for subscription periods.
func Today(c Clock) time.Time {
	return DateOf(c.Now())
}

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
