package services

import (
	"time"

	"library/internal/models"
)

// Clock returns the current time. Tests replace it to pin "today".
type Clock func() time.Time

// SystemClock reads the wall clock.
func SystemClock() time.Time {
	return time.Now()
}

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func (c Clock) today() time.Time {
	return models.DateOf(c())
}
