package domain

import "time"

// Clock supplies the current time. The queue's day boundary is derived
// from it, so tests can pin "today".
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

// DayOf returns the calendar date of t in loc, normalized to midnight UTC
// so it compares cleanly against DATE columns.
func DayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
