// Package system provides the wall clock used for status timestamps.
package system

import "time"

// Clock implements jobs.Clock using time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current wall time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
