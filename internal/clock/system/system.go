// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements trip.Clock using time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to milliseconds so stored
// timestamps round-trip through JSON and the ledger unchanged.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
