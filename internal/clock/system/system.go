// Package system provides the wall clock used for job timestamps.
package system

import "time"

// Clock implements crawler.Clock on top of time.Now.
type Clock struct{}

// New returns a Clock.
func New() Clock {
	return Clock{}
}

// Now reports the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
