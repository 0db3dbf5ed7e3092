package types

import (
	"time"
)

// Clock abstracts time for testability. The subscription lifecycle manager
// and audit sink take a Clock so that expiration-window tests are
// deterministic.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }
