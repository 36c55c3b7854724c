package musicapi

import "time"

// Clock provides deterministic time for handlers, rate limiting and caching.
type Clock interface {
	Now() time.Time
}

// RealClock uses time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}
