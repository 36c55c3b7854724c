package limited

import (
	"fmt"
	"time"
)

// FixedWindow is the half-open interval [Start, End) that contains a point in time.
type FixedWindow struct {
	Start time.Time
	End   time.Time
}

// GetFixedWindow returns the window of the given duration containing now.
//
// Windows are aligned to the Unix epoch, so every process computes the same boundaries.
func GetFixedWindow(now time.Time, duration time.Duration) FixedWindow {
	if duration <= 0 {
		return FixedWindow{Start: now, End: now}
	}

	windowNanos := duration.Nanoseconds()
	startNanos := (now.UnixNano() / windowNanos) * windowNanos
	start := time.Unix(0, startNanos).In(now.Location())

	return FixedWindow{Start: start, End: start.Add(duration)}
}

// RetryAfter is the whole-second wait until the window ends, clamped to [1s, window].
func RetryAfter(now time.Time, window FixedWindow) time.Duration {
	size := window.End.Sub(window.Start)
	wait := window.End.Sub(now)
	if rem := wait % time.Second; rem != 0 {
		wait += time.Second - rem
	}
	if wait < time.Second {
		wait = time.Second
	}
	if size > 0 && wait > size {
		wait = size
	}
	return wait
}

func bucketKey(bucket Bucket) string {
	return fmt.Sprintf("%s:%s:%d", bucket.Category, bucket.Identity, bucket.WindowStart.Unix())
}
