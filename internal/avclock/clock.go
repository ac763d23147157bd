// Package avclock provides microsecond-resolution monotonic timestamps for
// the capture/encode/sink pipeline. All pts values in the system are stamped
// from a single clock instance so that video and audio timestamps are always
// comparable.
package avclock

import "time"

// Clock produces monotonically increasing microsecond timestamps anchored to
// the instant it was created. It is safe for concurrent use: time.Since reads
// the runtime's monotonic clock reading, which never regresses.
type Clock struct {
	start time.Time
}

// New returns a Clock anchored to the current instant.
func New() *Clock {
	return &Clock{start: time.Now()}
}

// NowUS returns microseconds elapsed since the clock was created.
func (c *Clock) NowUS() int64 {
	return time.Since(c.start).Microseconds()
}
