package ringpipe

import "time"

// Special timeout values accepted by every blocking call.
const (
	NoWait  time.Duration = 0  // return immediately instead of blocking
	Forever time.Duration = -1 // block until woken
)

// Deadline is an absolute point in time computed from a relative timeout.
type Deadline struct {
	at      time.Time
	forever bool
}

// DeadlineFrom converts a relative timeout into a Deadline.
// Negative timeouts mean Forever.
func DeadlineFrom(timeout time.Duration) Deadline {
	if timeout < 0 {
		return Deadline{forever: true}
	}
	return Deadline{at: time.Now().Add(timeout)}
}

// IsForever reports whether d never expires.
func (d Deadline) IsForever() bool {
	return d.forever
}

// Expired reports whether the deadline has passed.
func (d Deadline) Expired() bool {
	if d.forever {
		return false
	}
	return !time.Now().Before(d.at)
}

// Remaining returns the time left before the deadline, Forever for an
// unbounded deadline and 0 once it has passed.
func (d Deadline) Remaining() time.Duration {
	if d.forever {
		return Forever
	}
	if left := time.Until(d.at); left > 0 {
		return left
	}
	return 0
}
