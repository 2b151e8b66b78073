package ringpipe

import "sync/atomic"

// counters are bumped with atomics so Stats never takes the pipe lock.
type counters struct {
	writes        uint64
	reads         uint64
	bytesWritten  uint64
	bytesRead     uint64
	waits         uint64
	timeouts      uint64
	cancellations uint64
	closedErrors  uint64
	resets        uint64
	closes        uint64
}

// Stats is a snapshot of a pipe's operation counters.
type Stats struct {
	Writes       uint64 // completed Write calls that moved at least one byte
	Reads        uint64 // completed Read calls that moved at least one byte
	BytesWritten uint64
	BytesRead    uint64

	Waits         uint64 // times a caller went to sleep on a wait queue
	Timeouts      uint64 // calls that failed with ErrTimeout or a context error
	Cancellations uint64 // calls that failed with ErrCancelled
	ClosedErrors  uint64 // calls that failed with ErrClosed

	Resets uint64
	Closes uint64
}

// Stats retrieves the current statistics of the pipe.
func (p *Pipe) Stats() Stats {
	c := &p.stats
	return Stats{
		Writes:        atomic.LoadUint64(&c.writes),
		Reads:         atomic.LoadUint64(&c.reads),
		BytesWritten:  atomic.LoadUint64(&c.bytesWritten),
		BytesRead:     atomic.LoadUint64(&c.bytesRead),
		Waits:         atomic.LoadUint64(&c.waits),
		Timeouts:      atomic.LoadUint64(&c.timeouts),
		Cancellations: atomic.LoadUint64(&c.cancellations),
		ClosedErrors:  atomic.LoadUint64(&c.closedErrors),
		Resets:        atomic.LoadUint64(&c.resets),
		Closes:        atomic.LoadUint64(&c.closes),
	}
}

// record accounts for one finished read or write.
func (c *counters) record(write bool, n int, err error) {
	switch {
	case err == nil:
		if n == 0 {
			return
		}
		if write {
			atomic.AddUint64(&c.writes, 1)
			atomic.AddUint64(&c.bytesWritten, uint64(n))
		} else {
			atomic.AddUint64(&c.reads, 1)
			atomic.AddUint64(&c.bytesRead, uint64(n))
		}
	case err == ErrCancelled:
		atomic.AddUint64(&c.cancellations, 1)
	case err == ErrClosed:
		atomic.AddUint64(&c.closedErrors, 1)
	case err == ErrInvalidArgument:
	default:
		atomic.AddUint64(&c.timeouts, 1)
	}
}
