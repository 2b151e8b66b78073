package ringpipe

import (
	"context"
	"sync"
	"time"
)

// WakeValue is delivered to a parked goroutine by the waker.
type WakeValue uint8

const (
	WakeNormal    WakeValue = iota // the awaited condition may now hold
	WakeCancelled                  // the object was reset
	WakeClosed                     // the object was closed
	WakeFlushed                    // pending data was discarded by Drain
)

func (v WakeValue) String() string {
	switch v {
	case WakeNormal:
		return "normal"
	case WakeCancelled:
		return "cancelled"
	case WakeClosed:
		return "closed"
	case WakeFlushed:
		return "flushed"
	default:
		return "unknown"
	}
}

// waiter is one parked goroutine. ch has room for exactly one value, so a
// waker never blocks while holding the owner's lock.
type waiter struct {
	next   *waiter
	prev   *waiter
	queued bool
	ch     chan WakeValue
}

var waiterPool = sync.Pool{
	New: func() any {
		return &waiter{ch: make(chan WakeValue, 1)}
	},
}

// WaitQueue is a FIFO of goroutines blocked on one synchronization object.
// The zero value is an empty queue. Every method must be called with the
// owning object's lock held, and a WaitQueue must not be copied after use.
type WaitQueue struct {
	first *waiter
	last  *waiter
	n     int
}

// Len returns the number of parked goroutines.
func (q *WaitQueue) Len() int {
	return q.n
}

// Wait parks the caller on q. The caller must hold lock; Wait enqueues the
// caller, releases lock, blocks, and re-acquires lock before returning.
// Since the caller is on q before lock is released, a waker holding lock
// can never miss it.
//
// Wait returns the value passed to WakeOne/WakeAll, or ErrTimeout when dl
// passes first, or ctx.Err() when ctx ends first. An expired dl returns
// ErrTimeout at once without releasing lock. A goroutine dequeued by a waker
// always receives the value, even if its timer fired in the meantime.
func (q *WaitQueue) Wait(ctx context.Context, lock sync.Locker, dl Deadline) (WakeValue, error) {
	if dl.Expired() {
		return 0, ErrTimeout
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	w := waiterPool.Get().(*waiter)
	q.enqueue(w)
	lock.Unlock()

	var expired <-chan time.Time
	if !dl.IsForever() {
		t := time.NewTimer(dl.Remaining())
		defer t.Stop()
		expired = t.C
	}

	var err error
	select {
	case v := <-w.ch:
		lock.Lock()
		waiterPool.Put(w)
		return v, nil
	case <-expired:
		err = ErrTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}

	lock.Lock()
	if w.queued {
		q.remove(w)
		waiterPool.Put(w)
		return 0, err
	}

	// a waker dequeued us before we got the lock back; its value is buffered
	v := <-w.ch
	waiterPool.Put(w)
	return v, nil
}

// WakeOne dequeues the longest-parked goroutine and hands it v.
// It reports whether a goroutine was woken. The woken goroutine runs once
// the caller releases the lock.
func (q *WaitQueue) WakeOne(v WakeValue) bool {
	w := q.dequeue()
	if w == nil {
		return false
	}
	w.ch <- v
	return true
}

// WakeAll wakes every parked goroutine with v and returns how many there were.
func (q *WaitQueue) WakeAll(v WakeValue) int {
	n := 0
	for q.WakeOne(v) {
		n++
	}
	return n
}

func (q *WaitQueue) enqueue(w *waiter) {
	w.next = nil
	w.prev = q.last
	w.queued = true
	if q.last == nil {
		q.first = w
	} else {
		q.last.next = w
	}
	q.last = w
	q.n++
}

func (q *WaitQueue) dequeue() *waiter {
	w := q.first
	if w == nil {
		return nil
	}
	q.remove(w)
	return w
}

func (q *WaitQueue) remove(w *waiter) {
	if w.prev == nil {
		q.first = w.next
	} else {
		w.prev.next = w.next
	}
	if w.next == nil {
		q.last = w.prev
	} else {
		w.next.prev = w.prev
	}
	w.next = nil
	w.prev = nil
	w.queued = false
	q.n--
}
