package ringpipe

import (
	"runtime"
	"sync/atomic"
)

const spinRounds = 64 // CAS attempts before yielding the processor

// SpinLock is a test-and-set lock for O(1) critical sections.
// The zero value is unlocked. It must never be held across a blocking call;
// WaitQueue.Wait releases it before parking.
type SpinLock struct {
	state atomic.Uint32
}

// Lock spins until the lock is acquired, yielding to the scheduler between rounds.
func (l *SpinLock) Lock() {
	for {
		for i := 0; i < spinRounds; i++ {
			if l.state.Load() == 0 && l.state.CompareAndSwap(0, 1) {
				return
			}
		}
		runtime.Gosched()
	}
}

// TryLock acquires the lock if it is free and reports whether it did.
func (l *SpinLock) TryLock() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Unlock releases the lock. Unlocking an unlocked SpinLock panics.
func (l *SpinLock) Unlock() {
	if l.state.Swap(0) == 0 {
		panic("ringpipe: unlock of unlocked SpinLock")
	}
}
