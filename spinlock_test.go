package ringpipe

import (
	"sync"
	"testing"
)

func TestSpinLockMutualExclusion(t *testing.T) {
	const (
		workers = 8
		N       = 10_000
	)

	var (
		l       SpinLock
		counter int
		wg      sync.WaitGroup
	)

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < N; i++ {
				l.Lock()
				counter++
				l.Unlock()
			}
		}()
	}
	wg.Wait()

	if counter != workers*N {
		t.Fatalf("expected %d, got %d (lost updates)", workers*N, counter)
	}
}

func TestSpinLockTryLock(t *testing.T) {
	var l SpinLock
	if !l.TryLock() {
		t.Fatalf("expected TryLock on a free lock to succeed")
	}
	if l.TryLock() {
		t.Fatalf("expected TryLock on a held lock to fail")
	}
	l.Unlock()
}

func TestSpinLockUnlockUnlockedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	var l SpinLock
	l.Unlock()
}
