package ringpipe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitParked blocks until q holds n parked goroutines.
func waitParked(t *testing.T, lock *SpinLock, q *WaitQueue, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return q.Len() == n
	}, 2*time.Second, time.Millisecond, "expected %d parked goroutines", n)
}

func TestWaitQueueWakeOneDeliversValue(t *testing.T) {
	var (
		lock SpinLock
		q    WaitQueue
	)

	type result struct {
		v   WakeValue
		err error
	}
	done := make(chan result, 1)

	go func() {
		lock.Lock()
		v, err := q.Wait(context.Background(), &lock, DeadlineFrom(Forever))
		// the lock must be held again on return
		assert.False(t, lock.TryLock())
		lock.Unlock()
		done <- result{v, err}
	}()

	waitParked(t, &lock, &q, 1)

	lock.Lock()
	assert.True(t, q.WakeOne(WakeClosed))
	assert.Equal(t, 0, q.Len())
	lock.Unlock()

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, WakeClosed, r.v)
}

func TestWaitQueueWakeOneEmpty(t *testing.T) {
	var q WaitQueue
	assert.False(t, q.WakeOne(WakeNormal))
	assert.Equal(t, 0, q.WakeAll(WakeNormal))
}

func TestWaitQueueFIFO(t *testing.T) {
	const waiters = 5

	var (
		lock  SpinLock
		q     WaitQueue
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			lock.Lock()
			_, err := q.Wait(context.Background(), &lock, DeadlineFrom(Forever))
			lock.Unlock()
			assert.NoError(t, err)
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}(i)
		// park one at a time so the queue order is known
		waitParked(t, &lock, &q, i+1)
	}

	for i := 0; i < waiters; i++ {
		lock.Lock()
		require.True(t, q.WakeOne(WakeNormal))
		lock.Unlock()

		// let the woken goroutine record itself before waking the next one
		deadline := time.Now().Add(2 * time.Second)
		for {
			mu.Lock()
			n := len(order)
			mu.Unlock()
			if n == i+1 || time.Now().After(deadline) {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestWaitQueueWakeAll(t *testing.T) {
	const waiters = 8

	var (
		lock SpinLock
		q    WaitQueue
		wg   sync.WaitGroup
	)

	values := make(chan WakeValue, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock.Lock()
			v, err := q.Wait(context.Background(), &lock, DeadlineFrom(Forever))
			lock.Unlock()
			assert.NoError(t, err)
			values <- v
		}()
	}

	waitParked(t, &lock, &q, waiters)

	lock.Lock()
	assert.Equal(t, waiters, q.WakeAll(WakeCancelled))
	lock.Unlock()

	wg.Wait()
	close(values)
	for v := range values {
		assert.Equal(t, WakeCancelled, v)
	}
}

func TestWaitQueueTimeout(t *testing.T) {
	var (
		lock SpinLock
		q    WaitQueue
	)

	lock.Lock()
	start := time.Now()
	_, err := q.Wait(context.Background(), &lock, DeadlineFrom(20*time.Millisecond))
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Equal(t, 0, q.Len(), "timed out waiter must leave the queue")
	assert.False(t, lock.TryLock(), "lock must be re-acquired after a timeout")
	lock.Unlock()
}

func TestWaitQueueNoWaitDoesNotRelease(t *testing.T) {
	var (
		lock SpinLock
		q    WaitQueue
	)

	lock.Lock()
	_, err := q.Wait(context.Background(), &lock, DeadlineFrom(NoWait))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, q.Len())
	assert.False(t, lock.TryLock())
	lock.Unlock()
}

func TestWaitQueueContextCancel(t *testing.T) {
	var (
		lock SpinLock
		q    WaitQueue
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		lock.Lock()
		_, err := q.Wait(ctx, &lock, DeadlineFrom(Forever))
		lock.Unlock()
		done <- err
	}()

	waitParked(t, &lock, &q, 1)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	lock.Lock()
	assert.Equal(t, 0, q.Len())
	lock.Unlock()
}

// A waker that dequeues a goroutine whose timer is about to fire must still
// get its value through: no wake is ever lost to a timeout.
func TestWaitQueueWakeRacingTimeout(t *testing.T) {
	const rounds = 200

	var (
		lock SpinLock
		q    WaitQueue
	)

	for i := 0; i < rounds; i++ {
		done := make(chan error, 1)
		var got WakeValue
		go func() {
			lock.Lock()
			v, err := q.Wait(context.Background(), &lock, DeadlineFrom(time.Millisecond))
			got = v
			lock.Unlock()
			done <- err
		}()

		time.Sleep(time.Duration(i%3) * 500 * time.Microsecond)
		lock.Lock()
		woke := q.WakeOne(WakeClosed)
		lock.Unlock()

		err := <-done
		if woke {
			require.NoError(t, err, "round %d: woken waiter reported %v", i, err)
			require.Equal(t, WakeClosed, got)
		} else {
			require.ErrorIs(t, err, ErrTimeout)
		}
	}
}

func TestWakeValueString(t *testing.T) {
	assert.Equal(t, "normal", WakeNormal.String())
	assert.Equal(t, "cancelled", WakeCancelled.String())
	assert.Equal(t, "closed", WakeClosed.String())
	assert.Equal(t, "flushed", WakeFlushed.String())
	assert.Equal(t, "unknown", WakeValue(42).String())
}
