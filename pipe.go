package ringpipe

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

const (
	flagOpen uint8 = 1 << iota
	flagResetting
)

// Pipe is a bounded byte stream between any number of writers and readers.
//
// Writers block while the buffer is full and readers block while it is
// empty. Transfers are byte-granular: bytes of concurrent writers may
// interleave, but each writer's own bytes stay in order. A call that moved
// some bytes before timing out or hitting a closed pipe reports them as a
// success.
//
// The ring, both wait queues, flags and the waiting count are guarded by a
// single spinlock that is never held while a goroutine is parked.
type Pipe struct {
	lock         SpinLock
	ring         Ring
	spaceWaiters WaitQueue // writers waiting for free space
	dataWaiters  WaitQueue // readers waiting for data
	flags        uint8
	waiting      int // goroutines parked on either queue
	_            cpu.CacheLinePad
	stats        counters
	_            cpu.CacheLinePad

	logger *zap.Logger
	name   string
}

// New creates an open pipe over buffer. The pipe uses buffer as its storage
// for its whole lifetime and never allocates another one; the caller keeps
// ownership.
func New(buffer []byte, opts ...Option) *Pipe {
	p := &Pipe{
		logger: zap.NewNop(),
		name:   "pipe-" + uuid.NewString()[:8],
	}
	for _, opt := range opts {
		opt(p)
	}
	p.Init(buffer)
	return p
}

// Init (re)initializes p over buffer: empty, open, nobody waiting.
// This is the only way to reopen a closed pipe. Init must not be called
// while goroutines are blocked on p.
func (p *Pipe) Init(buffer []byte) {
	p.lock.Lock()
	p.ring.Init(buffer)
	p.spaceWaiters = WaitQueue{}
	p.dataWaiters = WaitQueue{}
	p.flags = flagOpen
	p.waiting = 0
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.lock.Unlock()

	p.logger.Debug("pipe initialized", zap.String("pipe", p.name), zap.Int("capacity", len(buffer)))
}

// Name returns the pipe's name.
func (p *Pipe) Name() string {
	return p.name
}

// Write writes all of data, blocking while the pipe is full.
// timeout bounds the whole call; use NoWait or Forever for the extremes.
//
// It returns len(data) on success. If the timeout passes or the pipe is
// closed after some bytes went in, it returns that count and a nil error.
// With no progress it returns ErrTimeout or ErrClosed. A concurrent Reset
// makes it return ErrCancelled, and a Drain while it is blocked makes it
// return len(data).
func (p *Pipe) Write(data []byte, timeout time.Duration) (int, error) {
	return p.WriteAtLeast(context.Background(), data, len(data), timeout)
}

// WriteContext is Write with an additional context; ctx ending is treated
// like the timeout passing but reports ctx.Err().
func (p *Pipe) WriteContext(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	return p.WriteAtLeast(ctx, data, len(data), timeout)
}

// WriteAtLeast writes as much of data as it can, blocking only until at
// least atLeast bytes went in. With atLeast == 0 it never blocks.
func (p *Pipe) WriteAtLeast(ctx context.Context, data []byte, atLeast int, timeout time.Duration) (int, error) {
	if atLeast < 0 || atLeast > len(data) {
		return 0, ErrInvalidArgument
	}
	n, err := p.write(ctx, data, atLeast, timeout)
	p.stats.record(true, n, err)
	return n, err
}

// Read fills data, blocking while the pipe is empty.
//
// It returns len(data) on success. Bytes buffered before Close can still be
// read; once the pipe is closed and drained, Read returns the bytes it got
// so far, or ErrClosed if it got none. Timeouts follow the same partial
// rule as Write. A concurrent Reset makes it return ErrCancelled and the
// bytes copied by this call are not reported.
func (p *Pipe) Read(data []byte, timeout time.Duration) (int, error) {
	return p.ReadAtLeast(context.Background(), data, len(data), timeout)
}

// ReadContext is Read with an additional context.
func (p *Pipe) ReadContext(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	return p.ReadAtLeast(ctx, data, len(data), timeout)
}

// ReadAtLeast reads up to len(data) bytes, blocking only until at least
// atLeast bytes were read.
func (p *Pipe) ReadAtLeast(ctx context.Context, data []byte, atLeast int, timeout time.Duration) (int, error) {
	if atLeast < 0 || atLeast > len(data) {
		return 0, ErrInvalidArgument
	}
	n, err := p.read(ctx, data, atLeast, timeout)
	p.stats.record(false, n, err)
	return n, err
}

func (p *Pipe) write(ctx context.Context, data []byte, atLeast int, timeout time.Duration) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	dl := DeadlineFrom(timeout)
	written := 0

	p.lock.Lock()
	for {
		if p.flags&flagOpen == 0 {
			p.lock.Unlock()
			return partial(written, ErrClosed)
		}
		if p.flags&flagResetting != 0 {
			p.lock.Unlock()
			return 0, ErrCancelled
		}

		if p.ring.IsFull() {
			if written >= atLeast {
				p.lock.Unlock()
				return written, nil
			}
			v, err := p.wait(ctx, &p.spaceWaiters, dl)
			if err != nil {
				p.lock.Unlock()
				return partial(written, err)
			}
			switch v {
			case WakeCancelled:
				p.lock.Unlock()
				return 0, ErrCancelled
			case WakeFlushed:
				// Drain threw the rest away; it counts as consumed
				p.lock.Unlock()
				return len(data), nil
			}
			// space may already be gone again; re-check everything
			continue
		}

		written += p.ring.Put(data[written:])
		p.dataWaiters.WakeOne(WakeNormal)

		if written == len(data) {
			if !p.ring.IsFull() {
				p.spaceWaiters.WakeOne(WakeNormal)
			}
			p.lock.Unlock()
			return written, nil
		}
	}
}

func (p *Pipe) read(ctx context.Context, data []byte, atLeast int, timeout time.Duration) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	dl := DeadlineFrom(timeout)
	read := 0

	p.lock.Lock()
	for {
		if p.flags&flagResetting != 0 {
			p.lock.Unlock()
			return 0, ErrCancelled
		}

		if p.ring.IsEmpty() {
			if read >= atLeast {
				p.lock.Unlock()
				return read, nil
			}
			if p.flags&flagOpen == 0 {
				p.lock.Unlock()
				return partial(read, ErrClosed)
			}
			v, err := p.wait(ctx, &p.dataWaiters, dl)
			if err != nil {
				p.lock.Unlock()
				return partial(read, err)
			}
			if v == WakeCancelled {
				p.lock.Unlock()
				return 0, ErrCancelled
			}
			continue
		}

		read += p.ring.Get(data[read:])
		p.spaceWaiters.WakeOne(WakeNormal)

		if read == len(data) {
			if !p.ring.IsEmpty() {
				p.dataWaiters.WakeOne(WakeNormal)
			}
			p.lock.Unlock()
			return read, nil
		}
	}
}

// wait parks the caller on q. p.lock must be held and is held again on
// return. The last goroutine to come back from a reset clears the
// resetting flag.
func (p *Pipe) wait(ctx context.Context, q *WaitQueue, dl Deadline) (WakeValue, error) {
	if !dl.Expired() && (ctx == nil || ctx.Err() == nil) {
		atomic.AddUint64(&p.stats.waits, 1)
	}

	p.waiting++
	v, err := q.Wait(ctx, &p.lock, dl)
	p.waiting--

	if p.waiting == 0 && p.flags&flagResetting != 0 {
		p.flags &^= flagResetting
	}
	return v, err
}

// Reset discards all buffered bytes. Goroutines blocked on p are woken and
// their calls fail with ErrCancelled; the pipe is usable again as soon as
// the last of them has returned. Reset does not reopen a closed pipe.
func (p *Pipe) Reset() {
	p.lock.Lock()
	p.ring.Reset()
	woken := 0
	if p.waiting > 0 {
		p.flags |= flagResetting
		woken = p.spaceWaiters.WakeAll(WakeCancelled) + p.dataWaiters.WakeAll(WakeCancelled)
	}
	p.lock.Unlock()

	atomic.AddUint64(&p.stats.resets, 1)
	p.logger.Debug("pipe reset", zap.String("pipe", p.name), zap.Int("woken", woken))
}

// Flush discards all buffered bytes without cancelling anybody.
// Blocked writers are woken to refill the buffer.
func (p *Pipe) Flush() {
	p.lock.Lock()
	dropped := p.ring.BytesUsed()
	p.ring.Reset()
	p.spaceWaiters.WakeOne(WakeNormal)
	p.lock.Unlock()

	p.logger.Debug("pipe flushed", zap.String("pipe", p.name), zap.Int("dropped", dropped))
}

// Drain discards all buffered bytes together with the pending data of
// every blocked writer. Those writers return len(data) and a nil error as
// if their bytes had been consumed. Blocked readers stay blocked.
func (p *Pipe) Drain() {
	p.lock.Lock()
	dropped := p.ring.BytesUsed()
	p.ring.Reset()
	released := p.spaceWaiters.WakeAll(WakeFlushed)
	p.lock.Unlock()

	p.logger.Debug("pipe drained",
		zap.String("pipe", p.name),
		zap.Int("dropped", dropped),
		zap.Int("released", released),
	)
}

// Close permanently shuts p for writing. Blocked writers fail with
// ErrClosed (or report their partial count); readers drain what is still
// buffered and then get ErrClosed. Only Init reopens the pipe.
func (p *Pipe) Close() {
	p.lock.Lock()
	wasOpen := p.flags&flagOpen != 0
	p.flags &^= flagOpen
	woken := p.spaceWaiters.WakeAll(WakeClosed) + p.dataWaiters.WakeAll(WakeClosed)
	buffered := p.ring.BytesUsed()
	p.lock.Unlock()

	if !wasOpen {
		return
	}
	atomic.AddUint64(&p.stats.closes, 1)
	p.logger.Debug("pipe closed",
		zap.String("pipe", p.name),
		zap.Int("woken", woken),
		zap.Int("buffered", buffered),
	)
}

// ReadAvail returns the number of bytes that can be read without blocking.
func (p *Pipe) ReadAvail() int {
	p.lock.Lock()
	n := p.ring.BytesUsed()
	p.lock.Unlock()
	return n
}

// WriteAvail returns the number of bytes that can be written without
// blocking. It is 0 once the pipe is closed.
func (p *Pipe) WriteAvail() int {
	p.lock.Lock()
	n := p.ring.BytesFree()
	if p.flags&flagOpen == 0 {
		n = 0
	}
	p.lock.Unlock()
	return n
}

// Cap returns the pipe capacity in bytes.
func (p *Pipe) Cap() int {
	p.lock.Lock()
	n := p.ring.Cap()
	p.lock.Unlock()
	return n
}

// IsOpen reports whether the pipe still accepts writes.
func (p *Pipe) IsOpen() bool {
	p.lock.Lock()
	open := p.flags&flagOpen != 0
	p.lock.Unlock()
	return open
}

func partial(n int, err error) (int, error) {
	if n > 0 {
		return n, nil
	}
	return 0, err
}
