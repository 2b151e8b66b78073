package ringpipe

import (
	"bytes"
	"testing"

	"github.com/valyala/fastrand"
)

// Basic sanity: fill, overflow, drain.
func TestRingSequential(t *testing.T) {
	const capacity = 8

	var r Ring
	r.Init(make([]byte, capacity))

	if n := r.Put([]byte("ABCDEFGHIJ")); n != capacity {
		t.Fatalf("expected %d bytes put, got %d", capacity, n)
	}
	if !r.IsFull() {
		t.Fatalf("expected full ring")
	}
	if n := r.Put([]byte("X")); n != 0 {
		t.Fatalf("expected overflow put to copy nothing, got %d", n)
	}

	out := make([]byte, 16)
	n := r.Get(out)
	if n != capacity {
		t.Fatalf("expected %d bytes, got %d", capacity, n)
	}
	if string(out[:n]) != "ABCDEFGH" {
		t.Fatalf("expected %q, got %q (FIFO violated)", "ABCDEFGH", out[:n])
	}
	if !r.IsEmpty() {
		t.Fatalf("expected empty ring at the end, got %d bytes", r.BytesUsed())
	}
}

func TestRingWrapAround(t *testing.T) {
	var r Ring
	r.Init(make([]byte, 5))

	r.Put([]byte("abc"))
	out := make([]byte, 2)
	r.Get(out) // head now at 2

	// "cdefg" must wrap: c stays, d e go to the tail, f g wrap to the front
	if n := r.Put([]byte("defg")); n != 4 {
		t.Fatalf("expected 4 bytes put, got %d", n)
	}

	peek := make([]byte, 5)
	if n := r.Peek(peek); n != 5 || string(peek) != "cdefg" {
		t.Fatalf("expected peek %q, got %q", "cdefg", peek[:n])
	}
	if r.BytesUsed() != 5 {
		t.Fatalf("peek must not consume, used=%d", r.BytesUsed())
	}

	got := make([]byte, 5)
	if n := r.Get(got); n != 5 || string(got) != "cdefg" {
		t.Fatalf("expected %q, got %q", "cdefg", got[:n])
	}
}

func TestRingZeroCapacity(t *testing.T) {
	var r Ring
	r.Init(nil)

	if !r.IsEmpty() || !r.IsFull() {
		t.Fatalf("zero-capacity ring must be both empty and full")
	}
	if n := r.Put([]byte("x")); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
	if n := r.Get(make([]byte, 1)); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestRingReset(t *testing.T) {
	var r Ring
	r.Init(make([]byte, 4))
	r.Put([]byte("abc"))
	r.Reset()

	if r.BytesUsed() != 0 || r.BytesFree() != 4 {
		t.Fatalf("expected empty ring after reset, used=%d free=%d", r.BytesUsed(), r.BytesFree())
	}
}

// Random puts and gets must keep used+free == capacity and preserve byte order.
func TestRingInvariantRandomized(t *testing.T) {
	const (
		capacity = 37
		N        = 20_000
	)

	var r Ring
	r.Init(make([]byte, capacity))

	var in, out bytes.Buffer
	var next byte
	chunk := make([]byte, capacity+5)

	for i := 0; i < N; i++ {
		size := int(fastrand.Uint32n(uint32(len(chunk)))) + 1
		if fastrand.Uint32n(2) == 0 {
			for j := 0; j < size; j++ {
				chunk[j] = next
				next++
			}
			n := r.Put(chunk[:size])
			in.Write(chunk[:n])
			next -= byte(size - n) // unput bytes are retried with the same values
		} else {
			n := r.Get(chunk[:size])
			out.Write(chunk[:n])
		}

		if r.BytesUsed()+r.BytesFree() != capacity {
			t.Fatalf("invariant broken at %d: used=%d free=%d", i, r.BytesUsed(), r.BytesFree())
		}
	}

	rest := make([]byte, capacity)
	out.Write(rest[:r.Get(rest)])

	if !bytes.Equal(in.Bytes(), out.Bytes()) {
		t.Fatalf("byte stream corrupted: in=%d bytes out=%d bytes", in.Len(), out.Len())
	}
}

func BenchmarkRingPutGet(b *testing.B) {
	var r Ring
	r.Init(make([]byte, 4096))
	data := make([]byte, 1000)
	out := make([]byte, 1000)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Put(data)
		r.Get(out)
	}
}
