package ringpipe

// Ring is a fixed-capacity circular byte store over a caller-owned slice.
// It does no locking and never blocks; Pipe guards it with its own lock.
type Ring struct {
	buf  []byte
	head int // read index
	used int // bytes buffered
}

// Init installs buf as the ring's storage and empties the ring.
// Any length is accepted, including zero.
func (r *Ring) Init(buf []byte) {
	r.buf = buf
	r.head = 0
	r.used = 0
}

// Put copies as much of data as fits and returns the number of bytes copied.
func (r *Ring) Put(data []byte) int {
	n := min(len(data), len(r.buf)-r.used)
	if n == 0 {
		return 0
	}

	tail := r.head + r.used
	if tail >= len(r.buf) {
		tail -= len(r.buf)
	}

	// at most two segments: [tail, end) then [0, head)
	c := copy(r.buf[tail:], data[:n])
	if c < n {
		copy(r.buf, data[c:n])
	}
	r.used += n
	return n
}

// Get moves up to len(data) buffered bytes into data and returns the count.
func (r *Ring) Get(data []byte) int {
	n := r.Peek(data)
	r.head += n
	if r.head >= len(r.buf) {
		r.head -= len(r.buf)
	}
	r.used -= n
	if r.used == 0 {
		r.head = 0
	}
	return n
}

// Peek copies up to len(data) buffered bytes into data without consuming them.
func (r *Ring) Peek(data []byte) int {
	n := min(len(data), r.used)
	if n == 0 {
		return 0
	}

	c := copy(data[:n], r.buf[r.head:])
	if c < n {
		copy(data[c:n], r.buf)
	}
	return n
}

// BytesUsed returns the number of buffered bytes.
func (r *Ring) BytesUsed() int {
	return r.used
}

// BytesFree returns the number of bytes that can be put without overflow.
func (r *Ring) BytesFree() int {
	return len(r.buf) - r.used
}

// Cap returns the fixed ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

func (r *Ring) IsEmpty() bool { return r.used == 0 }

func (r *Ring) IsFull() bool { return r.used == len(r.buf) }

// Reset discards all buffered bytes. The storage itself is left untouched.
func (r *Ring) Reset() {
	r.head = 0
	r.used = 0
}
