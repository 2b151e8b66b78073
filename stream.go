package ringpipe

import (
	"context"
	"errors"
	"io"
	"time"
)

// Stream adapts a Pipe to io.ReadWriteCloser so it can be used with
// io.Copy and friends. Every call is bounded by the same timeout.
type Stream struct {
	p       *Pipe
	timeout time.Duration
}

// Stream returns an io.ReadWriteCloser view of p.
func (p *Pipe) Stream(timeout time.Duration) *Stream {
	return &Stream{p: p, timeout: timeout}
}

// Read returns as soon as at least one byte is available.
// A closed and drained pipe yields io.EOF.
func (s *Stream) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	n, err := s.p.ReadAtLeast(context.Background(), b, 1, s.timeout)
	if errors.Is(err, ErrClosed) {
		return n, io.EOF
	}
	return n, err
}

// Write writes all of b. A short write always comes with an error, as
// io.Writer requires.
func (s *Stream) Write(b []byte) (int, error) {
	n, err := s.p.Write(b, s.timeout)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	return n, err
}

// Close closes the underlying pipe.
func (s *Stream) Close() error {
	s.p.Close()
	return nil
}

var _ io.ReadWriteCloser = (*Stream)(nil)
