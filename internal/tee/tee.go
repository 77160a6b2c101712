// Package tee splits a single-read stream into two independently consumable
// readers. Bytes are buffered until both branches have read them, so either
// branch may be drained first, concurrently, or not at all.
package tee

import (
	"io"
	"sync"
)

const chunkSize = 32 << 10

type shared struct {
	mu   sync.Mutex
	cond *sync.Cond

	src     io.Reader
	buf     []byte   // bytes not yet read by the slowest open branch
	base    int64    // absolute offset of buf[0]
	pos     [2]int64 // absolute read offset per branch
	closed  [2]bool
	err     error // terminal source error, io.EOF on clean end
	reading bool  // one branch is blocked in src.Read
}

type branch struct {
	s   *shared
	idx int
}

// Tee returns two readers that each yield the full content of src.
// When both branches are closed and src implements io.Closer, src is closed.
func Tee(src io.Reader) (io.ReadCloser, io.ReadCloser) {
	s := &shared{src: src}
	s.cond = sync.NewCond(&s.mu)
	return &branch{s: s, idx: 0}, &branch{s: s, idx: 1}
}

func (b *branch) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.closed[b.idx] {
			return 0, io.ErrClosedPipe
		}
		if avail := s.base + int64(len(s.buf)) - s.pos[b.idx]; avail > 0 {
			start := s.pos[b.idx] - s.base
			n := copy(p, s.buf[start:])
			s.pos[b.idx] += int64(n)
			s.compact()
			return n, nil
		}
		if s.err != nil {
			return 0, s.err
		}
		if s.reading {
			s.cond.Wait()
			continue
		}
		s.fill()
	}
}

// fill reads one chunk from the source without holding the lock.
func (s *shared) fill() {
	s.reading = true
	s.mu.Unlock()
	chunk := make([]byte, chunkSize)
	n, err := s.src.Read(chunk)
	s.mu.Lock()
	s.reading = false
	if n > 0 {
		s.buf = append(s.buf, chunk[:n]...)
	}
	if err != nil {
		s.err = err
	}
	s.cond.Broadcast()
}

// compact drops buffered bytes every open branch has already consumed.
func (s *shared) compact() {
	low := int64(-1)
	for i := range s.pos {
		if s.closed[i] {
			continue
		}
		if low < 0 || s.pos[i] < low {
			low = s.pos[i]
		}
	}
	if low < 0 {
		s.base += int64(len(s.buf))
		s.buf = nil
		return
	}
	if drop := low - s.base; drop > 0 {
		s.buf = append(s.buf[:0:0], s.buf[drop:]...)
		s.base = low
	}
}

func (b *branch) Close() error {
	s := b.s
	s.mu.Lock()
	if s.closed[b.idx] {
		s.mu.Unlock()
		return nil
	}
	s.closed[b.idx] = true
	s.compact()
	both := s.closed[0] && s.closed[1]
	s.cond.Broadcast()
	s.mu.Unlock()

	if both {
		if c, ok := s.src.(io.Closer); ok {
			return c.Close()
		}
	}
	return nil
}
