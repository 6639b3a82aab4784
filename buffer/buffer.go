package buffer

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// Buffer is an ordered sequence of chunks forming a FIFO byte queue. Bytes
// are appended at the back chunk and consumed from the front chunk; chunks
// are borrowed from the pool as the queue grows and returned as the front
// drains. A buffer always retains at least one chunk.
//
// Ingress and Egress are the only operations that touch the outside world;
// everything else is pure memory management. Both stop at a would-block
// condition instead of waiting, which keeps the whole transport loop
// non-blocking by construction.
type Buffer struct {
	chunks []*Chunk
	pool   *Pool
	limit  int
	size   int
}

// New creates a buffer backed by the supplied pool. limit bounds the number
// of buffered bytes Ingress will accumulate before applying backpressure.
func New(pool *Pool, limit int) *Buffer {
	return &Buffer{
		chunks: []*Chunk{pool.Acquire()},
		pool:   pool,
		limit:  limit,
	}
}

// Len returns the total number of unread bytes across all chunks.
func (b *Buffer) Len() int {
	return b.size
}

// Free returns the remaining capacity before the buffer hits its limit.
func (b *Buffer) Free() int {
	return b.limit - b.size
}

// Write appends p to the back of the buffer, borrowing chunks from the pool
// as needed. Previously written bytes are never moved or copied. Write is
// a memory operation and cannot fail; callers enforce the buffer limit via
// Free before serializing a record.
func (b *Buffer) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		back := b.chunks[len(b.chunks)-1]
		if back.Cap() == 0 {
			back = b.pool.Acquire()
			b.chunks = append(b.chunks, back)
		}
		n := copy(back.writable(), p)
		back.extend(n)
		b.size += n
		p = p[n:]
	}
	return total, nil
}

// Peek copies up to len(p) unread bytes into p without consuming them.
// Returns the number of bytes copied, which spans chunk boundaries.
func (b *Buffer) Peek(p []byte) int {
	copied := 0
	for _, c := range b.chunks {
		if copied == len(p) {
			break
		}
		copied += copy(p[copied:], c.readable())
	}
	return copied
}

// View returns a zero-copy mutable slice of the next n unread bytes if they
// are contiguous inside the front chunk, and nil otherwise. Callers fall
// back to Peek when a record straddles a chunk boundary.
func (b *Buffer) View(n int) []byte {
	front := b.chunks[0]
	if front.Len() >= n {
		return front.readable()[:n]
	}
	return nil
}

// Discard consumes n unread bytes from the front of the buffer, returning
// drained chunks to the pool. The last remaining chunk is always kept.
func (b *Buffer) Discard(n int) {
	if n > b.size {
		panic("buffer: discard past buffered data")
	}
	for n > 0 {
		front := b.chunks[0]
		step := min(n, front.Len())
		front.advance(step)
		b.size -= step
		n -= step
		if front.Len() == 0 && len(b.chunks) > 1 {
			b.reclaimFront()
		}
	}
}

// Clear drops all buffered data, returning every chunk but one to the pool.
func (b *Buffer) Clear() {
	for len(b.chunks) > 1 {
		b.chunks[0].reset()
		b.reclaimFront()
	}
	b.chunks[0].reset()
	b.size = 0
}

// Ingress pulls as many bytes as the reader offers, stopping at the buffer
// limit, a would-block condition or a hard error. A would-block condition is
// not an error: Ingress reports how far it got and the caller retries next
// tick. io.EOF (the peer shut down) is surfaced to the caller.
func (b *Buffer) Ingress(r io.Reader) (int, error) {
	total := 0
	for b.size < b.limit {
		back := b.chunks[len(b.chunks)-1]
		if back.Cap() == 0 {
			back = b.pool.Acquire()
			b.chunks = append(b.chunks, back)
		}
		n, err := r.Read(back.writable())
		if n > 0 {
			back.extend(n)
			b.size += n
			total += n
		}
		if err != nil {
			if IsWouldBlock(err) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			// A reader that returns (0, nil) has nothing left to give.
			return total, io.EOF
		}
	}
	return total, nil
}

// Egress pushes buffered bytes into the writer until the buffer drains or
// the writer stops accepting data. Drained chunks return to the pool; the
// final chunk stays with the buffer.
func (b *Buffer) Egress(w io.Writer) (int, error) {
	total := 0
	for b.size > 0 {
		front := b.chunks[0]
		n, err := w.Write(front.readable())
		if n > 0 {
			front.advance(n)
			b.size -= n
			total += n
		}
		if front.Len() == 0 && len(b.chunks) > 1 {
			b.reclaimFront()
		}
		if err != nil {
			if IsWouldBlock(err) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			// No progress and no error: treat as a full sink rather
			// than spinning.
			return total, nil
		}
	}
	return total, nil
}

// Close returns every chunk to the pool, including the resident one. The
// buffer is unusable afterwards; it exists to reclaim storage when a
// connection is torn down.
func (b *Buffer) Close() {
	for _, c := range b.chunks {
		c.reset()
		b.pool.Release(c)
	}
	b.chunks = nil
	b.size = 0
}

func (b *Buffer) reclaimFront() {
	front := b.chunks[0]
	b.chunks[0] = nil
	b.chunks = b.chunks[1:]
	b.pool.Release(front)
}

// IsWouldBlock reports whether err is the transient "no progress possible
// right now" signal produced by non-blocking sockets or expired I/O
// deadlines. Such errors never tear a connection down.
func IsWouldBlock(err error) bool {
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
