// Package buffer implements the chunked byte queues that back every
// connection in the transport layer. Data is stored in fixed-size reusable
// chunks handed out by a pool, so sustained traffic does not grow the heap:
// a buffer borrows chunks while it holds data and returns them as soon as
// they drain.
package buffer

// DefaultChunkSize is the capacity of a single chunk. 8 KiB comfortably fits
// several typical game frames while keeping per-connection overhead low.
const DefaultChunkSize = 8192

// Chunk is a fixed-capacity byte block with a readable window [begin, end).
// Writing extends end, reading advances begin. When begin catches up with
// end the chunk is empty and resets itself to the zero offsets, making the
// full capacity available again.
type Chunk struct {
	data  []byte
	begin int
	end   int
}

func newChunk(size int) *Chunk {
	return &Chunk{data: make([]byte, size)}
}

// Len returns the number of unread bytes in the chunk.
func (c *Chunk) Len() int {
	return c.end - c.begin
}

// Cap returns the free space remaining at the tail of the chunk.
func (c *Chunk) Cap() int {
	return len(c.data) - c.end
}

// readable returns the unread window of the chunk.
func (c *Chunk) readable() []byte {
	return c.data[c.begin:c.end]
}

// writable returns the free tail of the chunk.
func (c *Chunk) writable() []byte {
	return c.data[c.end:]
}

// advance consumes n readable bytes. Draining the chunk resets it to the
// empty state so the whole capacity becomes writable again.
func (c *Chunk) advance(n int) {
	if c.begin+n > c.end {
		panic("buffer: advance past chunk end")
	}
	c.begin += n
	if c.begin == c.end {
		c.begin = 0
		c.end = 0
	}
}

// extend marks n more bytes at the tail as written.
func (c *Chunk) extend(n int) {
	if c.end+n > len(c.data) {
		panic("buffer: extend past chunk capacity")
	}
	c.end += n
}

func (c *Chunk) reset() {
	c.begin = 0
	c.end = 0
}
