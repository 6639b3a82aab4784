package buffer

// Pool is a free-list of idle chunks shared by all buffers of an endpoint.
// Every chunk is owned by exactly one party at a time: either the pool or a
// single buffer. Ownership moves with Acquire/Release; chunks are never
// aliased and never freed before process shutdown.
//
// The pool is mutated only from the endpoint's I/O goroutine, so it carries
// no locking.
type Pool struct {
	idle      []*Chunk
	chunkSize int
	allocated int
}

// NewPool creates an empty pool handing out chunks of the given size.
func NewPool(chunkSize int) *Pool {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Pool{chunkSize: chunkSize}
}

// Acquire returns an idle chunk, allocating a fresh one only when the free
// list is empty. The returned chunk is always empty.
func (p *Pool) Acquire() *Chunk {
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		c.reset()
		return c
	}
	p.allocated++
	return newChunk(p.chunkSize)
}

// Release returns a fully drained chunk to the free list. Releasing a chunk
// that still holds data is a programming error.
func (p *Pool) Release(c *Chunk) {
	if c.Len() != 0 {
		panic("buffer: release of non-empty chunk")
	}
	p.idle = append(p.idle, c)
}

// ChunkSize returns the capacity of the chunks this pool hands out.
func (p *Pool) ChunkSize() int {
	return p.chunkSize
}

// Idle returns the number of chunks currently sitting in the free list.
func (p *Pool) Idle() int {
	return len(p.idle)
}

// Allocated returns the total number of chunks ever created by the pool,
// whether idle or lent out. Useful as a high-water mark gauge.
func (p *Pool) Allocated() int {
	return p.allocated
}
