// Package chunkpool implements the process-wide ChunkPool: a bounded,
// size-classed, reference-counted pool of reusable byte buffers that
// amortises allocation across the demux/decode hot path.
//
// All pool bookkeeping is serialised by a single mutex. That mutex is never
// held across a call into a demuxer, codec, or the underlying I/O — callers
// acquire a Buffer, release the lock implicitly on return, then do their own
// (possibly blocking) work with the data.
package chunkpool

import (
	"sync"
	"sync/atomic"

	"github.com/jmoon/audiocore/internal/mediaerr"
)

// defaultSizeClasses mirrors the shape of a size-classed pool tuned for
// container chunking workloads: small headers, typical compressed frames,
// and large PCM slices each get their own free list.
var defaultSizeClasses = []int{512, 4096, 16384, 65536, 262144}

// defaultCapBytes bounds live+pooled bytes; 64 MiB comfortably covers a
// handful of in-flight chunks plus a deep pooled free list without letting a
// stalled consumer grow the pool unbounded.
const defaultCapBytes = 64 * 1024 * 1024

type class struct {
	size int
	free [][]byte
}

// Pool is the ChunkPool described by the data model: acquire/release with
// ref-counted Buffer handles, a hard cap on live+pooled bytes, and read-only
// stats.
type Pool struct {
	mu       sync.Mutex
	classes  []class
	capBytes int64

	liveBytes   int64
	pooledBytes int64
	highWater   int64
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithCapBytes overrides the default total byte cap.
func WithCapBytes(n int64) Option {
	return func(p *Pool) { p.capBytes = n }
}

// WithSizeClasses overrides the default buffer size classes. Classes are
// sorted ascending; a request larger than the largest class allocates an
// unpooled buffer.
func WithSizeClasses(sizes []int) Option {
	return func(p *Pool) {
		classes := make([]class, len(sizes))
		for i, s := range sizes {
			classes[i] = class{size: s}
		}
		p.classes = classes
	}
}

// New creates a ChunkPool with the given options.
func New(opts ...Option) *Pool {
	p := &Pool{capBytes: defaultCapBytes}
	WithSizeClasses(defaultSizeClasses)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stats is the read-only snapshot exposed by spec.md §4.2.
type Stats struct {
	LiveBytes   int64
	PooledBytes int64
	HighWater   int64
}

// Stats returns a snapshot of current pool accounting.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{LiveBytes: p.liveBytes, PooledBytes: p.pooledBytes, HighWater: p.highWater}
}

// Buffer is a ref-counted handle to a pooled (or, for oversized requests,
// unpooled) byte slice. A MediaChunk holds exactly one reference; a decoder
// may Retain an aliasing view but must Release it no later than the chunk's
// own lifetime ends.
type Buffer struct {
	pool     *Pool
	data     []byte
	classIdx int // -1 for unpooled
	refs     int32
}

// Bytes returns the buffer's backing slice, length equal to the capacity it
// was acquired with. Callers slice it down as needed.
func (b *Buffer) Bytes() []byte { return b.data }

// Cap returns the buffer's capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Retain increments the reference count, returning the same handle for
// chaining. Used by a decoder taking an aliasing view of a chunk's buffer.
func (b *Buffer) Retain() *Buffer {
	atomic.AddInt32(&b.refs, 1)
	return b
}

// Release drops one reference. When the last reference drops, the buffer is
// returned to its pool (or discarded, if it was unpooled or the pool is over
// its cap).
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	if atomic.AddInt32(&b.refs, -1) > 0 {
		return
	}
	if b.pool != nil {
		b.pool.put(b)
	}
}

// Acquire returns a Buffer with capacity >= requestedCapacity, reusing a
// pooled buffer from the smallest size class that fits. Returns a Memory
// category error if the cap would be breached and the optimisation pass
// (dropping the oldest pooled buffers) can't make room.
func (p *Pool) Acquire(requestedCapacity int) (*Buffer, error) {
	if requestedCapacity < 0 {
		requestedCapacity = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.classes {
		c := &p.classes[i]
		if requestedCapacity > c.size {
			continue
		}
		if n := len(c.free); n > 0 {
			data := c.free[n-1]
			c.free = c.free[:n-1]
			p.pooledBytes -= int64(cap(data))
			clear(data)
			return p.checkoutLocked(data, i)
		}
		if err := p.reserveLocked(int64(c.size)); err != nil {
			return nil, err
		}
		return p.checkoutLocked(make([]byte, c.size), i)
	}

	// Oversized request: never pooled.
	if err := p.reserveLocked(int64(requestedCapacity)); err != nil {
		return nil, err
	}
	return p.checkoutLocked(make([]byte, requestedCapacity), -1)
}

// checkoutLocked wraps data in a Buffer and accounts it as live. Must be
// called with p.mu held.
func (p *Pool) checkoutLocked(data []byte, classIdx int) (*Buffer, error) {
	p.liveBytes += int64(cap(data))
	if p.liveBytes > p.highWater {
		p.highWater = p.liveBytes
	}
	return &Buffer{pool: p, data: data, classIdx: classIdx, refs: 1}, nil
}

// reserveLocked ensures room for n more live bytes, running the
// optimisation pass (dropping the oldest — i.e. first — pooled buffers in
// each class) if the cap would otherwise be breached. Must be called with
// p.mu held.
func (p *Pool) reserveLocked(n int64) error {
	if p.liveBytes+p.pooledBytes+n <= p.capBytes {
		return nil
	}
	p.optimizeLocked(n)
	if p.liveBytes+p.pooledBytes+n <= p.capBytes {
		return nil
	}
	return mediaerr.NewMemoryError("chunkpool.acquire", errPoolExhausted)
}

// optimizeLocked drops pooled buffers, smallest class first and oldest
// buffer first within each class, until the pool has room for need more
// bytes under its cap or there is nothing left to drop.
func (p *Pool) optimizeLocked(need int64) {
	for i := range p.classes {
		c := &p.classes[i]
		for len(c.free) > 0 && p.liveBytes+p.pooledBytes+need > p.capBytes {
			data := c.free[0]
			c.free = c.free[1:]
			p.pooledBytes -= int64(cap(data))
		}
	}
}

// put returns a released buffer to its class's free list, or discards it if
// it was unpooled or the pool is over cap after the live-byte release.
func (p *Pool) put(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.liveBytes -= int64(cap(b.data))
	if p.liveBytes < 0 {
		p.liveBytes = 0
	}

	if b.classIdx < 0 {
		return
	}
	if p.pooledBytes+int64(cap(b.data)) > p.capBytes {
		return
	}
	c := &p.classes[b.classIdx]
	c.free = append(c.free, b.data)
	p.pooledBytes += int64(cap(b.data))
}

var errPoolExhausted = poolExhaustedError{}

type poolExhaustedError struct{}

func (poolExhaustedError) Error() string { return "chunkpool: cap exceeded after optimization pass" }
