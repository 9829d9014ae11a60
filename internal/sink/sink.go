// Package sink implements the bounded PCM ring spec.md §5 requires between
// the worker thread (demux+decode) and the real-time audio callback: the
// callback must never block on I/O or decode, so decoded bytes are pushed
// into a fixed-capacity ring ahead of time and the callback only ever reads
// out of it, emitting silence and raising an underflow flag when the ring
// can't keep up.
//
// Grounded on drgolem-go-flac's own use of github.com/drgolem/ringbuffer to
// decouple its cgo decode callback from the pull-style Read the caller
// drives (flac.go's ringBuffer field and AvailableRead/Read/Write calls),
// generalized from one codec's internal buffering to this pipeline's
// stream-to-audio-device handoff.
package sink

import (
	"sync"
	"sync/atomic"

	"github.com/drgolem/ringbuffer"

	"github.com/jmoon/audiocore/internal/logger"
)

// Ring is a single-producer/single-consumer byte ring sized in PCM bytes.
// Push is called from the worker thread, Pull from the audio callback
// thread. Both hold mu for the whole of their ring access, so they are
// safe to call concurrently with each other and with themselves.
type Ring struct {
	mu       sync.Mutex
	buf      *ringbuffer.RingBuffer
	capacity int

	underflows uint64
}

// NewRing allocates a ring holding capacityBytes of PCM.
func NewRing(capacityBytes int) *Ring {
	return &Ring{
		buf:      ringbuffer.New(capacityBytes),
		capacity: capacityBytes,
	}
}

// Push enqueues PCM bytes produced by the worker thread. Returns the number
// of bytes actually accepted; fewer than len(p) means the ring is full and
// the worker should back off rather than block (spec.md §5: pool/ring
// acquisition never blocks across I/O).
func (r *Ring) Push(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	free := r.capacity - r.buf.AvailableRead()
	if free <= 0 {
		return 0
	}
	if len(p) > free {
		p = p[:free]
	}
	n, err := r.buf.Write(p)
	if err != nil {
		return 0
	}
	return n
}

// Pull services the audio callback: fills buffer with whatever PCM is
// available and zero-fills the remainder on underflow, incrementing the
// underflow counter so a diagnostics sink can surface it without the
// callback itself doing any logging (spec.md §5: no blocking I/O, and
// nothing the callback does may acquire a lock a slower thread could hold
// across I/O).
func (r *Ring) Pull(buffer []byte) (filled int, underflow bool) {
	r.mu.Lock()
	available := r.buf.AvailableRead()
	want := len(buffer)
	if want > available {
		want = available
	}
	if want > 0 {
		n, err := r.buf.Read(buffer[:want])
		if err == nil {
			filled = n
		}
	}
	r.mu.Unlock()

	if filled < len(buffer) {
		for i := filled; i < len(buffer); i++ {
			buffer[i] = 0
		}
		if filled < len(buffer) {
			atomic.AddUint64(&r.underflows, 1)
			underflow = true
		}
	}
	return filled, underflow
}

// Reset discards buffered PCM, used after a seek invalidates everything
// already queued ahead of the new position.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf.Reset()
}

// Underflows returns the cumulative count of Pull calls that had to
// zero-fill part of the requested buffer.
func (r *Ring) Underflows() uint64 {
	return atomic.LoadUint64(&r.underflows)
}

// Len reports how many PCM bytes are currently buffered and available to
// Pull, letting a caller that has stopped producing wait for the ring to
// drain before tearing down the consumer.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.AvailableRead()
}

// LogUnderflow is a convenience the owning stream calls after a Pull
// reports underflow, kept out of Pull itself so the real-time callback
// path never touches the logger.
func LogUnderflow(count uint64) {
	logger.Logger().Warn("audio ring underflow", "count", count)
}
