// Package capability defines the Demuxer and Codec capability sets from
// spec.md §4.4/§4.5 as plain interfaces, plus the constructor signatures the
// Registry dispatches through. It depends only on media/bytesource/mediaerr
// so that demux/*, codec/*, registry, probe and stream can all import it
// without forming a cycle — concrete demuxers and codecs satisfy these
// interfaces but never import the registry that wires them in.
package capability

import (
	"github.com/jmoon/audiocore/internal/bytesource"
	"github.com/jmoon/audiocore/internal/media"
)

// DemuxerState is the Constructed → Parsed → Reading ⇄ Seeking → Closed
// machine from spec.md §4.4. Parsed is absorbing on first success; Seeking
// is always transient, reverting to Reading (or Closed, on failure during
// close) once the seek completes.
type DemuxerState int

const (
	StateConstructed DemuxerState = iota
	StateParsed
	StateReading
	StateSeeking
	StateClosed
)

func (s DemuxerState) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateParsed:
		return "parsed"
	case StateReading:
		return "reading"
	case StateSeeking:
		return "seeking"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Demuxer is the capability set every container parser implements. A
// concrete demuxer owns its ByteSource and is built over the public/private
// lock pattern used throughout this module: each exported method here is
// expected to take an instance lock and delegate to an *_unlocked twin.
type Demuxer interface {
	// ParseContainer runs once: validates the signature, loads metadata,
	// enumerates streams, and may build a bounded seek index. Calling it
	// again after success is a no-op returning true.
	ParseContainer() (bool, error)

	GetStreams() []*media.StreamInfo
	GetStreamInfo(streamID int) (*media.StreamInfo, bool)

	// ReadChunk returns the next chunk for streamID in container order, or
	// for every interleaved stream when streamID < 0. An empty chunk
	// signals EOF for that scope; it never returns a nil chunk.
	ReadChunk(streamID int) (*media.MediaChunk, error)

	// SeekTo is best-effort sample-accurate: the next ReadChunk after a
	// successful seek carries the first sample at or after targetMs.
	SeekTo(targetMs int64) (bool, error)

	IsEOF() bool
	GetDuration() int64 // milliseconds
	GetPosition() int64 // milliseconds
	GetLastError() error
	ClearError()
	State() DemuxerState
	Close() error
}

// Codec is the capability set every bitstream decoder implements.
type Codec interface {
	// Initialize pre-allocates worst-case buffers from the StreamInfo the
	// codec was constructed with; steady-state allocation afterwards is
	// forbidden by spec.md §4.5.
	Initialize() (bool, error)

	// Decode consumes exactly one chunk and produces a frame, or, on a
	// recoverable failure, a silence frame of the expected block size
	// that preserves timing while internal state recovers.
	Decode(chunk *media.MediaChunk) (*media.AudioFrame, error)

	// Flush drains any samples buffered inside the decoder (e.g. LPC
	// warm-up history) with no further input.
	Flush() (*media.AudioFrame, error)

	// Reset clears decoder state without reallocating; required after a
	// demuxer SeekTo before the next Decode call.
	Reset()

	CanDecode(codecName string) bool
	GetCodecName() string
}

// DemuxerFactory constructs a Demuxer over an opened ByteSource. Concrete
// factories are free to ignore the StreamInfo hint (used only by the raw
// demuxer, which has no container to parse its own stream shape from).
type DemuxerFactory func(src bytesource.ByteSource, hint *media.StreamInfo) (Demuxer, error)

// CodecFactory constructs a Codec bound to one stream's parameters.
type CodecFactory func(info *media.StreamInfo) (Codec, error)
