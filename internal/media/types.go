// Package media holds the data model shared by every demuxer and codec:
// StreamInfo, MediaChunk, AudioFrame and the small TagPair metadata model.
// It has no dependency on any concrete container or codec so that the
// demux and codec packages can both import it without a cycle.
package media

import "github.com/jmoon/audiocore/internal/chunkpool"

// CodecType enumerates the elementary-stream kinds a container can carry.
// The core only decodes Audio streams; other kinds are enumerated so a
// demuxer can still report them (and skip them) without fabricating a type.
type CodecType int

const (
	CodecTypeUnknown CodecType = iota
	CodecTypeAudio
	CodecTypeVideo
	CodecTypeSubtitle
)

// TagPair is one entry of a StreamInfo's open-ended metadata dictionary
// (artist/title/album/comment and whatever else a container's tag block
// carries), kept ordered so the original tag order survives round-tripping
// through the pipeline even though the core never writes tags back out.
type TagPair struct {
	Key   string
	Value string
}

// StreamInfo describes one elementary stream inside a container. It is
// immutable once a demuxer's parseContainer() returns successfully.
type StreamInfo struct {
	StreamID      int
	CodecType     CodecType
	CodecName     string // e.g. "flac", "vorbis", "opus", "mp3", "pcm_s16le"
	CodecTag      uint32 // numeric hint (e.g. WAVE_FORMAT tag, MP4 sample entry fourcc)
	SampleRate    int
	Channels      int
	BitsPerSample int
	Bitrate       int64 // bits/sec, 0 if unknown

	DurationSamples int64
	DurationMs      int64
	IsSeekable      bool
	HasSeekTable    bool

	Metadata     []TagPair
	CodecPrivate []byte // opaque codec-private bytes (e.g. FLAC STREAMINFO, Vorbis headers)
}

// tag looks up the first metadata value for key, case-sensitive, returning
// "" if absent.
func (si *StreamInfo) tag(key string) string {
	for _, t := range si.Metadata {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}

func (si *StreamInfo) Artist() string  { return si.tag("artist") }
func (si *StreamInfo) Title() string   { return si.tag("title") }
func (si *StreamInfo) Album() string   { return si.tag("album") }
func (si *StreamInfo) Comment() string { return si.tag("comment") }

// IsValid reports whether the stream carries sane audio parameters. A
// demuxer must not hand out a StreamInfo that fails this check.
func (si *StreamInfo) IsValid() bool {
	if si == nil {
		return false
	}
	if si.CodecType != CodecTypeAudio {
		return true // non-audio streams aren't constrained by audio invariants
	}
	if si.SampleRate <= 0 {
		return false
	}
	if si.Channels < 1 || si.Channels > 8 {
		return false
	}
	return true
}

// MediaChunk is the unit that flows between the demuxer and codec layers: a
// pooled byte buffer plus the addressing metadata from spec.md §3. A chunk
// is either empty (Size()==0, signalling EOF for its scope) or complete
// (exactly one decodable unit per the codec's grammar).
type MediaChunk struct {
	buf              *chunkpool.Buffer
	size             int
	StreamID         int
	TimestampSamples int64
	FileOffset       int64
	IsKeyframe       bool
	EndOfStream      bool
}

// NewChunk wraps a pooled buffer into a MediaChunk. size must be <= the
// buffer's capacity.
func NewChunk(buf *chunkpool.Buffer, size int, streamID int, timestampSamples, fileOffset int64, isKeyframe bool) *MediaChunk {
	return &MediaChunk{
		buf:              buf,
		size:             size,
		StreamID:         streamID,
		TimestampSamples: timestampSamples,
		FileOffset:       fileOffset,
		IsKeyframe:       isKeyframe,
	}
}

// EmptyChunk constructs the sentinel empty chunk that signals EOF for a
// stream; it owns no pooled buffer.
func EmptyChunk(streamID int, timestampSamples, fileOffset int64) *MediaChunk {
	return &MediaChunk{StreamID: streamID, TimestampSamples: timestampSamples, FileOffset: fileOffset, EndOfStream: true}
}

// Data returns the chunk's payload. Valid until Release is called.
func (c *MediaChunk) Data() []byte {
	if c.buf == nil {
		return nil
	}
	return c.buf.Bytes()[:c.size]
}

// Size returns the payload length; zero means EOF.
func (c *MediaChunk) Size() int { return c.size }

// RetainView returns an aliasing view of the chunk's buffer for a decoder
// that needs to hold onto the bytes past the chunk's own release. The
// caller must Release the returned buffer exactly once.
func (c *MediaChunk) RetainView() *chunkpool.Buffer {
	if c.buf == nil {
		return nil
	}
	return c.buf.Retain()
}

// Release returns the chunk's pooled buffer. Safe to call on an empty/EOF
// chunk (no-op) and safe to call more than once.
func (c *MediaChunk) Release() {
	if c.buf == nil {
		return
	}
	c.buf.Release()
	c.buf = nil
}

// AudioFrame is decoded PCM ready for the sink: interleaved int16 samples.
// The Samples of a frame returned from Codec.Decode/Flush may alias the
// codec's internal buffer and stay valid only until the codec's next Decode.
type AudioFrame struct {
	Samples          []int16
	SampleRate       int
	Channels         int
	SampleFrameCount int // per-channel sample count; len(Samples) == SampleFrameCount*Channels
}

// Silence builds a zeroed AudioFrame of frameCount samples per channel,
// used by codecs to preserve timing across a recoverable decode failure.
func Silence(sampleRate, channels, frameCount int) *AudioFrame {
	return &AudioFrame{
		Samples:          make([]int16, frameCount*channels),
		SampleRate:       sampleRate,
		Channels:         channels,
		SampleFrameCount: frameCount,
	}
}

// ByteLen returns the frame's PCM byte length (2 bytes per int16 sample).
func (f *AudioFrame) ByteLen() int {
	if f == nil {
		return 0
	}
	return len(f.Samples) * 2
}
