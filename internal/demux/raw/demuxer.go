// Package raw implements the Raw demuxer from spec.md §4.4.5: no container
// at all. The caller supplies the stream's StreamInfo (sample rate, channel
// count, bit depth, codec name — e.g. a user passing --format pcm_s16le on
// the command line, or a prior FormatProbe pass that only recognized a bare
// codec payload with no wrapping header), and the ByteSource is sliced into
// fixed-size MediaChunks with no parsing step at all.
//
// Grounded the same way internal/demux/riff is: fixed-size slicing rounded
// to a whole number of frames, generalized further since raw carries no
// header to read a frame size out of in the first place — blockAlign is
// computed straight from the caller's StreamInfo.
package raw

import (
	"log/slog"
	"sync"

	"github.com/jmoon/audiocore/internal/bytesource"
	"github.com/jmoon/audiocore/internal/capability"
	"github.com/jmoon/audiocore/internal/chunkpool"
	"github.com/jmoon/audiocore/internal/demux/shared"
	"github.com/jmoon/audiocore/internal/logger"
	"github.com/jmoon/audiocore/internal/media"
	"github.com/jmoon/audiocore/internal/mediaerr"
)

// defaultChunkBytes is the target size of one MediaChunk's payload before
// rounding down to a whole number of blockAlign-sized frames.
const defaultChunkBytes = 8192

// Demuxer hands out fixed-size slices of a headerless ByteSource using a
// caller-supplied StreamInfo. It carries exactly one elementary stream, so
// streamID is always 0.
type Demuxer struct {
	mu   sync.Mutex
	src  bytesource.ByteSource
	pool *chunkpool.Pool
	log  *slog.Logger
	sm   *shared.StateMachine

	info       *media.StreamInfo
	dataStart  int64
	dataSize   int64
	dataKnown  bool
	curOffset  int64
	chunkBytes int

	lastErr error
}

// Option configures a Demuxer at construction.
type Option func(*Demuxer)

// WithChunkPool overrides the pool chunks are allocated from.
func WithChunkPool(pool *chunkpool.Pool) Option {
	return func(d *Demuxer) { d.pool = pool }
}

// WithLogger overrides the demuxer's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Demuxer) { d.log = l }
}

// New constructs a raw demuxer over src. Matches capability.DemuxerFactory;
// unlike every other member of the demuxer family, hint is REQUIRED here:
// raw has no header of its own to derive a StreamInfo from.
func New(src bytesource.ByteSource, hint *media.StreamInfo, opts ...Option) (capability.Demuxer, error) {
	d := &Demuxer{
		src:  src,
		pool: chunkpool.New(),
		log:  logger.Logger(),
		sm:   shared.NewStateMachine(),
		info: hint,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Demuxer) State() capability.DemuxerState { return d.sm.Current() }

func (d *Demuxer) ParseContainer() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parseContainer_unlocked()
}

func (d *Demuxer) parseContainer_unlocked() (bool, error) {
	alreadyParsed, err := d.sm.BeginParse()
	if err != nil {
		return false, err
	}
	if alreadyParsed {
		return true, nil
	}

	if d.info == nil || !d.info.IsValid() {
		return false, mediaerr.NewValidationError("raw.hint", 0, errNoHint{})
	}

	ba := blockAlignFor(d.info)
	if ba <= 0 {
		return false, mediaerr.NewValidationError("raw.hint", 0, errBadBlockAlign{})
	}

	size, known := d.src.Size()
	d.dataStart = 0
	d.curOffset = 0
	d.dataKnown = known
	if known {
		d.dataSize = size
	}
	d.chunkBytes = (defaultChunkBytes / ba) * ba
	if d.chunkBytes == 0 {
		d.chunkBytes = ba
	}

	if known {
		totalFrames := size / int64(ba)
		d.info.DurationSamples = totalFrames
		d.info.DurationMs = durationMsFor(totalFrames, d.info.SampleRate)
	}
	d.info.IsSeekable = known
	d.info.HasSeekTable = false
	d.info.StreamID = 0

	d.sm.FinishParse()
	return true, nil
}

func blockAlignFor(info *media.StreamInfo) int {
	bytesPerSample := (info.BitsPerSample + 7) / 8
	if bytesPerSample <= 0 {
		bytesPerSample = 2
	}
	return info.Channels * bytesPerSample
}

func durationMsFor(totalFrames int64, sampleRate int) int64 {
	if sampleRate == 0 {
		return 0
	}
	return totalFrames * 1000 / int64(sampleRate)
}

func (d *Demuxer) GetStreams() []*media.StreamInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.info == nil || d.sm.Current() == capability.StateConstructed {
		return nil
	}
	return []*media.StreamInfo{d.info}
}

func (d *Demuxer) GetStreamInfo(streamID int) (*media.StreamInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if streamID != 0 || d.info == nil || d.sm.Current() == capability.StateConstructed {
		return nil, false
	}
	return d.info, true
}

func (d *Demuxer) dataEnd() (int64, bool) {
	if !d.dataKnown {
		return 0, false
	}
	return d.dataStart + d.dataSize, true
}

func (d *Demuxer) ReadChunk(streamID int) (*media.MediaChunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sm.RequireReading(); err != nil {
		return nil, err
	}
	ba := int64(blockAlignFor(d.info))
	sampleOffset := d.curOffset / ba

	if streamID > 0 {
		return media.EmptyChunk(0, sampleOffset, d.curOffset), nil
	}
	if end, known := d.dataEnd(); known && d.curOffset >= end {
		return media.EmptyChunk(0, sampleOffset, d.curOffset), nil
	}

	n := int64(d.chunkBytes)
	if end, known := d.dataEnd(); known {
		remaining := end - d.curOffset
		if n > remaining {
			n = remaining - remaining%ba // keep whole frames when possible
			if n <= 0 {
				n = remaining // final partial frame: hand it out rather than drop it
			}
		}
	}

	if _, err := d.src.Seek(d.curOffset, bytesource.SeekSet); err != nil {
		d.lastErr = mediaerr.NewIOError("raw.readchunk.seek", d.curOffset, err)
		return nil, d.lastErr
	}
	buf, err := d.pool.Acquire(int(n))
	if err != nil {
		d.lastErr = err
		return media.EmptyChunk(0, sampleOffset, d.curOffset), nil
	}
	read, err := readUpTo(d.src, buf.Bytes()[:n])
	if err != nil && read == 0 {
		buf.Release()
		d.lastErr = mediaerr.NewIOError("raw.readchunk.read", d.curOffset, err)
		return nil, d.lastErr
	}
	if read == 0 {
		buf.Release()
		return media.EmptyChunk(0, sampleOffset, d.curOffset), nil
	}

	chunk := media.NewChunk(buf, read, 0, sampleOffset, d.curOffset, true)
	d.curOffset += int64(read)
	return chunk, nil
}

func readUpTo(src bytesource.ByteSource, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := src.Read(buf[total:])
		total += n
		if src.EOF() {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
	return total, nil
}

func (d *Demuxer) SeekTo(targetMs int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sm.BeginSeek(); err != nil {
		return false, err
	}
	defer d.sm.EndSeek()

	if d.info == nil || d.info.SampleRate == 0 {
		return false, nil
	}
	ba := int64(blockAlignFor(d.info))
	targetSample := targetMs * int64(d.info.SampleRate) / 1000
	offset := d.dataStart + targetSample*ba
	if end, known := d.dataEnd(); known && offset > end {
		offset = end
	}
	if offset < d.dataStart {
		offset = d.dataStart
	}
	d.curOffset = offset
	return true, nil
}

func (d *Demuxer) IsEOF() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	end, known := d.dataEnd()
	return d.info == nil || (known && d.curOffset >= end)
}

func (d *Demuxer) GetDuration() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.info == nil {
		return 0
	}
	return d.info.DurationMs
}

func (d *Demuxer) GetPosition() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.info == nil || d.info.SampleRate == 0 {
		return 0
	}
	ba := int64(blockAlignFor(d.info))
	frames := (d.curOffset - d.dataStart) / ba
	return frames * 1000 / int64(d.info.SampleRate)
}

func (d *Demuxer) GetLastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *Demuxer) ClearError() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastErr = nil
}

func (d *Demuxer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sm.Close()
	return d.src.Close()
}

type errNoHint struct{}

func (errNoHint) Error() string { return "raw: no valid StreamInfo hint supplied" }

type errBadBlockAlign struct{}

func (errBadBlockAlign) Error() string { return "raw: hint yields zero-byte block align" }
