// Package flac implements the FLAC container Demuxer from spec.md §4.4.2:
// fLaC magic and METADATA_BLOCK walk with a mandatory STREAMINFO, frame
// boundary estimation that prefers STREAMINFO's min_frame_size over a
// theoretical block×channels×depth calculation, a bounded resync window on
// sync/CRC failure, and CRC-8/CRC-16 validation under a configurable mode.
//
// Grounded on internal/rtmp/chunk's reader/state pair for the overall
// reassembly shape, generalized the same way internal/demux/ogg is; the
// frame-boundary estimation and bounded resync are new behavior with no
// RTMP analogue, built directly from spec.md §4.4.2 and cross-checked
// against the METADATA_BLOCK_STREAMINFO and frame header field layouts
// used by the mewkiz/flac reference parser in the example corpus.
package flac

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

// maxHeaderBytes bounds how much a frame header can occupy (sync through
// the optional 16-bit sample rate field and its CRC-8 byte): comfortably
// more than the worst case of 4 (fixed part) + 7 (UTF-8 number) + 2 (16-bit
// block size) + 2 (16-bit sample rate) + 1 (CRC-8).
const maxHeaderBytes = 18

// resyncWindow bounds how far past the frame-size estimate the demuxer
// scans for the next frame's sync code before falling back to a
// STREAMINFO-derived advance, per spec.md §4.4.2.
const resyncWindow = 256

// indexMinSpacingSamples and indexMaxBytes bound the FrameIndex populated
// during initial indexing and playback (spec.md §4.4.2).
const (
	indexMinSpacingSamples = 44100
	indexMaxBytes          = 8 << 20
	indexInitialFrameCap   = 1000
)

// Demuxer is the FLAC container parser. FLAC carries exactly one elementary
// stream, so streamID is always 0.
type Demuxer struct {
	mu   sync.Mutex
	src  bytesource.ByteSource
	pool *chunkpool.Pool
	log  *slog.Logger
	sm   *shared.StateMachine

	crcMode    CRCMode
	errCounter *shared.ErrorCounter
	index      *shared.FrameIndex

	si         *streamInfo
	audioStart int64
	curOffset  int64
	size       int64
	sizeKnown  bool

	positionSamples int64
	lastErr         error
	srcEOF          bool
	fallbackMode    bool
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

// WithCRCMode overrides the default CRC verification mode (CRCEnabled).
func WithCRCMode(mode CRCMode) Option {
	return func(d *Demuxer) { d.crcMode = mode }
}

// New constructs a FLAC demuxer over src. Matches capability.DemuxerFactory;
// hint is ignored (fLaC's own STREAMINFO is authoritative).
func New(src bytesource.ByteSource, _ *media.StreamInfo, opts ...Option) (capability.Demuxer, error) {
	d := &Demuxer{
		src:        src,
		pool:       chunkpool.New(),
		log:        logger.Logger(),
		sm:         shared.NewStateMachine(),
		crcMode:    CRCEnabled,
		errCounter: shared.NewErrorCounter(16),
		index:      shared.NewFrameIndex(indexMinSpacingSamples, indexMaxBytes),
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

	si, err := readMetadataBlocks(d.src)
	if err != nil {
		return false, err
	}
	offset, err := d.src.Tell()
	if err != nil {
		return false, err
	}

	d.si = si
	d.audioStart = offset
	d.curOffset = offset
	if size, ok := d.src.Size(); ok {
		d.size = size
		d.sizeKnown = true
	}

	d.indexInitial_unlocked()

	d.sm.FinishParse()
	return true, nil
}

// indexInitial_unlocked walks forward from the first audio frame building
// FrameIndex entries, bounded to indexInitialFrameCap frames or roughly the
// first 5 minutes of audio (whichever comes first), then rewinds back to
// the first frame so ReadChunk starts from the beginning of the stream.
func (d *Demuxer) indexInitial_unlocked() {
	const fiveMinutesMs = 5 * 60 * 1000
	saved := d.curOffset
	for i := 0; i < indexInitialFrameCap; i++ {
		h, frameLen, ok := d.nextFrame_unlocked()
		if !ok {
			break
		}
		sampleOffset := d.sampleOffsetFor(h)
		d.index.Add(shared.FrameIndexEntry{
			SampleOffset: sampleOffset,
			FileOffset:   d.curOffset,
			BlockSize:    int(h.BlockSize),
			FrameSize:    frameLen,
		})
		d.curOffset += int64(frameLen)
		if d.si.SampleRate > 0 && sampleOffset*1000/int64(d.si.SampleRate) > fiveMinutesMs {
			break
		}
	}
	d.curOffset = saved
	d.srcEOF = false
}

// sampleOffsetFor derives a frame's starting sample offset. FLAC's frame
// number field is a frame count for fixed-blocksize streams and a sample
// count for variable-blocksize streams; fixed-blocksize is overwhelmingly
// the common case and is what STREAMINFO's equal min/max block size signals.
func (d *Demuxer) sampleOffsetFor(h *frameHeader) int64 {
	if d.si.MinBlockSize == d.si.MaxBlockSize {
		return int64(h.Number) * int64(d.si.MaxBlockSize)
	}
	return int64(h.Number)
}

// frameSizeEstimate returns the byte offset, relative to a frame's start,
// at which the demuxer begins scanning for the next frame's sync code.
// STREAMINFO's min_frame_size is strongly preferred per spec.md §4.4.2; a
// theoretical block×channels×depth calculation is used only when
// min_frame_size is unknown (0), and even then scaled down since compressed
// audio is reliably well under its PCM-equivalent size.
func frameSizeEstimate(si *streamInfo, h *frameHeader) int {
	if si.MinFrameSize > 0 {
		return int(si.MinFrameSize)
	}
	bytesPerSample := (int(h.BitsPerSample) + 7) / 8
	if bytesPerSample == 0 {
		bytesPerSample = 2
	}
	est := h.HeaderLen + int(h.BlockSize)*int(h.Channels)*bytesPerSample/4
	if est < 16 {
		est = 16
	}
	return est
}

// nextFrame_unlocked parses the frame header at d.curOffset, determines the
// frame's total length by scanning for the next sync code, and verifies
// CRC-16 over the whole frame per d.crcMode. Returns ok=false at clean EOF.
func (d *Demuxer) nextFrame_unlocked() (*frameHeader, int, bool) {
	for attempt := 0; attempt < 64; attempt++ {
		if d.sizeKnown && d.curOffset >= d.size {
			d.srcEOF = true
			return nil, 0, false
		}

		headerBuf, err := d.readAt(d.curOffset, maxHeaderBytes)
		if err != nil || len(headerBuf) < 2 {
			d.srcEOF = true
			return nil, 0, false
		}

		h, crc8Mismatch, err := parseFrameHeader(headerBuf, d.si, d.crcMode)
		if err != nil {
			if mediaerr.RecoveryFor(err) == mediaerr.RecoverySkipSection {
				if d.resyncPastFailure_unlocked() {
					continue
				}
			}
			d.srcEOF = true
			return nil, 0, false
		}
		if crc8Mismatch {
			d.noteCRCMismatch_unlocked()
		}

		frameLen, foundSync := d.locateFrameEnd_unlocked(h)
		if !foundSync {
			d.log.Warn("flac frame sync not found in resync window, falling back to STREAMINFO-based advance",
				"offset", d.curOffset)
		}

		frameBuf, err := d.readAt(d.curOffset, frameLen)
		if err != nil || len(frameBuf) < frameLen {
			d.srcEOF = true
			return nil, 0, false
		}
		if d.crcMode != CRCDisabled && frameLen >= 2 {
			got := crc16Update(0, frameBuf[:frameLen-2])
			want := uint16(frameBuf[frameLen-2])<<8 | uint16(frameBuf[frameLen-1])
			if got != want {
				if d.crcMode == CRCStrict {
					d.log.Warn("flac frame CRC-16 mismatch in strict mode, resyncing", "offset", d.curOffset)
					if d.resyncPastFailure_unlocked() {
						continue
					}
					d.srcEOF = true
					return nil, 0, false
				}
				d.noteCRCMismatch_unlocked()
			}
		}

		return h, frameLen, true
	}
	d.srcEOF = true
	return nil, 0, false
}

// noteCRCMismatch_unlocked counts a non-fatal CRC mismatch and auto-disables
// verification once the error threshold trips, per spec.md §4.4.2's
// "error-threshold auto-disable is permitted".
func (d *Demuxer) noteCRCMismatch_unlocked() {
	if exceeded := d.errCounter.Increment(); exceeded && d.crcMode != CRCDisabled {
		d.log.Warn("flac CRC mismatch threshold exceeded, disabling CRC verification")
		d.crcMode = CRCDisabled
	}
}

// locateFrameEnd_unlocked finds where the frame starting at d.curOffset
// ends, by estimating its size from STREAMINFO and scanning a bounded
// window around that estimate for the next frame's sync code.
func (d *Demuxer) locateFrameEnd_unlocked(h *frameHeader) (int, bool) {
	estimate := frameSizeEstimate(d.si, h)
	windowStart := d.curOffset + int64(estimate)

	window, err := d.readAt(windowStart, resyncWindow)
	if err == nil && len(window) >= 2 {
		if i, found := scanForSync(window); found {
			return estimate + i, true
		}
	}

	fallback := int64(d.si.MaxFrameSize)
	if fallback <= 0 {
		fallback = int64(estimate)
	}
	return int(fallback), false
}

// resyncPastFailure_unlocked scans forward from d.curOffset for the next
// plausible sync code after a structural or CRC failure, moving d.curOffset
// there. Returns false if none is found within resyncWindow bytes or the
// error counter has exceeded its threshold (entering fallback mode).
func (d *Demuxer) resyncPastFailure_unlocked() bool {
	if exceeded := d.errCounter.Increment(); exceeded {
		d.log.Warn("flac resync threshold exceeded, entering fallback mode")
		d.fallbackMode = true
		return false
	}
	window, err := d.readAt(d.curOffset+1, resyncWindow)
	if err != nil || len(window) < 2 {
		return false
	}
	i, found := scanForSync(window)
	if !found {
		return false
	}
	d.curOffset += 1 + int64(i)
	return true
}

// scanForSync finds the byte offset of the next 0xFF, 1111100x candidate
// sync code in window. The last header bit (blocking strategy) is a
// don't-care, masked off before comparison.
func scanForSync(window []byte) (int, bool) {
	for i := 0; i+1 < len(window); i++ {
		if window[i] == 0xFF && window[i+1]&0xFE == 0xF8 {
			return i, true
		}
	}
	return 0, false
}

// readAt reads up to n bytes starting at offset without touching
// d.curOffset; the source is left positioned after the bytes read and
// its earlier position is not restored.
func (d *Demuxer) readAt(offset int64, n int) ([]byte, error) {
	if _, err := d.src.Seek(offset, bytesource.SeekSet); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	total := 0
	for total < n {
		read, err := d.src.Read(buf[total:])
		total += read
		if d.src.EOF() {
			break
		}
		if err != nil {
			return buf[:total], err
		}
		if read == 0 {
			break
		}
	}
	return buf[:total], nil
}

func (d *Demuxer) GetStreams() []*media.StreamInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return []*media.StreamInfo{d.streamInfo_unlocked()}
}

func (d *Demuxer) GetStreamInfo(streamID int) (*media.StreamInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if streamID != 0 || d.si == nil {
		return nil, false
	}
	return d.streamInfo_unlocked(), true
}

func (d *Demuxer) streamInfo_unlocked() *media.StreamInfo {
	si := d.si
	return &media.StreamInfo{
		StreamID:        0,
		CodecType:       media.CodecTypeAudio,
		CodecName:       "flac",
		SampleRate:      int(si.SampleRate),
		Channels:        int(si.Channels),
		BitsPerSample:   int(si.BitsPerSample),
		DurationSamples: int64(si.TotalSamples),
		DurationMs:      durationMsFor(si),
		IsSeekable:      true,
		HasSeekTable:    true,
	}
}

func durationMsFor(si *streamInfo) int64 {
	if si.SampleRate == 0 {
		return 0
	}
	return int64(si.TotalSamples) * 1000 / int64(si.SampleRate)
}

func (d *Demuxer) ReadChunk(streamID int) (*media.MediaChunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sm.RequireReading(); err != nil {
		return nil, err
	}
	if streamID != 0 {
		return media.EmptyChunk(streamID, d.positionSamples, d.curOffset), nil
	}
	if d.srcEOF || d.fallbackMode {
		return media.EmptyChunk(0, d.positionSamples, d.curOffset), nil
	}

	h, frameLen, ok := d.nextFrame_unlocked()
	if !ok {
		return media.EmptyChunk(0, d.positionSamples, d.curOffset), nil
	}

	frameBuf, err := d.readAt(d.curOffset, frameLen)
	if err != nil || len(frameBuf) < frameLen {
		d.lastErr = mediaerr.NewIOError("flac.readchunk", d.curOffset, err)
		d.srcEOF = true
		return nil, d.lastErr
	}

	sampleOffset := d.sampleOffsetFor(h)
	buf, err := d.pool.Acquire(frameLen)
	if err != nil {
		d.lastErr = err
		return media.EmptyChunk(0, sampleOffset, d.curOffset), nil
	}
	copy(buf.Bytes(), frameBuf)

	d.index.Add(shared.FrameIndexEntry{
		SampleOffset: sampleOffset,
		FileOffset:   d.curOffset,
		BlockSize:    int(h.BlockSize),
		FrameSize:    frameLen,
	})

	chunk := media.NewChunk(buf, frameLen, 0, sampleOffset, d.curOffset, true)
	d.curOffset += int64(frameLen)
	d.positionSamples = sampleOffset + int64(h.BlockSize)
	return chunk, nil
}

func (d *Demuxer) SeekTo(targetMs int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sm.BeginSeek(); err != nil {
		return false, err
	}
	defer d.sm.EndSeek()

	if d.si == nil || d.si.SampleRate == 0 {
		return false, nil
	}
	targetSample := targetMs * int64(d.si.SampleRate) / 1000

	startOffset := d.audioStart
	startSample := int64(0)
	if entry, ok := d.index.Nearest(targetSample); ok {
		startOffset = entry.FileOffset
		startSample = entry.SampleOffset
	}

	if _, err := d.src.Seek(startOffset, bytesource.SeekSet); err != nil {
		return false, err
	}
	d.curOffset = startOffset
	d.positionSamples = startSample
	d.srcEOF = false

	for d.positionSamples < targetSample {
		h, frameLen, ok := d.nextFrame_unlocked()
		if !ok {
			break
		}
		d.curOffset += int64(frameLen)
		d.positionSamples = d.sampleOffsetFor(h) + int64(h.BlockSize)
	}
	return true, nil
}

func (d *Demuxer) IsEOF() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.srcEOF || d.fallbackMode
}

func (d *Demuxer) GetDuration() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.si == nil {
		return 0
	}
	return durationMsFor(d.si)
}

func (d *Demuxer) GetPosition() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.si == nil || d.si.SampleRate == 0 {
		return 0
	}
	return d.positionSamples * 1000 / int64(d.si.SampleRate)
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
