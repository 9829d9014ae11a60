// Package ogg implements the Ogg container Demuxer from spec.md §4.4.1:
// 27-byte page header parsing, CRC-32 verification, packet reassembly
// across page boundaries keyed by serial_number, and codec identification
// for the two Ogg-carried codecs this module wires (Vorbis, Opus).
//
// Grounded on internal/rtmp/chunk's reader/state pair: both problems are
// "reassemble variable-length application messages from a stream of
// fixed-framed, stream-id-tagged, possibly-interleaved low-level units",
// just keyed by CSID there and by Ogg serial_number here.
package ogg

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

// resyncWindow bounds how far findNextCapture scans past a CRC/structural
// failure before giving up, mirroring the FLAC demuxer's bounded resync.
const resyncWindow = 64 * 1024

// maxParsePages bounds how many pages ParseContainer will read while
// waiting for every stream's header packets to complete, so a malformed
// file with no audio packets can't spin forever.
const maxParsePages = 512

// pendingChunk is a reassembled audio packet waiting to be handed out by
// ReadChunk.
type pendingChunk struct {
	streamID   int
	data       []byte
	granulePos int64
	fileOffset int64
}

// Demuxer is the Ogg container parser.
type Demuxer struct {
	mu     sync.Mutex
	src    bytesource.ByteSource
	pool   *chunkpool.Pool
	log    *slog.Logger
	sm     *shared.StateMachine

	streams map[uint32]*logicalStream
	order   []uint32

	pending    []pendingChunk
	lastErr    error
	errCounter *shared.ErrorCounter
	srcEOF     bool
	durationMs int64
	durationOK bool
	positionMs int64
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

// New constructs an Ogg demuxer over src. Matches capability.DemuxerFactory;
// hint is ignored (Ogg's own identification headers are authoritative).
func New(src bytesource.ByteSource, _ *media.StreamInfo, opts ...Option) (capability.Demuxer, error) {
	d := &Demuxer{
		src:        src,
		pool:       chunkpool.New(),
		log:        logger.Logger(),
		sm:         shared.NewStateMachine(),
		streams:    make(map[uint32]*logicalStream),
		errCounter: shared.NewErrorCounter(16),
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

	for pagesRead := 0; pagesRead < maxParsePages; pagesRead++ {
		if d.allKnownStreamsHeadersDone() && len(d.streams) > 0 {
			break
		}
		ok, err := d.readOnePage_unlocked()
		if err != nil {
			return false, err
		}
		if !ok {
			break // EOF before any stream finished its headers
		}
	}

	if len(d.streams) == 0 {
		return false, mediaerr.NewFormatError("ogg.parseContainer", 0, mediaerr.RecoveryNone,
			errNoLogicalStreams{})
	}

	d.sm.FinishParse()
	return true, nil
}

type errNoLogicalStreams struct{}

func (errNoLogicalStreams) Error() string { return "no Ogg logical bitstreams found" }

func (d *Demuxer) allKnownStreamsHeadersDone() bool {
	for _, s := range d.streams {
		if s.headerPacketsLeft > 0 && s.codecName != "" {
			return false
		}
	}
	return true
}

// readOnePage_unlocked reads and processes exactly one Ogg page, resyncing
// forward on a CRC/structural failure per spec.md §4.4 Failure semantics.
// Returns ok=false only on clean EOF.
func (d *Demuxer) readOnePage_unlocked() (bool, error) {
	h, payload, err := readPage(d.src)
	if err != nil {
		if mediaerr.RecoveryFor(err) == mediaerr.RecoverySkipSection {
			d.log.Warn("ogg page failed, resyncing", "error", err)
			if exceeded := d.errCounter.Increment(); exceeded {
				return false, mediaerr.NewFormatError("ogg.resync", 0, mediaerr.RecoveryFallbackMode,
					errTooManyResyncs{})
			}
			found, ferr := findNextCapture(d.src, resyncWindow)
			if ferr != nil {
				return false, ferr
			}
			if !found {
				d.srcEOF = true
				return false, nil
			}
			return true, nil
		}
		if d.src.EOF() {
			d.srcEOF = true
			return false, nil
		}
		return false, err
	}

	s, isNew := d.streamFor(h.SerialNumber)
	if isNew {
		d.log.Debug("ogg logical stream discovered", "serial", h.SerialNumber, "stream_id", s.streamID)
	}

	packets := s.packetsFromPage(h, payload)
	for _, pkt := range packets {
		d.consumePacket(s, pkt, h.GranulePos, h.fileOffset)
	}
	if h.isEOS() {
		s.eos = true
	}

	if sampleRate := s.sampleRate; sampleRate > 0 && h.GranulePos >= 0 {
		d.positionMs = h.GranulePos * 1000 / int64(sampleRate)
	}

	return true, nil
}

type errTooManyResyncs struct{}

func (errTooManyResyncs) Error() string { return "too many Ogg page resyncs, giving up" }

func (d *Demuxer) streamFor(serial uint32) (*logicalStream, bool) {
	if s, ok := d.streams[serial]; ok {
		return s, false
	}
	s := &logicalStream{streamID: len(d.order), serial: serial}
	d.streams[serial] = s
	d.order = append(d.order, serial)
	return s, true
}

func (d *Demuxer) consumePacket(s *logicalStream, pkt []byte, granule int64, fileOffset int64) {
	if s.codecName == "" && len(s.codecPrivate) == 0 {
		if err := s.identifyPacket(pkt); err != nil {
			d.log.Warn("ogg identification header rejected", "serial", s.serial, "error", err)
		}
		return
	}
	if s.headerPacketsLeft > 0 {
		s.codecPrivate = append(s.codecPrivate, cloneBytes(pkt))
		s.headerPacketsLeft--
		return
	}
	d.pending = append(d.pending, pendingChunk{
		streamID:   s.streamID,
		data:       pkt,
		granulePos: granule,
		fileOffset: fileOffset,
	})
}

func (d *Demuxer) GetStreams() []*media.StreamInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*media.StreamInfo, 0, len(d.order))
	for _, serial := range d.order {
		out = append(out, d.streamInfoFor(d.streams[serial]))
	}
	return out
}

func (d *Demuxer) GetStreamInfo(streamID int) (*media.StreamInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, serial := range d.order {
		s := d.streams[serial]
		if s.streamID == streamID {
			return d.streamInfoFor(s), true
		}
	}
	return nil, false
}

func (d *Demuxer) streamInfoFor(s *logicalStream) *media.StreamInfo {
	info := &media.StreamInfo{
		StreamID:      s.streamID,
		CodecType:     media.CodecTypeUnknown,
		CodecName:     s.codecName,
		SampleRate:    s.sampleRate,
		Channels:      s.channels,
		BitsPerSample: 16,
		IsSeekable:    true,
	}
	if s.codecName != "" {
		info.CodecType = media.CodecTypeAudio
	}
	if len(s.codecPrivate) > 0 {
		info.CodecPrivate = media.PackCodecPrivate(s.codecPrivate)
	}
	return info
}

func (d *Demuxer) ReadChunk(streamID int) (*media.MediaChunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sm.RequireReading(); err != nil {
		return nil, err
	}

	for {
		if idx := d.popPending(streamID); idx != nil {
			return d.chunkFromPending(*idx), nil
		}
		if d.srcEOF || d.allStreamsEOS() {
			return media.EmptyChunk(streamID, 0, 0), nil
		}
		ok, err := d.readOnePage_unlocked()
		if err != nil {
			d.lastErr = err
			return nil, err
		}
		if !ok {
			d.srcEOF = true
		}
	}
}

func (d *Demuxer) allStreamsEOS() bool {
	if len(d.streams) == 0 {
		return false
	}
	for _, s := range d.streams {
		if !s.eos {
			return false
		}
	}
	return true
}

func (d *Demuxer) popPending(streamID int) *pendingChunk {
	for i, p := range d.pending {
		if streamID < 0 || p.streamID == streamID {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			return &p
		}
	}
	return nil
}

func (d *Demuxer) chunkFromPending(p pendingChunk) *media.MediaChunk {
	buf, err := d.pool.Acquire(len(p.data))
	if err != nil {
		d.lastErr = err
		return media.EmptyChunk(p.streamID, 0, p.fileOffset)
	}
	copy(buf.Bytes(), p.data)

	// granulePos is carried through as the timestamp in samples at the
	// stream's own codec-specific rate (Opus: 48kHz granule clock regardless
	// of input_sample_rate); per-codec conversion, if any, happens in the
	// Codec layer that already knows pre-skip/output-gain semantics.
	return media.NewChunk(buf, len(p.data), p.streamID, p.granulePos, p.fileOffset, true)
}

func (d *Demuxer) SeekTo(targetMs int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sm.BeginSeek(); err != nil {
		return false, err
	}
	defer d.sm.EndSeek()

	if _, err := d.src.Seek(0, bytesource.SeekSet); err != nil {
		return false, err
	}
	d.pending = nil
	d.srcEOF = false
	for serial := range d.streams {
		d.streams[serial].partial = nil
		d.streams[serial].eos = false
	}

	for d.positionMs < targetMs {
		ok, err := d.readOnePage_unlocked()
		if err != nil {
			return false, err
		}
		if !ok {
			d.srcEOF = true
			break
		}
	}
	return true, nil
}

func (d *Demuxer) IsEOF() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.srcEOF && len(d.pending) == 0
}

func (d *Demuxer) GetDuration() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.durationOK {
		return d.durationMs
	}
	d.durationMs = estimateDuration(d.src, d.streams)
	d.durationOK = true
	return d.durationMs
}

func (d *Demuxer) GetPosition() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.positionMs
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
