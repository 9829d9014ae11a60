// Package flac implements the FLAC Codec capability from spec.md §4.5:
// per-channel subframe decoding (CONSTANT/VERBATIM/FIXED/LPC), Rice-coded
// residual expansion, inter-channel decorrelation and bit-depth narrowing
// to the int16 samples AudioFrame carries.
//
// The demuxer that produced a chunk has already located frame boundaries
// and validated CRC-8/CRC-16; this package re-parses the small header
// fields it needs directly from the chunk bytes rather than importing
// internal/demux/flac, so codec and demuxer stay independent packages that
// only share internal/bitio and internal/media.
//
// Grounded on the frame/subframe parsing and correlate() logic in the
// mewkiz/flac reference decoder carried in the example corpus; the
// teacher's own FLAC support (internal/drgolem style cgo bindings to
// libFLAC) has no portable bitstream algorithm to generalize from.
package flac

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/jmoon/audiocore/internal/bitio"
	"github.com/jmoon/audiocore/internal/capability"
	"github.com/jmoon/audiocore/internal/logger"
	"github.com/jmoon/audiocore/internal/media"
	"github.com/jmoon/audiocore/internal/mediaerr"
)

// maxBlockSize is FLAC's format maximum block size (a 16-bit field stores
// blockSize-1), used to size scratch buffers once at Initialize so Decode
// never allocates per-channel storage in steady state.
const maxBlockSize = 65536

// maxLPCOrder is FLAC's format maximum LPC predictor order.
const maxLPCOrder = 32

// Codec decodes FLAC frames per spec.md §4.5.2. One instance is bound to a
// single stream's parameters for its lifetime.
type Codec struct {
	log *slog.Logger

	sampleRate int
	channels   int
	bps        uint8

	channelBuf   [][]int32 // per-channel scratch, sized to maxBlockSize
	residualBuf  []int32   // FIXED/LPC residual scratch, sized to maxBlockSize
	lpcCoeffBuf  []int64   // LPC coefficient scratch, sized to the format's max order (32)
	pcmBuf       []int16   // interleaved output scratch, sized to maxBlockSize*channels
	dither       *ditherState

	initialized   bool
	lastBlockSize int
}

// New constructs a FLAC Codec bound to info, matching capability.CodecFactory.
func New(info *media.StreamInfo) (capability.Codec, error) {
	if info == nil || info.Channels < 1 || info.Channels > 8 {
		return nil, mediaerr.NewValidationError("flac.New", 0, fmt.Errorf("invalid channel count"))
	}
	bps := uint8(info.BitsPerSample)
	if bps == 0 {
		bps = 16
	}
	return &Codec{
		log:        logger.WithStream(logger.Logger(), "flac", info.StreamID),
		sampleRate: info.SampleRate,
		channels:   info.Channels,
		bps:        bps,
		dither:     newDitherState(uint32(info.StreamID)<<16 | 0xACE1),
	}, nil
}

// Initialize pre-allocates the per-channel and interleaved scratch buffers
// at FLAC's worst-case block size.
func (c *Codec) Initialize() (bool, error) {
	if c.initialized {
		return true, nil
	}
	c.channelBuf = make([][]int32, c.channels)
	for i := range c.channelBuf {
		c.channelBuf[i] = make([]int32, maxBlockSize)
	}
	c.residualBuf = make([]int32, maxBlockSize)
	c.lpcCoeffBuf = make([]int64, maxLPCOrder)
	c.pcmBuf = make([]int16, maxBlockSize*c.channels)
	c.initialized = true
	return true, nil
}

// Decode parses and reconstructs exactly one FLAC frame from chunk. A
// corrupt subframe is a recoverable format error: the caller gets a
// silence frame sized to the last known block size (or one millisecond's
// worth, if no frame has decoded yet) so downstream timing survives.
//
// The returned frame's Samples slice aliases c.pcmBuf; it is valid only
// until the next Decode call, which the caller must consume before
// calling again (DemuxedStream.refill_unlocked does so under its own
// lock). Once Initialize has run, nothing sized by block size or channel
// count is allocated here; each call still allocates its small reader
// wrappers, the parsed header and the returned *AudioFrame.
func (c *Codec) Decode(chunk *media.MediaChunk) (*media.AudioFrame, error) {
	if !c.initialized {
		if _, err := c.Initialize(); err != nil {
			return nil, err
		}
	}
	if chunk == nil || chunk.Size() == 0 {
		return media.Silence(c.sampleRate, c.channels, 0), nil
	}

	br := bitio.NewBitReader(bytes.NewReader(chunk.Data()))
	hdr, err := parseFrameHeader(br, c.bps)
	if err != nil {
		return c.silenceFrame(), mediaerr.NewFormatError("flac.Decode", chunk.FileOffset, mediaerr.RecoverySkipSection, err)
	}
	if int(hdr.Channels) != c.channels {
		return c.silenceFrame(), mediaerr.NewFormatError("flac.Decode", chunk.FileOffset, mediaerr.RecoverySkipSection, fmt.Errorf("frame channel count %d != stream channel count %d", hdr.Channels, c.channels))
	}
	blockSize := int(hdr.BlockSize)
	if blockSize > maxBlockSize {
		return c.silenceFrame(), mediaerr.NewFormatError("flac.Decode", chunk.FileOffset, mediaerr.RecoverySkipSection, fmt.Errorf("block size %d exceeds maximum", blockSize))
	}

	for ch := 0; ch < int(hdr.Channels); ch++ {
		subBps := subframeBitsPerSample(hdr.BitsPerSample, hdr.ChannelAssignment, ch)
		if err := decodeSubframe(br, blockSize, subBps, c.channelBuf[ch], c.residualBuf, c.lpcCoeffBuf); err != nil {
			return c.silenceFrame(), mediaerr.NewFormatError("flac.Decode", chunk.FileOffset, mediaerr.RecoverySkipSection, err)
		}
	}

	correlate(hdr.ChannelAssignment, c.channelBuf, blockSize)

	out := c.pcmBuf[:blockSize*c.channels]
	toInt16(c.channelBuf, blockSize, hdr.BitsPerSample, c.dither, out)

	c.lastBlockSize = blockSize
	return &media.AudioFrame{
		Samples:          out,
		SampleRate:       c.sampleRate,
		Channels:         c.channels,
		SampleFrameCount: blockSize,
	}, nil
}

// Flush reports no buffered samples: FLAC's frame-by-frame coding carries
// no cross-frame state to drain.
func (c *Codec) Flush() (*media.AudioFrame, error) {
	return media.Silence(c.sampleRate, c.channels, 0), nil
}

// Reset clears nothing stateful; FLAC subframes decode independently of
// any prior frame, so a demuxer seek needs no codec-side recovery beyond
// discarding lastBlockSize's silence-sizing hint.
func (c *Codec) Reset() {
	c.lastBlockSize = 0
}

func (c *Codec) CanDecode(codecName string) bool { return codecName == "flac" }
func (c *Codec) GetCodecName() string            { return "flac" }

func (c *Codec) silenceFrame() *media.AudioFrame {
	frames := c.lastBlockSize
	if frames == 0 {
		frames = c.sampleRate / 1000
		if frames == 0 {
			frames = 1
		}
	}
	return media.Silence(c.sampleRate, c.channels, frames)
}
