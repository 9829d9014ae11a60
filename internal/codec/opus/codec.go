// Package opus implements the Opus Codec capability from spec.md §4.5.3:
// a thin wrapper around github.com/thesyncim/gopus's pure-Go single-stream
// decoder, applying the pre-skip RFC 7845 §4.5 mandates before any decoded
// audio reaches the pipeline.
//
// Grounded on github.com/thesyncim/gopus's multistream package (the int16
// conversion and per-stream Decode/DecodeStereo call shape are carried
// straight from its applyChannelMapping/float64ToInt16 helpers), generalized
// down to the single elementary stream this pipeline's Ogg demuxer hands
// out (channel mapping family 0 only).
package opus

import (
	"log/slog"

	"github.com/jmoon/audiocore/internal/capability"
	"github.com/jmoon/audiocore/internal/logger"
	"github.com/jmoon/audiocore/internal/media"
	"github.com/jmoon/audiocore/internal/mediaerr"
	"github.com/thesyncim/gopus"
)

// sampleRate is fixed by the Opus format: every Opus decoder runs its
// internal clock at 48kHz regardless of the stream's original input rate.
const sampleRate = 48000

// maxFrameSamples bounds the largest single Opus frame (120ms at 48kHz),
// sized once at Initialize so Decode's scratch buffer never grows.
const maxFrameSamples = 5760

// Codec decodes a single (non-multistream) Opus elementary stream.
type Codec struct {
	log *slog.Logger

	channels int
	preSkip  int

	decoder *gopus.Decoder

	skipRemaining int // pre-skip samples still to discard, consumed once at stream start
	pcmBuf        []int16
	initialized   bool
}

// New constructs an Opus Codec bound to info, matching capability.CodecFactory.
func New(info *media.StreamInfo) (capability.Codec, error) {
	if info == nil {
		return nil, mediaerr.NewValidationError("opus.New", 0, errMissingStreamInfo{})
	}
	hd, err := parseOpusHead(firstCodecPrivatePacket(info))
	if err != nil {
		return nil, mediaerr.NewFormatError("opus.New", 0, mediaerr.RecoveryNone, err)
	}
	return &Codec{
		log:      logger.WithStream(logger.Logger(), "opus", info.StreamID),
		channels: hd.Channels,
		preSkip:  hd.PreSkip,
	}, nil
}

func firstCodecPrivatePacket(info *media.StreamInfo) []byte {
	packets, err := media.UnpackCodecPrivate(info.CodecPrivate)
	if err != nil || len(packets) == 0 {
		return nil
	}
	return packets[0]
}

// Initialize constructs the underlying gopus decoder and arms the pre-skip
// counter; steady-state Decode calls never allocate a new decoder.
func (c *Codec) Initialize() (bool, error) {
	if c.initialized {
		return true, nil
	}
	dec, err := gopus.NewDecoder(sampleRate, c.channels)
	if err != nil {
		return false, mediaerr.NewFormatError("opus.Initialize", 0, mediaerr.RecoveryNone, err)
	}
	c.decoder = dec
	c.skipRemaining = c.preSkip
	c.pcmBuf = make([]int16, maxFrameSamples*c.channels)
	c.initialized = true
	return true, nil
}

// Decode decodes one Opus packet. A decode failure is recoverable: the
// caller gets a 20ms silence frame (Opus's most common frame duration) so
// downstream timing survives a single corrupt packet. The returned
// Samples slice aliases c.pcmBuf and is valid only until the next Decode
// call. Once Initialize has run, the scratch buffer is never regrown; each
// call still allocates the returned *AudioFrame.
func (c *Codec) Decode(chunk *media.MediaChunk) (*media.AudioFrame, error) {
	if !c.initialized {
		if _, err := c.Initialize(); err != nil {
			return nil, err
		}
	}
	if chunk == nil || chunk.Size() == 0 {
		return media.Silence(sampleRate, c.channels, 0), nil
	}

	samples, err := c.decodePacket(chunk.Data())
	if err != nil {
		return media.Silence(sampleRate, c.channels, sampleRate/50), mediaerr.NewFormatError("opus.Decode", chunk.FileOffset, mediaerr.RecoverySkipSection, err)
	}

	frameCount := len(samples) / c.channels
	start := 0
	if c.skipRemaining > 0 {
		skip := c.skipRemaining
		if skip > frameCount {
			skip = frameCount
		}
		start = skip
		c.skipRemaining -= skip
	}

	return &media.AudioFrame{
		Samples:          samples[start*c.channels:],
		SampleRate:       sampleRate,
		Channels:         c.channels,
		SampleFrameCount: frameCount - start,
	}, nil
}

func (c *Codec) decodePacket(data []byte) ([]int16, error) {
	var pcm []float64
	var err error
	if c.channels == 2 {
		pcm, err = c.decoder.DecodeStereo(data, maxFrameSamples)
	} else {
		pcm, err = c.decoder.Decode(data, maxFrameSamples)
	}
	if err != nil {
		return nil, err
	}
	out := c.pcmBuf[:len(pcm)]
	for i, s := range pcm {
		out[i] = floatToInt16(s)
	}
	return out, nil
}

func floatToInt16(s float64) int16 {
	scaled := s * 32768.0
	switch {
	case scaled > 32767.0:
		return 32767
	case scaled < -32768.0:
		return -32768
	default:
		return int16(scaled)
	}
}

// Flush reports no buffered samples: Opus frames decode independently with
// no cross-packet lookahead held inside this wrapper.
func (c *Codec) Flush() (*media.AudioFrame, error) {
	return media.Silence(sampleRate, c.channels, 0), nil
}

// Reset rebuilds the decoder so stale overlap-add state from before a
// demuxer seek can't bleed into the next packet. Pre-skip is not re-armed:
// it applies once at true stream start, not at every seek landing point.
func (c *Codec) Reset() {
	if !c.initialized {
		return
	}
	dec, err := gopus.NewDecoder(sampleRate, c.channels)
	if err != nil {
		c.log.Warn("opus reset failed to rebuild decoder", "error", err)
		return
	}
	c.decoder = dec
}

func (c *Codec) CanDecode(codecName string) bool { return codecName == "opus" }
func (c *Codec) GetCodecName() string            { return "opus" }

type errMissingStreamInfo struct{}

func (errMissingStreamInfo) Error() string { return "opus: missing StreamInfo" }
