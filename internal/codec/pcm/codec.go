// Package pcm implements the PCM/G.711 Codec capability from spec.md
// §4.5.5: linear PCM at every bit depth the RIFF demuxer can report
// (pcm_u8/pcm_s16le/pcm_s24le/pcm_s32le/pcm_f32le) needs only a byte-layout
// transcode to int16, and G.711 mu-law/a-law (pcm_mulaw/pcm_alaw) needs a
// per-sample table lookup. Both are pure arithmetic on already-framed
// samples with no bitstream to parse, so unlike the other codec families
// this one has no teacher or pack file to ground the algorithm on: the
// G.711 companding tables are the fixed constants ITU-T G.711 defines, not
// a choice a third-party library would make differently.
package pcm

import (
	"encoding/binary"
	"log/slog"
	"math"

	"github.com/jmoon/audiocore/internal/capability"
	"github.com/jmoon/audiocore/internal/logger"
	"github.com/jmoon/audiocore/internal/media"
	"github.com/jmoon/audiocore/internal/mediaerr"
)

type sampleFormat int

const (
	formatU8 sampleFormat = iota
	formatS16LE
	formatS24LE
	formatS32LE
	formatF32LE
	formatMuLaw
	formatALaw
)

func formatFor(codecName string) (sampleFormat, int, bool) {
	switch codecName {
	case "pcm_u8":
		return formatU8, 1, true
	case "pcm_s16le":
		return formatS16LE, 2, true
	case "pcm_s24le":
		return formatS24LE, 3, true
	case "pcm_s32le":
		return formatS32LE, 4, true
	case "pcm_f32le":
		return formatF32LE, 4, true
	case "pcm_mulaw":
		return formatMuLaw, 1, true
	case "pcm_alaw":
		return formatALaw, 1, true
	default:
		return 0, 0, false
	}
}

// Codec transcodes linear PCM or G.711-companded bytes into int16 samples.
type Codec struct {
	log *slog.Logger

	format     sampleFormat
	bytesPer   int
	channels   int
	sampleRate int

	out []int16
}

// New constructs a PCM Codec bound to info, matching capability.CodecFactory.
func New(info *media.StreamInfo) (capability.Codec, error) {
	if info == nil || info.Channels < 1 {
		return nil, mediaerr.NewValidationError("pcm.New", 0, errInvalidStreamInfo{})
	}
	format, bytesPer, ok := formatFor(info.CodecName)
	if !ok {
		return nil, mediaerr.NewFormatError("pcm.New", 0, mediaerr.RecoveryNone, errUnsupportedCodec{name: info.CodecName})
	}
	return &Codec{
		log:        logger.WithStream(logger.Logger(), info.CodecName, info.StreamID),
		format:     format,
		bytesPer:   bytesPer,
		channels:   info.Channels,
		sampleRate: info.SampleRate,
	}, nil
}

// maxChunkSamples bounds the scratch output buffer; chunkpool buffers
// handed to Decode are themselves bounded by the pool's max capacity, so
// this only needs to be larger than any realistic chunk's sample count.
const maxChunkSamples = 1 << 20

// Initialize pre-allocates the int16 scratch buffer Decode narrows into.
func (c *Codec) Initialize() (bool, error) {
	if c.out == nil {
		c.out = make([]int16, maxChunkSamples)
	}
	return true, nil
}

// Decode transcodes chunk's raw bytes directly to int16 samples; there is
// no frame structure to parse; every byte in the chunk is sample data. The
// returned Samples slice aliases c.out and is valid only until the next
// Decode call. Once Initialize has run, the only allocation per call is
// the returned *AudioFrame itself.
func (c *Codec) Decode(chunk *media.MediaChunk) (*media.AudioFrame, error) {
	if c.out == nil {
		if _, err := c.Initialize(); err != nil {
			return nil, err
		}
	}
	if chunk == nil || chunk.Size() == 0 {
		return media.Silence(c.sampleRate, c.channels, 0), nil
	}

	data := chunk.Data()
	n := len(data) / c.bytesPer
	if n == 0 {
		return media.Silence(c.sampleRate, c.channels, 0), nil
	}
	if n > len(c.out) {
		n = len(c.out)
	}
	out := c.out[:n]

	switch c.format {
	case formatU8:
		for i := 0; i < n; i++ {
			out[i] = (int16(data[i]) - 128) << 8
		}
	case formatS16LE:
		for i := 0; i < n; i++ {
			out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
	case formatS24LE:
		for i := 0; i < n; i++ {
			b := data[i*3:]
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if v&0x800000 != 0 {
				v |= ^int32(0xFFFFFF)
			}
			out[i] = int16(v >> 8)
		}
	case formatS32LE:
		for i := 0; i < n; i++ {
			out[i] = int16(int32(binary.LittleEndian.Uint32(data[i*4:])) >> 16)
		}
	case formatF32LE:
		for i := 0; i < n; i++ {
			f := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
			out[i] = floatToInt16(f)
		}
	case formatMuLaw:
		for i := 0; i < n; i++ {
			out[i] = muLawDecodeTable[data[i]]
		}
	case formatALaw:
		for i := 0; i < n; i++ {
			out[i] = aLawDecodeTable[data[i]]
		}
	}

	frameCount := n / c.channels
	return &media.AudioFrame{
		Samples:          out[:frameCount*c.channels],
		SampleRate:       c.sampleRate,
		Channels:         c.channels,
		SampleFrameCount: frameCount,
	}, nil
}

func floatToInt16(f float32) int16 {
	scaled := f * 32768.0
	switch {
	case scaled > 32767:
		return 32767
	case scaled < -32768:
		return -32768
	default:
		return int16(scaled)
	}
}

// Flush reports no buffered samples: every byte handed to Decode is
// consumed immediately, with no lookahead state held between calls.
func (c *Codec) Flush() (*media.AudioFrame, error) {
	return media.Silence(c.sampleRate, c.channels, 0), nil
}

// Reset is a no-op: there is no cross-chunk decoder state to clear.
func (c *Codec) Reset() {}

func (c *Codec) CanDecode(codecName string) bool {
	_, _, ok := formatFor(codecName)
	return ok && codecName == c.GetCodecName()
}

func (c *Codec) GetCodecName() string {
	switch c.format {
	case formatU8:
		return "pcm_u8"
	case formatS16LE:
		return "pcm_s16le"
	case formatS24LE:
		return "pcm_s24le"
	case formatS32LE:
		return "pcm_s32le"
	case formatF32LE:
		return "pcm_f32le"
	case formatMuLaw:
		return "pcm_mulaw"
	case formatALaw:
		return "pcm_alaw"
	default:
		return ""
	}
}

type errInvalidStreamInfo struct{}

func (errInvalidStreamInfo) Error() string { return "pcm: invalid StreamInfo" }

type errUnsupportedCodec struct{ name string }

func (e errUnsupportedCodec) Error() string { return "pcm: unsupported codec name " + e.name }
