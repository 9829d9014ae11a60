// Package vorbis implements the Vorbis Codec capability from spec.md
// §4.5.1, wrapping github.com/xlab/vorbis-go/vorbis's cgo bindings to
// libvorbis. Unlike the reference decoder this is grounded on, Ogg framing
// and packet reassembly already happened in internal/demux/ogg by the time
// a chunk reaches this codec, so there is no OggSyncState/OggStreamState
// here: Initialize feeds the three header packets captured in
// StreamInfo.CodecPrivate straight into libvorbis's header parser, and
// Decode feeds one audio packet at a time into the synthesis pipeline.
//
// Grounded on github.com/xlab/vorbis-go's decoder.go: InfoInit/CommentInit,
// SynthesisHeaderin for the three header packets, SynthesisInit/BlockInit
// for the decode state, and the Synthesis/SynthesisBlockin/SynthesisPcmout/
// SynthesisRead pull loop for audio packets.
package vorbis

import (
	"log/slog"

	"github.com/jmoon/audiocore/internal/capability"
	"github.com/jmoon/audiocore/internal/logger"
	"github.com/jmoon/audiocore/internal/media"
	"github.com/jmoon/audiocore/internal/mediaerr"
	"github.com/xlab/vorbis-go/vorbis"
)

// maxBlockSamples bounds a single Vorbis block's decoded sample count
// (libvorbis's largest allowed long block is 8192 samples), used to size
// the interleave scratch buffer once at Initialize.
const maxBlockSamples = 8192

// Codec decodes a Vorbis elementary stream via libvorbis.
type Codec struct {
	log *slog.Logger

	channels   int
	sampleRate int

	headerPackets [][]byte

	info     vorbis.Info
	comment  vorbis.Comment
	dsp      vorbis.DspState
	block    vorbis.Block
	pcmFrame [][][]float32

	pcmBuf      []int16
	initialized bool
}

// New constructs a Vorbis Codec bound to info, matching capability.CodecFactory.
func New(info *media.StreamInfo) (capability.Codec, error) {
	if info == nil || info.Channels < 1 {
		return nil, mediaerr.NewValidationError("vorbis.New", 0, errInvalidStreamInfo{})
	}
	packets, err := media.UnpackCodecPrivate(info.CodecPrivate)
	if err != nil || len(packets) < 3 {
		return nil, mediaerr.NewFormatError("vorbis.New", 0, mediaerr.RecoveryNone, errMissingHeaders{})
	}
	return &Codec{
		log:           logger.WithStream(logger.Logger(), "vorbis", info.StreamID),
		channels:      info.Channels,
		sampleRate:    info.SampleRate,
		headerPackets: packets[:3],
	}, nil
}

// Initialize feeds the identification/comment/setup header packets into
// libvorbis and stands up the DSP/block synthesis state.
func (c *Codec) Initialize() (bool, error) {
	if c.initialized {
		return true, nil
	}
	vorbis.InfoInit(&c.info)
	vorbis.CommentInit(&c.comment)

	for i, hp := range c.headerPackets {
		pkt := vorbis.OggPacket{
			Packet:   hp,
			Bytes:    int64(len(hp)),
			B_o_s:    boolToLong(i == 0),
			Packetno: int64(i),
		}
		if ret := vorbis.SynthesisHeaderin(&c.info, &c.comment, &pkt); ret < 0 {
			vorbis.InfoClear(&c.info)
			vorbis.CommentClear(&c.comment)
			return false, mediaerr.NewFormatError("vorbis.Initialize", 0, mediaerr.RecoveryNone, errBadHeaderPacket{index: i})
		}
	}

	if ret := vorbis.SynthesisInit(&c.dsp, &c.info); ret < 0 {
		vorbis.InfoClear(&c.info)
		vorbis.CommentClear(&c.comment)
		return false, mediaerr.NewFormatError("vorbis.Initialize", 0, mediaerr.RecoveryNone, errSynthesisInit{})
	}
	vorbis.BlockInit(&c.dsp, &c.block)

	c.pcmFrame = [][][]float32{make([][]float32, c.channels)}
	c.pcmBuf = make([]int16, maxBlockSamples*c.channels)
	c.initialized = true
	return true, nil
}

// Decode feeds one Vorbis audio packet through libvorbis and drains every
// block of PCM it produces into a single AudioFrame. The returned Samples
// slice aliases c.pcmBuf and is valid only until the next Decode call.
// Once Initialize has run no sample buffer is allocated here; each call
// still allocates the returned *AudioFrame.
func (c *Codec) Decode(chunk *media.MediaChunk) (*media.AudioFrame, error) {
	if !c.initialized {
		if _, err := c.Initialize(); err != nil {
			return nil, err
		}
	}
	if chunk == nil || chunk.Size() == 0 {
		return media.Silence(c.sampleRate, c.channels, 0), nil
	}

	data := chunk.Data()
	pkt := vorbis.OggPacket{Packet: data, Bytes: int64(len(data))}

	if vorbis.Synthesis(&c.block, &pkt) != 0 {
		return media.Silence(c.sampleRate, c.channels, 0), mediaerr.NewFormatError("vorbis.Decode", chunk.FileOffset, mediaerr.RecoverySkipSection, errSynthesisPacket{})
	}
	vorbis.SynthesisBlockin(&c.dsp, &c.block)

	frameCount := 0
	for {
		samples := vorbis.SynthesisPcmout(&c.dsp, c.pcmFrame)
		if samples <= 0 {
			break
		}
		n := int(samples)
		need := (frameCount + n) * c.channels
		if need > len(c.pcmBuf) {
			n = (len(c.pcmBuf)/c.channels - frameCount)
			if n <= 0 {
				vorbis.SynthesisRead(&c.dsp, int32(samples))
				continue
			}
		}
		for i := 0; i < n; i++ {
			for ch := 0; ch < c.channels; ch++ {
				c.pcmBuf[(frameCount+i)*c.channels+ch] = floatToInt16(c.pcmFrame[0][ch][i])
			}
		}
		frameCount += n
		vorbis.SynthesisRead(&c.dsp, int32(n))
	}

	return &media.AudioFrame{
		Samples:          c.pcmBuf[:frameCount*c.channels],
		SampleRate:       c.sampleRate,
		Channels:         c.channels,
		SampleFrameCount: frameCount,
	}, nil
}

func floatToInt16(s float32) int16 {
	scaled := s * 32768.0
	switch {
	case scaled > 32767:
		return 32767
	case scaled < -32768:
		return -32768
	default:
		return int16(scaled)
	}
}

func boolToLong(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Flush drains nothing further: libvorbis's SynthesisPcmout loop in Decode
// already empties every block the last packet produced.
func (c *Codec) Flush() (*media.AudioFrame, error) {
	return media.Silence(c.sampleRate, c.channels, 0), nil
}

// Reset clears the block/DSP decode state (MDCT overlap history) without
// tearing down the header-derived Info/Comment, which never changes after
// the first three packets.
func (c *Codec) Reset() {
	if !c.initialized {
		return
	}
	vorbis.BlockClear(&c.block)
	vorbis.DspClear(&c.dsp)
	if ret := vorbis.SynthesisInit(&c.dsp, &c.info); ret < 0 {
		c.log.Warn("vorbis reset failed to reinitialize synthesis state")
		return
	}
	vorbis.BlockInit(&c.dsp, &c.block)
}

func (c *Codec) CanDecode(codecName string) bool { return codecName == "vorbis" }
func (c *Codec) GetCodecName() string            { return "vorbis" }

type errInvalidStreamInfo struct{}

func (errInvalidStreamInfo) Error() string { return "vorbis: invalid StreamInfo" }

type errMissingHeaders struct{}

func (errMissingHeaders) Error() string { return "vorbis: fewer than 3 codec-private header packets" }

type errBadHeaderPacket struct{ index int }

func (e errBadHeaderPacket) Error() string { return "vorbis: libvorbis rejected header packet" }

type errSynthesisInit struct{}

func (errSynthesisInit) Error() string { return "vorbis: synthesis init failed" }

type errSynthesisPacket struct{}

func (errSynthesisPacket) Error() string { return "vorbis: libvorbis rejected audio packet" }
