package riff

import (
	"encoding/binary"
	"io"

	"github.com/jmoon/audiocore/internal/mediaerr"
)

// WAVE_FORMAT tags this demuxer recognizes (the same set the example
// corpus's MatusOllah-resona wav decoder switches on in ensureAudioDecoder,
// minus the compressed formats this player's codec family doesn't cover).
const (
	formatPCM        = 0x0001
	formatIEEEFloat  = 0x0003
	formatALaw       = 0x0006
	formatULaw       = 0x0007
	formatExtensible = 0xFFFE
)

// waveFmt is the parsed "fmt " chunk body (the canonical 16-byte PCMWAVEFORMAT
// plus the WAVEFORMATEX/WAVEFORMATEXTENSIBLE extension fields when present).
type waveFmt struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	BytesPerSec   uint32
	BlockAlign    uint16
	BitsPerSample uint16

	// subFormat carries WAVE_FORMAT_EXTENSIBLE's real format tag (the first
	// two bytes of its 16-byte SubFormat GUID), since AudioFormat is just
	// 0xFFFE in that case.
	subFormat uint16
}

// parseFmtChunk decodes a "fmt " chunk body per spec.md §4.4.4, following
// the exact field order and WAVEX extension handling the MatusOllah-resona
// wav decoder in the example corpus parses.
func parseFmtChunk(body []byte) (*waveFmt, error) {
	if len(body) < 16 {
		return nil, mediaerr.NewFormatError("riff.fmt", 0, mediaerr.RecoveryNone, errShortFmtChunk{})
	}
	r := newByteReader(body)
	f := &waveFmt{}
	var err error
	if f.AudioFormat, err = r.u16(); err != nil {
		return nil, err
	}
	if f.NumChannels, err = r.u16(); err != nil {
		return nil, err
	}
	if f.SampleRate, err = r.u32(); err != nil {
		return nil, err
	}
	if f.BytesPerSec, err = r.u32(); err != nil {
		return nil, err
	}
	if f.BlockAlign, err = r.u16(); err != nil {
		return nil, err
	}
	if f.BitsPerSample, err = r.u16(); err != nil {
		return nil, err
	}

	if f.AudioFormat == formatExtensible && len(body) >= 40 {
		// cbSize(2) + validBitsPerSample(2) + channelMask(4), then a
		// 16-byte SubFormat GUID whose first 2 bytes are the real tag.
		if _, err := r.skip(8); err != nil {
			return nil, err
		}
		if f.subFormat, err = r.u16(); err != nil {
			return nil, err
		}
	}

	if f.NumChannels == 0 || f.SampleRate == 0 {
		return nil, mediaerr.NewValidationError("riff.fmt", 0, errInvalidFmtChunk{})
	}
	return f, nil
}

// effectiveFormat returns the real WAVE_FORMAT tag, resolving the
// WAVEFORMATEXTENSIBLE indirection.
func (f *waveFmt) effectiveFormat() uint16 {
	if f.AudioFormat == formatExtensible {
		return f.subFormat
	}
	return f.AudioFormat
}

// codecNameFor maps a resolved WAVE_FORMAT tag and bit depth to this
// player's codec naming convention (spec.md §4.5's codec family: PCM and
// G.711 mu-law/a-law).
func codecNameFor(format uint16, bitsPerSample uint16) (string, bool) {
	switch format {
	case formatPCM:
		return pcmCodecName(bitsPerSample), true
	case formatIEEEFloat:
		return "pcm_f32le", true
	case formatALaw:
		return "pcm_alaw", true
	case formatULaw:
		return "pcm_mulaw", true
	default:
		return "", false
	}
}

func pcmCodecName(bitsPerSample uint16) string {
	switch bitsPerSample {
	case 8:
		return "pcm_u8"
	case 24:
		return "pcm_s24le"
	case 32:
		return "pcm_s32le"
	default:
		return "pcm_s16le"
	}
}

// byteReader is a tiny sequential little-endian cursor over an in-memory
// chunk body; RIFF fields are always LE regardless of host endianness.
type byteReader struct {
	buf []byte
	pos int
}

func newByteReader(buf []byte) *byteReader { return &byteReader{buf: buf} }

func (r *byteReader) u16() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *byteReader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) skip(n int) (int, error) {
	if r.pos+n > len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	r.pos += n
	return n, nil
}

type errShortFmtChunk struct{}

func (errShortFmtChunk) Error() string { return "riff: fmt chunk shorter than 16 bytes" }

type errInvalidFmtChunk struct{}

func (errInvalidFmtChunk) Error() string { return "riff: fmt chunk declares zero channels or sample rate" }
