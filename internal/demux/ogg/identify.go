package ogg

import (
	"encoding/binary"

	"github.com/jmoon/audiocore/internal/mediaerr"
)

// identifyPacket inspects a logical stream's first packet (the BOS page's
// identification header) and fills in the codec fields needed to build a
// StreamInfo. Recognizes the two Ogg-carried codecs this module wires a
// Codec implementation for (spec.md §4.5.2/§4.5.3); an unrecognized magic
// leaves codecName empty so the stream is still enumerated (per spec.md
// §4.4's "report non-audio/unknown streams without fabricating a type")
// but never paired with a decoder.
func (s *logicalStream) identifyPacket(pkt []byte) error {
	switch {
	case len(pkt) >= 7 && pkt[0] == 0x01 && string(pkt[1:7]) == "vorbis":
		return s.identifyVorbis(pkt)
	case len(pkt) >= 8 && string(pkt[0:8]) == "OpusHead":
		return s.identifyOpus(pkt)
	default:
		s.codecName = ""
		s.headerPacketsLeft = 0
		return nil
	}
}

// identifyVorbis parses the Vorbis identification header (Vorbis I spec
// §4.2.2): 1-byte packet type, "vorbis", 32-bit version, 8-bit channels,
// 32-bit sample rate, three 32-bit bitrate fields, blocksize byte, framing
// bit. Three header packets (identification, comments, setup) precede audio.
func (s *logicalStream) identifyVorbis(pkt []byte) error {
	const minLen = 7 + 4 + 1 + 4 + 4 + 4 + 4 + 1
	if len(pkt) < minLen {
		return mediaerr.NewFormatError("ogg.identify.vorbis", 0, mediaerr.RecoveryNone,
			errShortReadEOF{})
	}
	s.codecName = "vorbis"
	s.channels = int(pkt[11])
	s.sampleRate = int(binary.LittleEndian.Uint32(pkt[12:16]))
	s.headerPacketsLeft = 2 // comment + setup still to come
	s.codecPrivate = append(s.codecPrivate, cloneBytes(pkt))
	return nil
}

// identifyOpus parses the Opus identification header (RFC 7845 §5.1):
// "OpusHead", version, channel count, pre-skip, input sample rate, output
// gain, channel mapping family. One header packet (OpusTags) follows before
// audio.
func (s *logicalStream) identifyOpus(pkt []byte) error {
	const minLen = 8 + 1 + 1 + 2 + 4 + 2 + 1
	if len(pkt) < minLen {
		return mediaerr.NewFormatError("ogg.identify.opus", 0, mediaerr.RecoveryNone,
			errShortReadEOF{})
	}
	s.codecName = "opus"
	s.channels = int(pkt[9])
	s.preSkip = int(binary.LittleEndian.Uint16(pkt[10:12]))
	s.sampleRate = 48000 // Opus always decodes at 48kHz regardless of the input_sample_rate hint
	s.headerPacketsLeft = 1 // OpusTags still to come
	s.codecPrivate = append(s.codecPrivate, cloneBytes(pkt))
	return nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
