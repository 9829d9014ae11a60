package flac

import (
	"io"

	"github.com/jmoon/audiocore/internal/bitio"
	"github.com/jmoon/audiocore/internal/mediaerr"
)

// magic is the 4-byte signature every FLAC stream starts with.
var magic = []byte("fLaC")

const (
	blockTypeStreamInfo = 0
	blockTypePadding    = 1
	blockTypeSeekTable  = 3
	blockTypeVorbisTag  = 4
	blockTypeInvalid    = 127
)

// streamInfo is the mandatory first metadata block (RFC 9639 §8.2): the
// source of truth for every stream parameter the demuxer exposes.
type streamInfo struct {
	MinBlockSize  uint16
	MaxBlockSize  uint16
	MinFrameSize  uint32
	MaxFrameSize  uint32
	SampleRate    uint32
	Channels      uint8
	BitsPerSample uint8
	TotalSamples  uint64
	MD5           [16]byte
}

// readMetadataBlocks reads fLaC's magic and every METADATA_BLOCK up to and
// including the one flagged "last", returning the mandatory STREAMINFO.
// The reader is left at the first audio frame; no offset is returned.
func readMetadataBlocks(r io.Reader) (*streamInfo, error) {
	if err := bitio.ExpectMagic(r, magic, "flac.magic"); err != nil {
		return nil, err
	}

	var si *streamInfo
	offset := int64(len(magic))
	for {
		header, err := bitio.ReadUint32BE(r)
		if err != nil {
			return nil, mediaerr.NewIOError("flac.metadata.header", offset, err)
		}
		offset += 4
		isLast := header&0x80000000 != 0
		blockType := byte((header >> 24) & 0x7F)
		length := int(header & 0x00FFFFFF)

		if blockType == blockTypeInvalid {
			return nil, mediaerr.NewFormatError("flac.metadata.header", offset, mediaerr.RecoveryNone,
				errInvalidBlockType{})
		}

		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, mediaerr.NewIOError("flac.metadata.body", offset, err)
		}
		offset += int64(length)

		if blockType == blockTypeStreamInfo {
			parsed, err := parseStreamInfo(body)
			if err != nil {
				return nil, err
			}
			si = parsed
		}

		if isLast {
			break
		}
	}

	if si == nil {
		return nil, mediaerr.NewFormatError("flac.metadata", offset, mediaerr.RecoveryNone, errNoStreamInfo{})
	}
	return si, nil
}

// parseStreamInfo decodes the 34-byte STREAMINFO body (RFC 9639 §8.2):
// 16-bit min/max block size, 24-bit min/max frame size, a packed 64-bit
// field of sample_rate(20)/channels(3)/bits_per_sample(5)/total_samples(36),
// and a 128-bit MD5 of the unencoded audio.
func parseStreamInfo(body []byte) (*streamInfo, error) {
	const wantLen = 34
	if len(body) < wantLen {
		return nil, mediaerr.NewFormatError("flac.streaminfo", 0, mediaerr.RecoveryNone, errShortStreamInfo{})
	}

	si := &streamInfo{
		MinBlockSize: beUint16(body[0:2]),
		MaxBlockSize: beUint16(body[2:4]),
		MinFrameSize: beUint24(body[4:7]),
		MaxFrameSize: beUint24(body[7:10]),
	}

	packed := beUint64(body[10:18])
	si.SampleRate = uint32(packed >> 44)
	si.Channels = uint8((packed>>41)&0x7) + 1
	si.BitsPerSample = uint8((packed>>36)&0x1F) + 1
	si.TotalSamples = packed & 0xFFFFFFFFF

	copy(si.MD5[:], body[18:34])

	if si.SampleRate == 0 {
		return nil, mediaerr.NewValidationError("flac.streaminfo", 0, errZeroSampleRate{})
	}
	return si, nil
}

func beUint16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func beUint24(b []byte) uint32 { return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]) }
func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

type errInvalidBlockType struct{}

func (errInvalidBlockType) Error() string { return "flac metadata block type 127 is invalid" }

type errNoStreamInfo struct{}

func (errNoStreamInfo) Error() string { return "flac stream has no STREAMINFO block" }

type errShortStreamInfo struct{}

func (errShortStreamInfo) Error() string { return "flac STREAMINFO block shorter than 34 bytes" }

type errZeroSampleRate struct{}

func (errZeroSampleRate) Error() string { return "flac STREAMINFO declares a zero sample rate" }
