package flac

import (
	"bytes"

	"github.com/jmoon/audiocore/internal/bitio"
	"github.com/jmoon/audiocore/internal/mediaerr"
)

// Channel assignment codes 8-10 carry inter-channel decorrelation; the codec
// layer needs to know which so it can undo Left-Side/Right-Side/Mid-Side
// before handing out independent channels.
const (
	chanAssignLeftSide  = 0x8
	chanAssignRightSide = 0x9
	chanAssignMidSide   = 0xA
)

// frameHeader is the parsed, validated content of one FLAC frame header
// (RFC 9639 §9.1.1), plus the raw byte length so the caller can locate the
// subframes and the trailing CRC-16 that follow it.
type frameHeader struct {
	BlockSize         uint16
	SampleRate        uint32
	ChannelAssignment byte
	Channels          uint8
	BitsPerSample     uint8
	Number            uint64
	HeaderLen         int // bytes consumed by the header, including its own CRC-8 byte
}

// parseFrameHeader parses a frame header out of buf, which must contain at
// least a full header (callers over-read from the estimated frame size).
// The 15-bit sync must already be known to be present at buf[0]; this
// function re-validates it so a false-positive sync match inside the
// resync scan is still caught.
func parseFrameHeader(buf []byte, si *streamInfo, crcMode CRCMode) (*frameHeader, bool, error) {
	br := bitio.NewBitReader(bytes.NewReader(buf))

	sync, err := br.ReadBits(14)
	if err != nil {
		return nil, false, mediaerr.NewIOError("flac.frame.sync", 0, err)
	}
	if sync != 0x3FFE {
		return nil, false, mediaerr.NewFormatError("flac.frame.sync", 0, mediaerr.RecoverySkipSection, errBadSync{})
	}
	reserved1, err := br.ReadBits(1)
	if err != nil {
		return nil, false, mediaerr.NewIOError("flac.frame.reserved1", 0, err)
	}
	if reserved1 != 0 {
		return nil, false, mediaerr.NewFormatError("flac.frame.reserved1", 0, mediaerr.RecoverySkipSection, errReservedBitSet{})
	}

	if _, err := br.ReadBits(1); err != nil { // blocking strategy: unused by the demuxer
		return nil, false, mediaerr.NewIOError("flac.frame.blockingstrategy", 0, err)
	}

	blockSizeCode, err := br.ReadBits(4)
	if err != nil {
		return nil, false, mediaerr.NewIOError("flac.frame.blocksizecode", 0, err)
	}
	sampleRateCode, err := br.ReadBits(4)
	if err != nil {
		return nil, false, mediaerr.NewIOError("flac.frame.sampleratecode", 0, err)
	}

	channelAssignment, err := br.ReadBits(4)
	if err != nil {
		return nil, false, mediaerr.NewIOError("flac.frame.channels", 0, err)
	}
	if channelAssignment > 0xA {
		return nil, false, mediaerr.NewFormatError("flac.frame.channels", 0, mediaerr.RecoverySkipSection, errReservedChannels{})
	}

	bitsPerSampleCode, err := br.ReadBits(3)
	if err != nil {
		return nil, false, mediaerr.NewIOError("flac.frame.bps", 0, err)
	}
	bitsPerSample, err := decodeBitsPerSample(byte(bitsPerSampleCode), si)
	if err != nil {
		return nil, false, err
	}

	reserved2, err := br.ReadBits(1)
	if err != nil {
		return nil, false, mediaerr.NewIOError("flac.frame.reserved2", 0, err)
	}
	if reserved2 != 0 {
		return nil, false, mediaerr.NewFormatError("flac.frame.reserved2", 0, mediaerr.RecoverySkipSection, errReservedBitSet{})
	}

	number, err := decodeUTF8Number(br)
	if err != nil {
		return nil, false, mediaerr.NewFormatError("flac.frame.number", 0, mediaerr.RecoverySkipSection, err)
	}

	blockSize, err := decodeBlockSize(br, byte(blockSizeCode))
	if err != nil {
		return nil, false, err
	}
	sampleRate, err := decodeSampleRate(br, byte(sampleRateCode), si)
	if err != nil {
		return nil, false, err
	}

	headerBytes := int(br.BytesConsumed())
	if headerBytes >= len(buf) {
		return nil, false, mediaerr.NewIOError("flac.frame.header", 0, errShortReadEOF{})
	}

	// CRC-8 covers sync through the last header byte, excluding its own
	// trailing checksum byte. Disabled skips the check entirely; Strict
	// rejects a mismatch as a structural failure needing resync; Enabled
	// verifies and reports the mismatch to the caller without failing, so
	// repeated mismatches can still be counted toward an auto-disable.
	crc8Mismatch := false
	if crcMode != CRCDisabled {
		gotCRC := crc8Update(0, buf[:headerBytes])
		wantCRC := buf[headerBytes]
		if gotCRC != wantCRC {
			crc8Mismatch = true
			if crcMode == CRCStrict {
				return nil, false, mediaerr.NewFormatError("flac.frame.crc8", 0, mediaerr.RecoverySkipSection,
					errCRC8Mismatch{want: wantCRC, got: gotCRC})
			}
		}
	}

	channels := channelCountFor(byte(channelAssignment))
	return &frameHeader{
		BlockSize:         blockSize,
		SampleRate:        sampleRate,
		ChannelAssignment: byte(channelAssignment),
		Channels:          channels,
		BitsPerSample:     bitsPerSample,
		Number:            number,
		HeaderLen:         headerBytes + 1, // + the CRC-8 byte itself
	}, crc8Mismatch, nil
}

func channelCountFor(assignment byte) uint8 {
	switch assignment {
	case chanAssignLeftSide, chanAssignRightSide, chanAssignMidSide:
		return 2
	default:
		return assignment + 1
	}
}

func decodeBitsPerSample(code byte, si *streamInfo) (uint8, error) {
	switch code {
	case 0x0:
		return si.BitsPerSample, nil
	case 0x1:
		return 8, nil
	case 0x2:
		return 12, nil
	case 0x4:
		return 16, nil
	case 0x5:
		return 20, nil
	case 0x6:
		return 24, nil
	default:
		return 0, mediaerr.NewFormatError("flac.frame.bps", 0, mediaerr.RecoverySkipSection, errReservedBitDepth{})
	}
}

func decodeBlockSize(br *bitio.BitReader, code byte) (uint16, error) {
	switch {
	case code == 0x0:
		return 0, mediaerr.NewFormatError("flac.frame.blocksize", 0, mediaerr.RecoverySkipSection, errReservedBlockSize{})
	case code == 0x1:
		return 192, nil
	case code >= 0x2 && code <= 0x5:
		return 576 * (1 << (code - 2)), nil
	case code == 0x6:
		v, err := br.ReadBits(8)
		if err != nil {
			return 0, mediaerr.NewIOError("flac.frame.blocksize8", 0, err)
		}
		return uint16(v) + 1, nil
	case code == 0x7:
		v, err := br.ReadBits(16)
		if err != nil {
			return 0, mediaerr.NewIOError("flac.frame.blocksize16", 0, err)
		}
		return uint16(v) + 1, nil
	default:
		return 256 * (1 << (code - 8)), nil
	}
}

var fixedSampleRates = map[byte]uint32{
	0x1: 88200, 0x2: 176400, 0x3: 192000, 0x4: 8000, 0x5: 16000,
	0x6: 22050, 0x7: 24000, 0x8: 32000, 0x9: 44100, 0xA: 48000, 0xB: 96000,
}

func decodeSampleRate(br *bitio.BitReader, code byte, si *streamInfo) (uint32, error) {
	if code == 0x0 {
		return si.SampleRate, nil
	}
	if rate, ok := fixedSampleRates[code]; ok {
		return rate, nil
	}
	switch code {
	case 0xC:
		v, err := br.ReadBits(8)
		if err != nil {
			return 0, mediaerr.NewIOError("flac.frame.samplerate8", 0, err)
		}
		return uint32(v) * 1000, nil
	case 0xD:
		v, err := br.ReadBits(16)
		if err != nil {
			return 0, mediaerr.NewIOError("flac.frame.samplerate16", 0, err)
		}
		return uint32(v), nil
	case 0xE:
		v, err := br.ReadBits(16)
		if err != nil {
			return 0, mediaerr.NewIOError("flac.frame.samplerate16da", 0, err)
		}
		return uint32(v) * 10, nil
	default:
		return 0, mediaerr.NewFormatError("flac.frame.samplerate", 0, mediaerr.RecoverySkipSection, errInvalidSampleRateCode{})
	}
}

// decodeUTF8Number decodes FLAC's extended-UTF-8 frame/sample number
// (RFC 9639 §9.1.1): the first byte's leading 1-bits count the total byte
// length (up to 7 bytes, 36 usable bits); each continuation byte supplies
// 6 more bits and must match the 10xxxxxx pattern.
func decodeUTF8Number(br *bitio.BitReader) (uint64, error) {
	first, err := br.ReadBits(8)
	if err != nil {
		return 0, mediaerr.NewIOError("flac.utf8.first", 0, err)
	}
	b0 := byte(first)
	if b0&0x80 == 0 {
		return uint64(b0), nil
	}

	n := 0
	mask := byte(0x80)
	for b0&mask != 0 {
		n++
		mask >>= 1
	}
	if n < 2 || n > 7 {
		return 0, errInvalidUTF8Length{n: n}
	}

	value := uint64(b0 & (0xFF >> uint(n+1)))
	for i := 1; i < n; i++ {
		cont, err := br.ReadBits(8)
		if err != nil {
			return 0, mediaerr.NewIOError("flac.utf8.continuation", 0, err)
		}
		cb := byte(cont)
		if cb&0xC0 != 0x80 {
			return 0, errInvalidUTF8Continuation{}
		}
		value = (value << 6) | uint64(cb&0x3F)
	}
	return value, nil
}

type errBadSync struct{}

func (errBadSync) Error() string { return "flac frame sync code mismatch" }

type errReservedBitSet struct{}

func (errReservedBitSet) Error() string { return "flac frame header reserved bit is non-zero" }

type errReservedChannels struct{}

func (errReservedChannels) Error() string { return "flac frame header uses a reserved channel assignment" }

type errReservedBitDepth struct{}

func (errReservedBitDepth) Error() string { return "flac frame header uses a reserved bit depth code" }

type errReservedBlockSize struct{}

func (errReservedBlockSize) Error() string { return "flac frame header uses reserved block size code 0000" }

type errInvalidSampleRateCode struct{}

func (errInvalidSampleRateCode) Error() string { return "flac frame header uses invalid sample rate code 1111" }

type errInvalidUTF8Length struct{ n int }

func (e errInvalidUTF8Length) Error() string { return "flac frame/sample number has an invalid utf-8 lead byte" }

type errInvalidUTF8Continuation struct{}

func (errInvalidUTF8Continuation) Error() string {
	return "flac frame/sample number continuation byte missing 10xxxxxx prefix"
}

type errCRC8Mismatch struct{ want, got byte }

func (e errCRC8Mismatch) Error() string { return "flac frame header CRC-8 mismatch" }

type errShortReadEOF struct{}

func (errShortReadEOF) Error() string { return "unexpected EOF parsing flac frame header" }
