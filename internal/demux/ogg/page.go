package ogg

import (
	"bytes"

	"github.com/jmoon/audiocore/internal/bitio"
	"github.com/jmoon/audiocore/internal/bytesource"
	"github.com/jmoon/audiocore/internal/mediaerr"
)

// capturePattern is the 4-byte sync word that starts every Ogg page.
var capturePattern = []byte("OggS")

const (
	headerFlagContinued = 0x01
	headerFlagBOS       = 0x02
	headerFlagEOS       = 0x04
)

// pageHeader is the fixed 27-byte Ogg page header (spec.md §4.4.1), plus the
// derived segment table.
type pageHeader struct {
	Version        byte
	HeaderType     byte
	GranulePos     int64
	SerialNumber   uint32
	PageSequence   uint32
	Checksum       uint32
	PageSegments   byte
	SegmentTable   []byte
	fileOffset     int64
	crcFieldOffset int // offset of the checksum field within the raw page bytes
}

func (h *pageHeader) isContinued() bool { return h.HeaderType&headerFlagContinued != 0 }
func (h *pageHeader) isBOS() bool       { return h.HeaderType&headerFlagBOS != 0 }
func (h *pageHeader) isEOS() bool       { return h.HeaderType&headerFlagEOS != 0 }

// payloadLength returns the total payload byte length implied by the
// segment table (the sum of all lacing values).
func (h *pageHeader) payloadLength() int {
	n := 0
	for _, b := range h.SegmentTable {
		n += int(b)
	}
	return n
}

// readPage reads one full Ogg page starting at the current ByteSource
// position, which must already be positioned at a capture pattern (callers
// use findNextCapture to resync otherwise). It validates the CRC-32 and
// returns the header and the payload; the raw page bytes are used only for
// the CRC check and are not returned.
func readPage(src bytesource.ByteSource) (*pageHeader, []byte, error) {
	offset, err := src.Tell()
	if err != nil {
		return nil, nil, err
	}

	var buf bytes.Buffer
	r := &teeReader{src: src, buf: &buf}

	if err := bitio.ExpectMagic(r, capturePattern, "ogg.page.capture"); err != nil {
		return nil, nil, err
	}
	version, err := bitio.ReadUint8(r)
	if err != nil {
		return nil, nil, err
	}
	headerType, err := bitio.ReadUint8(r)
	if err != nil {
		return nil, nil, err
	}
	granuleRaw, err := bitio.ReadUint64LE(r)
	if err != nil {
		return nil, nil, err
	}
	serial, err := bitio.ReadUint32LE(r)
	if err != nil {
		return nil, nil, err
	}
	seq, err := bitio.ReadUint32LE(r)
	if err != nil {
		return nil, nil, err
	}
	crcFieldOffset := buf.Len() // checksum field starts right here
	checksum, err := bitio.ReadUint32LE(r)
	if err != nil {
		return nil, nil, err
	}
	segCount, err := bitio.ReadUint8(r)
	if err != nil {
		return nil, nil, err
	}
	segTable := make([]byte, segCount)
	if err := readExact(r, segTable); err != nil {
		return nil, nil, err
	}

	h := &pageHeader{
		Version:        version,
		HeaderType:     headerType,
		GranulePos:     int64(granuleRaw),
		SerialNumber:   serial,
		PageSequence:   seq,
		Checksum:       checksum,
		PageSegments:   segCount,
		SegmentTable:   segTable,
		fileOffset:     offset,
		crcFieldOffset: crcFieldOffset,
	}

	payload := make([]byte, h.payloadLength())
	if err := readExact(r, payload); err != nil {
		return nil, nil, err
	}

	raw := buf.Bytes()
	if got := pageChecksum(raw, crcFieldOffset); got != checksum {
		return nil, nil, mediaerr.NewFormatError("ogg.page.crc", offset, mediaerr.RecoverySkipSection,
			errCRCMismatch{want: checksum, got: got})
	}

	return h, payload, nil
}

type errCRCMismatch struct{ want, got uint32 }

func (e errCRCMismatch) Error() string {
	return "ogg page CRC mismatch"
}

// teeReader adapts a bytesource.ByteSource to io.Reader while mirroring
// every byte read into buf, so readPage can run the CRC check over exactly
// the bytes it consumed without a second pass over the source.
type teeReader struct {
	src bytesource.ByteSource
	buf *bytes.Buffer
}

func (t *teeReader) Read(p []byte) (int, error) {
	n, err := t.src.Read(p)
	if n > 0 {
		t.buf.Write(p[:n])
	}
	if err == nil && t.src.EOF() && n < len(p) {
		return n, errShortReadEOF{}
	}
	return n, err
}

type errShortReadEOF struct{}

func (errShortReadEOF) Error() string { return "unexpected EOF reading ogg page" }

func readExact(r *teeReader, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return mediaerr.NewIOError("ogg.page.read", 0, err)
		}
		if n == 0 {
			return mediaerr.NewIOError("ogg.page.read", 0, errShortReadEOF{})
		}
	}
	return nil
}

// findNextCapture scans forward from the current position for the next
// "OggS" capture pattern, within a bounded window, for resync after a CRC
// or structural failure. Returns false if none is found within maxScan
// bytes.
func findNextCapture(src bytesource.ByteSource, maxScan int) (bool, error) {
	window := make([]byte, 0, len(capturePattern))
	scanned := 0
	one := make([]byte, 1)
	for scanned < maxScan {
		n, err := src.Read(one)
		if n == 0 || src.EOF() {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		scanned++
		window = append(window, one[0])
		if len(window) > len(capturePattern) {
			window = window[1:]
		}
		if len(window) == len(capturePattern) && bytes.Equal(window, capturePattern) {
			if _, err := src.Seek(-int64(len(capturePattern)), bytesource.SeekCur); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}
