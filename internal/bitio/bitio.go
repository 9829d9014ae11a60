// Package bitio provides the small byte- and bit-level reading primitives
// shared by every demuxer and the FLAC codec: fixed-width big/little-endian
// integers for container headers (Ogg, RIFF, ISO/MP4 box fields) and an
// MSB-first bit reader for FLAC's bit-packed frame headers and subframes.
//
// Adapted from the teacher's AMF primitive encode/decode style (fixed-width
// big-endian reads with marker validation, wrapped errors) generalized away
// from AMF0's single 8-byte-double shape into the width/endianness variety
// the container formats actually need.
package bitio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jmoon/audiocore/internal/mediaerr"
)

// ReadUint8 reads one byte.
func ReadUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, mediaerr.NewIOError("bitio.readUint8", 0, err)
	}
	return b[0], nil
}

// ReadUint16BE reads a big-endian uint16.
func ReadUint16BE(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, mediaerr.NewIOError("bitio.readUint16be", 0, err)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// ReadUint24BE reads a 3-byte big-endian unsigned integer, common in box
// sizes and FLAC STREAMINFO fields.
func ReadUint24BE(r io.Reader) (uint32, error) {
	var b [3]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, mediaerr.NewIOError("bitio.readUint24be", 0, err)
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

// ReadUint32BE reads a big-endian uint32.
func ReadUint32BE(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, mediaerr.NewIOError("bitio.readUint32be", 0, err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// ReadUint32LE reads a little-endian uint32 (Ogg page header fields).
func ReadUint32LE(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, mediaerr.NewIOError("bitio.readUint32le", 0, err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ReadUint64LE reads a little-endian uint64 (Ogg granule position).
func ReadUint64LE(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, mediaerr.NewIOError("bitio.readUint64le", 0, err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// ReadUint64BE reads a big-endian uint64 (ISO/MP4 64-bit box sizes).
func ReadUint64BE(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, mediaerr.NewIOError("bitio.readUint64be", 0, err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// ExpectMagic reads len(want) bytes and verifies they equal want exactly,
// returning a Format category error on mismatch.
func ExpectMagic(r io.Reader, want []byte, op string) error {
	got := make([]byte, len(want))
	if _, err := io.ReadFull(r, got); err != nil {
		return mediaerr.NewIOError(op, 0, err)
	}
	for i := range want {
		if got[i] != want[i] {
			return mediaerr.NewFormatError(op, 0, mediaerr.RecoveryNone, fmt.Errorf("bad magic: got %x want %x", got, want))
		}
	}
	return nil
}

// BitReader reads individual bits MSB-first from an underlying byte source,
// the shape FLAC frame/subframe headers and Rice-coded residuals need.
type BitReader struct {
	r        io.Reader
	cur      byte
	nbits    uint // bits remaining in cur, always < 8
	consumed int64
	scratch  [1]byte // reused read target so ReadBit does not allocate per byte
}

// NewBitReader wraps r for MSB-first bit reads.
func NewBitReader(r io.Reader) *BitReader {
	return &BitReader{r: r}
}

// BytesConsumed returns the number of whole bytes pulled from the
// underlying reader so far (including any partially-consumed final byte).
func (br *BitReader) BytesConsumed() int64 { return br.consumed }

// ReadBit reads a single bit (0 or 1).
func (br *BitReader) ReadBit() (uint32, error) {
	if br.nbits == 0 {
		if _, err := io.ReadFull(br.r, br.scratch[:]); err != nil {
			return 0, mediaerr.NewIOError("bitio.readbit", 0, err)
		}
		br.cur = br.scratch[0]
		br.nbits = 8
		br.consumed++
	}
	br.nbits--
	bit := (br.cur >> br.nbits) & 1
	return uint32(bit), nil
}

// ReadBits reads n (0..32) bits MSB-first and returns them right-aligned.
func (br *BitReader) ReadBits(n uint) (uint32, error) {
	var v uint32
	for i := uint(0); i < n; i++ {
		bit, err := br.ReadBit()
		if err != nil {
			return 0, err
		}
		v = (v << 1) | bit
	}
	return v, nil
}

// ReadUnary reads a unary-coded value: counts 0-bits until (and consuming)
// a terminating 1-bit. Used by FLAC's Rice coding.
func (br *BitReader) ReadUnary() (uint32, error) {
	var n uint32
	for {
		bit, err := br.ReadBit()
		if err != nil {
			return 0, err
		}
		if bit == 1 {
			return n, nil
		}
		n++
	}
}

// Align discards any partially-consumed bits so the next read starts on a
// byte boundary.
func (br *BitReader) Align() {
	br.nbits = 0
}
