package media

import (
	"encoding/binary"
	"fmt"
)

// PackCodecPrivate concatenates a sequence of codec-private packets (e.g.
// Vorbis's identification/comment/setup headers) into the single opaque
// blob StreamInfo.CodecPrivate carries, each prefixed with its own 32-bit
// little-endian length so UnpackCodecPrivate can split them back out
// without the packet boundaries needing any format-specific parsing.
func PackCodecPrivate(packets [][]byte) []byte {
	size := 0
	for _, p := range packets {
		size += 4 + len(p)
	}
	out := make([]byte, 0, size)
	var lenBuf [4]byte
	for _, p := range packets {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(p)))
		out = append(out, lenBuf[:]...)
		out = append(out, p...)
	}
	return out
}

// UnpackCodecPrivate reverses PackCodecPrivate.
func UnpackCodecPrivate(blob []byte) ([][]byte, error) {
	var packets [][]byte
	for len(blob) > 0 {
		if len(blob) < 4 {
			return nil, fmt.Errorf("media: truncated codec-private length prefix")
		}
		n := binary.LittleEndian.Uint32(blob[:4])
		blob = blob[4:]
		if uint64(len(blob)) < uint64(n) {
			return nil, fmt.Errorf("media: truncated codec-private packet")
		}
		packets = append(packets, blob[:n])
		blob = blob[n:]
	}
	return packets, nil
}
