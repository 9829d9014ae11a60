package riff

import (
	"encoding/binary"
	"io"

	"github.com/jmoon/audiocore/internal/bytesource"
	"github.com/jmoon/audiocore/internal/mediaerr"
)

var (
	riffMagic = []byte("RIFF")
	waveMagic = []byte("WAVE")
)

// container is what locateChunks extracts from the RIFF/WAVE header: the
// decoded "fmt " body and the byte range of the "data" chunk's payload.
type container struct {
	fmtBody       []byte
	dataOffset    int64
	dataSize      int64
	dataSizeKnown bool
}

// locateChunks validates "RIFF….WAVE" and walks top-level chunks until
// "data" is found, per spec.md §4.4.4. Chunks other than "fmt " and "data"
// (LIST/INFO tags, "fact", padding) are skipped by their declared size. A
// chunk body is word-aligned per RIFF's convention, so odd-sized chunks
// carry one pad byte the walk must also skip.
func locateChunks(src bytesource.ByteSource) (*container, error) {
	header := make([]byte, 12)
	if err := readFullAt(src, 0, header); err != nil {
		return nil, mediaerr.NewIOError("riff.header", 0, err)
	}
	if !bytesEqual(header[0:4], riffMagic) {
		return nil, mediaerr.NewFormatError("riff.header", 0, mediaerr.RecoveryNone, errBadRIFFMagic{})
	}
	if !bytesEqual(header[8:12], waveMagic) {
		return nil, mediaerr.NewFormatError("riff.header", 8, mediaerr.RecoveryNone, errNotWave{})
	}

	c := &container{}
	offset := int64(12)
	fileSize, sizeKnown := src.Size()

	for {
		chunkHeader := make([]byte, 8)
		if err := readFullAt(src, offset, chunkHeader); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, mediaerr.NewIOError("riff.chunk", offset, err)
		}
		id := chunkHeader[0:4]
		size := int64(binary.LittleEndian.Uint32(chunkHeader[4:8]))
		bodyOffset := offset + 8

		switch {
		case bytesEqual(id, []byte("fmt ")):
			body := make([]byte, size)
			if err := readFullAt(src, bodyOffset, body); err != nil {
				return nil, mediaerr.NewIOError("riff.fmt", bodyOffset, err)
			}
			c.fmtBody = body

		case bytesEqual(id, []byte("data")):
			c.dataOffset = bodyOffset
			c.dataSize = size
			c.dataSizeKnown = true
			if sizeKnown && bodyOffset+size > fileSize {
				// Some encoders write a placeholder/zero data size for
				// streamed output; fall back to "rest of file".
				c.dataSize = fileSize - bodyOffset
			}
			if c.fmtBody != nil {
				return c, nil
			}
			// data appeared before fmt: keep walking in case a later
			// chunk is actually fmt (non-conformant but seen in the wild),
			// but we already have what we need either way once fmt shows up.

		}

		offset = bodyOffset + size
		if size%2 != 0 {
			offset++ // word-align padding byte
		}
		if sizeKnown && offset >= fileSize {
			break
		}
	}

	if c.fmtBody == nil {
		return nil, mediaerr.NewFormatError("riff", 0, mediaerr.RecoveryNone, errNoFmtChunk{})
	}
	if !c.dataSizeKnown {
		return nil, mediaerr.NewFormatError("riff", 0, mediaerr.RecoveryNone, errNoDataChunk{})
	}
	return c, nil
}

func readFullAt(src bytesource.ByteSource, offset int64, buf []byte) error {
	if _, err := src.Seek(offset, bytesource.SeekSet); err != nil {
		return err
	}
	total := 0
	for total < len(buf) {
		n, err := src.Read(buf[total:])
		total += n
		if err != nil {
			return err
		}
		if n == 0 {
			if src.EOF() {
				return io.ErrUnexpectedEOF
			}
			return io.ErrUnexpectedEOF
		}
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type errBadRIFFMagic struct{}

func (errBadRIFFMagic) Error() string { return "riff: missing RIFF magic" }

type errNotWave struct{}

func (errNotWave) Error() string { return "riff: form type is not WAVE" }

type errNoFmtChunk struct{}

func (errNoFmtChunk) Error() string { return "riff: no fmt chunk found" }

type errNoDataChunk struct{}

func (errNoDataChunk) Error() string { return "riff: no data chunk found" }
