package isomp4

import (
	"io"

	"github.com/jmoon/audiocore/internal/bytesource"
)

// readSeeker adapts a bytesource.ByteSource to the io.ReadSeeker go-mp4's
// box walker requires, translating between this module's Whence vocabulary
// and io.Seeker's. go-mp4 reads the box tree (and, once ReadChunk starts
// pulling samples, the mdat payload) entirely through this adapter, so no
// second copy of the file is held in memory.
type readSeeker struct {
	src bytesource.ByteSource
}

func (r readSeeker) Read(p []byte) (int, error) { return r.src.Read(p) }

func (r readSeeker) Seek(offset int64, whence int) (int64, error) {
	var w bytesource.Whence
	switch whence {
	case io.SeekStart:
		w = bytesource.SeekSet
	case io.SeekCurrent:
		w = bytesource.SeekCur
	case io.SeekEnd:
		w = bytesource.SeekEnd
	default:
		w = bytesource.SeekSet
	}
	return r.src.Seek(offset, w)
}
