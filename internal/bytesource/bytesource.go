// Package bytesource implements the ByteSource abstraction: a uniform,
// seekable, blocking byte-oriented reader used by every demuxer. Concrete
// variants live in file.go (local file) and http.go (range-GET over HTTP).
package bytesource

import "github.com/jmoon/audiocore/internal/mediaerr"

// Whence mirrors io.Seeker's whence values with names matching spec.md's
// SET/CUR/END vocabulary.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// ByteSource is the capability every container demuxer is built on. A
// ByteSource never panics on concurrent Read/Close from distinct
// goroutines — it either returns correct data or a reported error.
type ByteSource interface {
	// Read fills buf and returns the number of bytes read. It returns
	// fewer than len(buf) only on EOF or error; which one occurred is
	// reported via EOF()/LastError(), not inferred from the count alone.
	Read(buf []byte) (int, error)

	// Seek repositions the read cursor. whence is one of SeekSet/SeekCur/SeekEnd.
	Seek(offset int64, whence Whence) (int64, error)

	// Tell returns the current read offset.
	Tell() (int64, error)

	// Size returns the total byte length, or ok=false if unknown (e.g. a
	// live HTTP stream with no Content-Length).
	Size() (size int64, ok bool)

	// EOF reports whether the last Read hit end-of-stream.
	EOF() bool

	// LastError returns the most recent error observed by this source, or
	// nil. Errors are IO-category per spec.md §4.1.
	LastError() error

	// Close releases the underlying OS handle. Safe to call more than once.
	Close() error
}

// errClosed is returned by Read/Seek once Close has been called.
var errClosed = mediaerr.NewIOError("bytesource.closed", 0, errAlreadyClosed{})

type errAlreadyClosed struct{}

func (errAlreadyClosed) Error() string { return "byte source is closed" }
