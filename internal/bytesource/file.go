package bytesource

import (
	"io"
	"os"
	"sync"

	"github.com/jmoon/audiocore/internal/mediaerr"
)

// FileSource is the local-file ByteSource: a one-to-one wrapper around an
// *os.File. Every operation is serialised by a single instance lock so a
// concurrent Read and Close from distinct goroutines can never race on the
// underlying file descriptor; the loser either sees consistent data or a
// clean "closed" error, never a crash.
//
// Follows the public/private lock pattern used throughout this module: each
// exported method takes the lock and delegates to a *_unlocked twin.
type FileSource struct {
	mu      sync.Mutex
	f       *os.File
	size    int64
	pos     int64
	eof     bool
	lastErr error
	closed  bool
}

// NewFileSource opens path for reading.
func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, mediaerr.NewIOError("bytesource.file.open", 0, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, mediaerr.NewIOError("bytesource.file.stat", 0, err)
	}
	return &FileSource{f: f, size: info.Size()}, nil
}

func (s *FileSource) Read(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read_unlocked(buf)
}

func (s *FileSource) read_unlocked(buf []byte) (int, error) {
	if s.closed {
		return 0, errClosed
	}
	n, err := s.f.Read(buf)
	s.pos += int64(n)
	if err == io.EOF {
		s.eof = true
		return n, nil
	}
	if err != nil {
		s.lastErr = mediaerr.NewIOError("bytesource.file.read", s.pos, err)
		return n, s.lastErr
	}
	if n < len(buf) {
		// Short read without EOF/error: keep reading until full or EOF,
		// matching the "fewer than n only on EOF or error" contract.
		total := n
		for total < len(buf) {
			m, rerr := s.f.Read(buf[total:])
			total += m
			s.pos += int64(m)
			if rerr == io.EOF {
				s.eof = true
				break
			}
			if rerr != nil {
				s.lastErr = mediaerr.NewIOError("bytesource.file.read", s.pos, rerr)
				return total, s.lastErr
			}
			if m == 0 {
				break
			}
		}
		return total, nil
	}
	return n, nil
}

func (s *FileSource) Seek(offset int64, whence Whence) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seek_unlocked(offset, whence)
}

func (s *FileSource) seek_unlocked(offset int64, whence Whence) (int64, error) {
	if s.closed {
		return 0, errClosed
	}
	var osWhence int
	switch whence {
	case SeekSet:
		osWhence = io.SeekStart
	case SeekCur:
		osWhence = io.SeekCurrent
	case SeekEnd:
		osWhence = io.SeekEnd
	}
	n, err := s.f.Seek(offset, osWhence)
	if err != nil {
		s.lastErr = mediaerr.NewIOError("bytesource.file.seek", offset, err)
		return s.pos, s.lastErr
	}
	s.pos = n
	s.eof = false
	return n, nil
}

func (s *FileSource) Tell() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}
	return s.pos, nil
}

func (s *FileSource) Size() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size, true
}

func (s *FileSource) EOF() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eof
}

func (s *FileSource) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.f.Close(); err != nil {
		return mediaerr.NewIOError("bytesource.file.close", 0, err)
	}
	return nil
}
