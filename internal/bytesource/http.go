package bytesource

import (
	"container/list"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jmoon/audiocore/internal/mediaerr"
)

// defaultReadAhead is how much extra payload a range-GET pulls beyond the
// caller's request, so sequential reads (the common playback pattern) don't
// each pay a fresh HTTP round trip.
const defaultReadAhead = 256 * 1024

// defaultTimeout bounds a single range-GET; on expiry the source reports an
// IO failure and leaves recovery (retry/skip) to the caller, per spec.md §5.
const defaultTimeout = 15 * time.Second

// clientPoolCap bounds the LRU pool of per-host HTTP clients/transports, so
// a playlist touching many hosts doesn't grow unbounded idle-connection
// state.
const clientPoolCap = 8

// HTTPSource is the range-GET backed ByteSource. A separate initialization
// lock guards the first HEAD request used to discover the resource's size;
// the main operation lock then serialises Read/Seek exactly like FileSource.
type HTTPSource struct {
	initMu sync.Mutex
	url    string
	client *http.Client

	mu           sync.Mutex
	size         int64
	sizeKnown    bool
	pos          int64
	eof          bool
	lastErr      error
	closed       bool
	readAhead    []byte // prefetched bytes starting at readAheadPos
	readAheadPos int64
}

// NewHTTPSource opens a range-GET source for url. It performs an initial
// HEAD request (under the init lock, not the operation lock) to discover
// the resource's length from Content-Length; range support is not probed.
func NewHTTPSource(url string) (*HTTPSource, error) {
	s := &HTTPSource{url: url, client: sharedClients.get(url)}

	s.initMu.Lock()
	defer s.initMu.Unlock()

	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return nil, mediaerr.NewIOError("bytesource.http.new_request", 0, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, mediaerr.NewIOError("bytesource.http.head", 0, err)
	}
	defer resp.Body.Close()

	if resp.ContentLength >= 0 {
		s.size = resp.ContentLength
		s.sizeKnown = true
	}
	return s, nil
}

func (s *HTTPSource) Read(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read_unlocked(buf)
}

func (s *HTTPSource) read_unlocked(buf []byte) (int, error) {
	if s.closed {
		return 0, errClosed
	}
	if len(buf) == 0 {
		return 0, nil
	}

	// Serve from the read-ahead buffer if it covers the current position.
	if s.readAhead != nil && s.pos >= s.readAheadPos && s.pos < s.readAheadPos+int64(len(s.readAhead)) {
		start := s.pos - s.readAheadPos
		n := copy(buf, s.readAhead[start:])
		s.pos += int64(n)
		if s.sizeKnown && s.pos >= s.size {
			s.eof = true
		}
		if n == len(buf) || s.eof {
			return n, nil
		}
		// Partially served from read-ahead; fetch the remainder fresh below.
		return s.fetchInto(buf, n)
	}

	return s.fetchInto(buf, 0)
}

// fetchInto issues a range-GET covering buf[filled:] plus defaultReadAhead
// extra bytes, filling buf and stashing the extra bytes for the next call.
func (s *HTTPSource) fetchInto(buf []byte, filled int) (int, error) {
	want := len(buf) - filled
	if want <= 0 {
		return filled, nil
	}

	start := s.pos
	fetchLen := int64(want + defaultReadAhead)

	ctx, cancel := contextWithTimeout(defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		s.lastErr = mediaerr.NewIOError("bytesource.http.new_request", start, err)
		return filled, s.lastErr
	}
	end := start + fetchLen - 1
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := s.client.Do(req)
	if err != nil {
		s.lastErr = mediaerr.NewIOError("bytesource.http.get", start, err)
		return filled, s.lastErr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		s.lastErr = mediaerr.NewIOError("bytesource.http.status", start, fmt.Errorf("unexpected status %d", resp.StatusCode))
		return filled, s.lastErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.lastErr = mediaerr.NewIOError("bytesource.http.read_body", start, err)
		return filled, s.lastErr
	}

	n := copy(buf[filled:], body)
	s.pos += int64(n)
	total := filled + n

	if len(body) > n {
		s.readAhead = body[n:]
		s.readAheadPos = start + int64(n)
	} else {
		s.readAhead = nil
	}

	if len(body) < want {
		s.eof = true
	}
	if s.sizeKnown && s.pos >= s.size {
		s.eof = true
	}

	return total, nil
}

func (s *HTTPSource) Seek(offset int64, whence Whence) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}
	var target int64
	switch whence {
	case SeekSet:
		target = offset
	case SeekCur:
		target = s.pos + offset
	case SeekEnd:
		if !s.sizeKnown {
			s.lastErr = mediaerr.NewIOError("bytesource.http.seek_end_unknown", s.pos, fmt.Errorf("size unknown"))
			return s.pos, s.lastErr
		}
		target = s.size + offset
	}
	if target < 0 {
		s.lastErr = mediaerr.NewIOError("bytesource.http.seek_negative", s.pos, fmt.Errorf("negative offset"))
		return s.pos, s.lastErr
	}
	s.pos = target
	s.eof = false
	s.readAhead = nil
	return s.pos, nil
}

func (s *HTTPSource) Tell() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}
	return s.pos, nil
}

func (s *HTTPSource) Size() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size, s.sizeKnown
}

func (s *HTTPSource) EOF() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eof
}

func (s *HTTPSource) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *HTTPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.readAhead = nil
	return nil
}

// clientLRU is a small LRU pool of *http.Client instances keyed by host, so
// a long-running player touching many distinct hosts over its lifetime
// doesn't accumulate unbounded idle-connection state per spec.md §4.1.
type clientLRU struct {
	mu    sync.Mutex
	cap   int
	order *list.List
	items map[string]*list.Element
}

type clientLRUEntry struct {
	host   string
	client *http.Client
}

var sharedClients = newClientLRU(clientPoolCap)

func newClientLRU(cap int) *clientLRU {
	return &clientLRU{cap: cap, order: list.New(), items: make(map[string]*list.Element)}
}

func (p *clientLRU) get(rawURL string) *http.Client {
	host := hostOf(rawURL)

	p.mu.Lock()
	defer p.mu.Unlock()

	if el, ok := p.items[host]; ok {
		p.order.MoveToFront(el)
		return el.Value.(*clientLRUEntry).client
	}

	client := &http.Client{
		Transport: &http.Transport{MaxIdleConnsPerHost: 2},
		Timeout:   defaultTimeout,
	}
	el := p.order.PushFront(&clientLRUEntry{host: host, client: client})
	p.items[host] = el

	if p.order.Len() > p.cap {
		oldest := p.order.Back()
		if oldest != nil {
			entry := oldest.Value.(*clientLRUEntry)
			delete(p.items, entry.host)
			p.order.Remove(oldest)
		}
	}
	return client
}
