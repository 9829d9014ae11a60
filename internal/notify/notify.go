// Package notify implements the deferred, off-lock event dispatcher from
// spec.md §5 and §9: playback-pipeline state changes (format detected, EOF,
// error, seek completed) must reach registered collaborators (UI, MPRIS,
// scrobbler stand-ins) without ever being invoked while a pipeline
// component's internal lock is held, and a slow sink must not stall the
// thread that raised the event.
//
// Grounded on internal/rtmp/server/hooks's Hook/HookManager pair: multiple
// independently-registered handlers per event type, dispatched through a
// bounded worker pool so the caller's TriggerEvent/Publish call never
// blocks on a slow handler, generalized here from RTMP connection/stream
// lifecycle events to the four playback events spec.md §9 names.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoon/audiocore/internal/logger"
)

// EventType enumerates the playback pipeline state changes external
// collaborators can subscribe to.
type EventType string

const (
	EventFormatDetected EventType = "format_detected"
	EventEOF            EventType = "eof"
	EventError          EventType = "error"
	EventSeekCompleted  EventType = "seek_completed"
)

// Event is one state-change notification. Data carries event-specific
// fields (format id, error, target sample) as a loosely-typed map, mirroring
// the teacher's own Event.Data shape since each event kind has different
// payload needs and this module has no single shared envelope to fit them
// all into.
type Event struct {
	Type      EventType
	Timestamp time.Time
	StreamID  int
	Data      map[string]any
}

// Sink receives dispatched events. Implementations must return promptly;
// Hub.Publish does not wait for a slow Sink beyond its worker-pool slot.
type Sink interface {
	Handle(ctx context.Context, event Event) error
	Name() string
}

// Hub is the process-wide (or per-player, for tests) event dispatcher.
type Hub struct {
	mu    sync.RWMutex
	sinks map[EventType][]Sink
	pool  *workerPool
	log   *slog.Logger
}

// NewHub returns a Hub dispatching through a worker pool of the given
// concurrency (capacity of in-flight sink calls across all event types).
func NewHub(concurrency int) *Hub {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Hub{
		sinks: make(map[EventType][]Sink),
		pool:  newWorkerPool(concurrency),
		log:   logger.Logger().With("component", "notify"),
	}
}

// Subscribe registers sink to receive every event of the given type.
func (h *Hub) Subscribe(eventType EventType, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks[eventType] = append(h.sinks[eventType], sink)
}

// Unsubscribe removes a previously-registered sink by name, reporting
// whether it was found.
func (h *Hub) Unsubscribe(eventType EventType, name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.sinks[eventType]
	for i, s := range list {
		if s.Name() == name {
			h.sinks[eventType] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Publish dispatches event to every subscribed sink asynchronously. The
// caller must not be holding any pipeline lock when it calls Publish, but
// Publish itself never blocks waiting on a sink to finish.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	sinks := append([]Sink(nil), h.sinks[event.Type]...)
	h.mu.RUnlock()

	if len(sinks) == 0 {
		return
	}
	for _, s := range sinks {
		h.pool.execute(s, event, h.log)
	}
}

// Close waits for in-flight sink calls to finish and shuts the pool down.
func (h *Hub) Close() {
	h.pool.close()
}

// workerPool bounds how many sink calls can run concurrently, the same
// channel-of-tokens shape the teacher's executionPool uses.
type workerPool struct {
	tokens chan struct{}
}

func newWorkerPool(size int) *workerPool {
	return &workerPool{tokens: make(chan struct{}, size)}
}

func (p *workerPool) execute(s Sink, event Event, log *slog.Logger) {
	go func() {
		p.tokens <- struct{}{}
		defer func() { <-p.tokens }()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.Handle(ctx, event); err != nil {
			log.Warn("notify sink failed", "sink", s.Name(), "event", event.Type, "error", err)
		}
	}()
}

func (p *workerPool) close() {
	for i := 0; i < cap(p.tokens); i++ {
		p.tokens <- struct{}{}
	}
}
