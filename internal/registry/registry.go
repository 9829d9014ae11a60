// Package registry implements the process-wide registration tables from
// spec.md §4.3 and §4.7: magic signatures, extension hints, demuxer
// factories and codec factories. The type carries no global state: the
// player and the tests each build their own registry with New, and the
// package-level Default instance is left empty.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/jmoon/audiocore/internal/capability"
)

// Signature is one {format_id, byte_pattern, offset, priority} entry from
// spec.md §4.3. Higher Priority is evaluated first; equal-priority
// signatures of one format keep registration order, and the order between
// different formats of equal priority is not defined.
type Signature struct {
	FormatID string
	Pattern  []byte
	Offset   int
	Priority int
}

// Registry holds the four lookup tables FormatProbe and stream construction
// are built on. Following the teacher's registry pattern: a single RWMutex
// guards every table, registration (the only mutator) takes the write lock,
// and every read path takes the read lock and returns a copy so callers
// never observe a table mid-mutation.
type Registry struct {
	mu sync.RWMutex

	signatures     map[string][]Signature
	extensions     map[string]string
	demuxerFactory map[string]capability.DemuxerFactory
	codecFactory   map[string]capability.CodecFactory
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		signatures:     make(map[string][]Signature),
		extensions:     make(map[string]string),
		demuxerFactory: make(map[string]capability.DemuxerFactory),
		codecFactory:   make(map[string]capability.CodecFactory),
	}
}

// RegisterFormat adds a format's magic signatures, its demuxer factory, and
// the extensions that hint at it. Safe to call more than once for the same
// format_id; later signatures/extensions are appended, not replaced, and a
// re-registered factory overwrites the prior one (lets a caller swap in a
// test double).
func (r *Registry) RegisterFormat(formatID string, sigs []Signature, factory capability.DemuxerFactory, extensions ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.signatures[formatID] = append(r.signatures[formatID], sigs...)
	if factory != nil {
		r.demuxerFactory[formatID] = factory
	}
	for _, ext := range extensions {
		r.extensions[strings.ToLower(ext)] = formatID
	}
}

// RegisterCodec adds a codec name's factory.
func (r *Registry) RegisterCodec(codecName string, factory capability.CodecFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecFactory[codecName] = factory
}

// Signatures returns every registered signature across all formats, sorted
// highest-priority first, for FormatProbe's scan. Returns a fresh slice so
// the caller can range over it without holding any lock.
func (r *Registry) Signatures() []Signature {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []Signature
	for _, sigs := range r.signatures {
		all = append(all, sigs...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Priority > all[j].Priority })
	return all
}

// FormatForExtension looks up the secondary extension/MIME hint table.
// ext should include the leading dot (".flac"); lookup is case-insensitive.
func (r *Registry) FormatForExtension(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.extensions[strings.ToLower(ext)]
	return id, ok
}

// DemuxerFactory returns the constructor registered for format_id, if any.
func (r *Registry) DemuxerFactory(formatID string) (capability.DemuxerFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.demuxerFactory[formatID]
	return f, ok
}

// CodecFactory returns the constructor registered for codecName, if any.
func (r *Registry) CodecFactory(codecName string) (capability.CodecFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.codecFactory[codecName]
	return f, ok
}

// Default is a process-wide registry instance. Nothing in this module
// registers into it: internal/builtins fills whichever registry it is
// given, and cmd/player passes one built with New.
var Default = New()
