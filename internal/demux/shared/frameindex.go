package shared

import "sort"

// FrameIndexEntry is the exemplar index record from spec.md §3: enough to
// seek directly to a frame without rescanning from the start.
type FrameIndexEntry struct {
	SampleOffset int64
	FileOffset   int64
	BlockSize    int
	FrameSize    int
}

// entryFootprintBytes approximates one entry's resident cost for the
// FrameIndex byte budget (4 eight-byte-aligned fields).
const entryFootprintBytes = 32

// FrameIndex is a monotonically sample_offset-sorted index with a minimum
// sample spacing between consecutive entries and a maximum total byte
// budget, per spec.md §3/§4.4.2. Owned by its demuxer and accessed only
// under that demuxer's state lock — FrameIndex itself holds no lock.
type FrameIndex struct {
	MinSpacing int64
	MaxBytes   int64

	entries []FrameIndexEntry
}

// NewFrameIndex returns an empty index enforcing minSpacing samples between
// entries and capping total size at maxBytes.
func NewFrameIndex(minSpacing, maxBytes int64) *FrameIndex {
	return &FrameIndex{MinSpacing: minSpacing, MaxBytes: maxBytes}
}

// Add inserts an entry in sample_offset order, rejecting it if it falls
// within MinSpacing of an existing entry or would push the index past
// MaxBytes. Returns false when the entry was rejected (not an error —
// a dense index is an optimization, not a correctness requirement).
func (fi *FrameIndex) Add(e FrameIndexEntry) bool {
	if int64(len(fi.entries)+1)*entryFootprintBytes > fi.MaxBytes {
		return false
	}

	i := sort.Search(len(fi.entries), func(i int) bool { return fi.entries[i].SampleOffset >= e.SampleOffset })

	if i < len(fi.entries) && fi.entries[i].SampleOffset-e.SampleOffset < fi.MinSpacing {
		return false
	}
	if i > 0 && e.SampleOffset-fi.entries[i-1].SampleOffset < fi.MinSpacing {
		return false
	}

	fi.entries = append(fi.entries, FrameIndexEntry{})
	copy(fi.entries[i+1:], fi.entries[i:])
	fi.entries[i] = e
	return true
}

// Len returns the number of entries currently indexed.
func (fi *FrameIndex) Len() int { return len(fi.entries) }

// Nearest returns the indexed entry with the largest sample_offset that is
// <= targetSample, for use as a seek starting point (the "in-memory frame
// index" strategy from spec.md §4.4). ok is false if the index is empty or
// every entry is past targetSample.
func (fi *FrameIndex) Nearest(targetSample int64) (entry FrameIndexEntry, ok bool) {
	i := sort.Search(len(fi.entries), func(i int) bool { return fi.entries[i].SampleOffset > targetSample })
	if i == 0 {
		return FrameIndexEntry{}, false
	}
	return fi.entries[i-1], true
}
