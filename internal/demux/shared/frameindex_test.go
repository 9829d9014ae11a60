package shared

import "testing"

func TestFrameIndexAddAndNearest(t *testing.T) {
	fi := NewFrameIndex(44100, 8*1024*1024)

	if ok := fi.Add(FrameIndexEntry{SampleOffset: 0, FileOffset: 42, BlockSize: 4096, FrameSize: 1200}); !ok {
		t.Fatalf("expected first entry to be accepted")
	}
	if ok := fi.Add(FrameIndexEntry{SampleOffset: 44100, FileOffset: 5000, BlockSize: 4096, FrameSize: 1180}); !ok {
		t.Fatalf("expected spaced entry to be accepted")
	}
	if ok := fi.Add(FrameIndexEntry{SampleOffset: 100, FileOffset: 200, BlockSize: 4096, FrameSize: 1100}); ok {
		t.Fatalf("expected entry closer than MinSpacing to be rejected")
	}
	if fi.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", fi.Len())
	}

	entry, ok := fi.Nearest(50000)
	if !ok || entry.SampleOffset != 44100 {
		t.Fatalf("expected nearest entry at 44100, got %+v ok=%v", entry, ok)
	}

	entry, ok = fi.Nearest(10)
	if !ok || entry.SampleOffset != 0 {
		t.Fatalf("expected nearest entry at 0, got %+v ok=%v", entry, ok)
	}

	if _, ok := fi.Nearest(-1); ok {
		t.Fatalf("expected no entry before the first sample offset")
	}
}

func TestFrameIndexRespectsByteBudget(t *testing.T) {
	fi := NewFrameIndex(1, 2*entryFootprintBytes)

	if ok := fi.Add(FrameIndexEntry{SampleOffset: 0}); !ok {
		t.Fatalf("expected first entry accepted")
	}
	if ok := fi.Add(FrameIndexEntry{SampleOffset: 10}); !ok {
		t.Fatalf("expected second entry accepted")
	}
	if ok := fi.Add(FrameIndexEntry{SampleOffset: 20}); ok {
		t.Fatalf("expected third entry to be rejected by byte budget")
	}
}
