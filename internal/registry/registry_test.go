package registry

import (
	"testing"

	"github.com/jmoon/audiocore/internal/bytesource"
	"github.com/jmoon/audiocore/internal/capability"
	"github.com/jmoon/audiocore/internal/media"
)

func TestRegisterFormatIsAdditive(t *testing.T) {
	r := New()
	r.RegisterFormat("flac", []Signature{{FormatID: "flac", Pattern: []byte("fLaC"), Offset: 0, Priority: 10}}, nil, ".flac")
	r.RegisterFormat("flac", []Signature{{FormatID: "flac", Pattern: []byte("fLaC"), Offset: 0, Priority: 10}}, nil)

	sigs := r.Signatures()
	if len(sigs) != 2 {
		t.Fatalf("expected 2 accumulated signatures, got %d", len(sigs))
	}
	if id, ok := r.FormatForExtension(".FLAC"); !ok || id != "flac" {
		t.Fatalf("expected case-insensitive extension lookup to resolve, got %q ok=%v", id, ok)
	}
}

func TestSignaturesByPriorityDescending(t *testing.T) {
	r := New()
	r.RegisterFormat("low", []Signature{{FormatID: "low", Pattern: []byte{0x01}, Priority: 1}}, nil)
	r.RegisterFormat("high", []Signature{{FormatID: "high", Pattern: []byte{0x02}, Priority: 100}}, nil)
	r.RegisterFormat("mid", []Signature{{FormatID: "mid", Pattern: []byte{0x03}, Priority: 50}}, nil)

	sigs := r.Signatures()
	if len(sigs) != 3 {
		t.Fatalf("expected 3 signatures, got %d", len(sigs))
	}
	for i := 1; i < len(sigs); i++ {
		if sigs[i-1].Priority < sigs[i].Priority {
			t.Fatalf("signatures not sorted descending by priority: %+v", sigs)
		}
	}
}

func TestDemuxerFactoryRegistrationAndOverwrite(t *testing.T) {
	r := New()
	calls := 0
	factory := func(bytesource.ByteSource, *media.StreamInfo) (capability.Demuxer, error) {
		calls++
		return nil, nil
	}
	r.RegisterFormat("wav", nil, factory, ".wav")

	got, ok := r.DemuxerFactory("wav")
	if !ok {
		t.Fatalf("expected factory to be registered")
	}
	if _, err := got(nil, nil); err != nil {
		t.Fatalf("factory call failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected factory invoked once, got %d", calls)
	}

	// Re-registering under the same format id overwrites the factory.
	replacement := func(bytesource.ByteSource, *media.StreamInfo) (capability.Demuxer, error) {
		return nil, nil
	}
	r.RegisterFormat("wav", nil, replacement)
	got2, _ := r.DemuxerFactory("wav")
	if _, err := got2(nil, nil); err != nil {
		t.Fatalf("replacement factory call failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected original factory not invoked after replacement, got %d calls", calls)
	}
}

func TestCodecFactoryLookupMiss(t *testing.T) {
	r := New()
	if _, ok := r.CodecFactory("nonexistent"); ok {
		t.Fatalf("expected lookup miss for unregistered codec")
	}
}
