package probe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoon/audiocore/internal/bytesource"
	"github.com/jmoon/audiocore/internal/registry"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func testRegistry() *registry.Registry {
	r := registry.New()
	r.RegisterFormat("flac", []registry.Signature{{FormatID: "flac", Pattern: []byte("fLaC"), Offset: 0, Priority: 10}}, nil, ".flac")
	r.RegisterFormat("ogg", []registry.Signature{{FormatID: "ogg", Pattern: []byte("OggS"), Offset: 0, Priority: 10}}, nil, ".ogg")
	r.RegisterFormat("riff", []registry.Signature{
		{FormatID: "riff", Pattern: []byte("RIFF"), Offset: 0, Priority: 5},
		{FormatID: "riff", Pattern: []byte("WAVE"), Offset: 8, Priority: 5},
	}, nil, ".wav")
	return r
}

func TestDetectByMagicSignature(t *testing.T) {
	path := writeTemp(t, "track.flac", append([]byte("fLaC"), make([]byte, 100)...))
	src, err := bytesource.NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	id, ok, err := Detect(src, testRegistry(), "")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !ok || id != "flac" {
		t.Fatalf("expected flac match, got id=%q ok=%v", id, ok)
	}

	// Position must be restored after probing.
	pos, err := src.Tell()
	if err != nil || pos != 0 {
		t.Fatalf("expected position restored to 0, got %d err=%v", pos, err)
	}
}

func TestDetectMultiOffsetSignature(t *testing.T) {
	data := make([]byte, 12)
	copy(data, "RIFF")
	copy(data[8:], "WAVE")

	path := writeTemp(t, "clip.wav", data)
	src, err := bytesource.NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	id, ok, err := Detect(src, testRegistry(), "")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !ok || id != "riff" {
		t.Fatalf("expected riff match, got id=%q ok=%v", id, ok)
	}
}

func TestDetectFallsBackToExtension(t *testing.T) {
	path := writeTemp(t, "mystery.flac", []byte{0x00, 0x01, 0x02, 0x03})
	src, err := bytesource.NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	id, ok, err := Detect(src, testRegistry(), path)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !ok || id != "flac" {
		t.Fatalf("expected extension fallback to flac, got id=%q ok=%v", id, ok)
	}
}

func TestDetectUnknownReturnsEmptyID(t *testing.T) {
	path := writeTemp(t, "data.bin", []byte{0xDE, 0xAD, 0xBE, 0xEF})
	src, err := bytesource.NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	id, ok, err := Detect(src, testRegistry(), "data.bin")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if ok || id != "" {
		t.Fatalf("expected no match, got id=%q ok=%v", id, ok)
	}
}

func TestDetectDoesNotReadPastMidStreamPosition(t *testing.T) {
	path := writeTemp(t, "track.flac", append([]byte("fLaC"), make([]byte, 100)...))
	src, err := bytesource.NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	if _, err := src.Seek(50, bytesource.SeekSet); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	id, ok, err := Detect(src, testRegistry(), "")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !ok || id != "flac" {
		t.Fatalf("expected flac match regardless of current position, got id=%q ok=%v", id, ok)
	}
	pos, err := src.Tell()
	if err != nil || pos != 50 {
		t.Fatalf("expected position restored to 50, got %d err=%v", pos, err)
	}
}
