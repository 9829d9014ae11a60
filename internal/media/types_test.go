package media

import (
	"testing"

	"github.com/jmoon/audiocore/internal/chunkpool"
)

func TestStreamInfoValidity(t *testing.T) {
	valid := &StreamInfo{CodecType: CodecTypeAudio, SampleRate: 44100, Channels: 2}
	if !valid.IsValid() {
		t.Fatalf("expected valid stream info to pass IsValid")
	}

	noRate := &StreamInfo{CodecType: CodecTypeAudio, SampleRate: 0, Channels: 2}
	if noRate.IsValid() {
		t.Fatalf("expected zero sample rate to fail IsValid")
	}

	tooManyChannels := &StreamInfo{CodecType: CodecTypeAudio, SampleRate: 44100, Channels: 9}
	if tooManyChannels.IsValid() {
		t.Fatalf("expected 9 channels to fail IsValid")
	}
}

func TestStreamInfoTagAccessors(t *testing.T) {
	si := &StreamInfo{Metadata: []TagPair{
		{Key: "artist", Value: "Test Artist"},
		{Key: "title", Value: "Test Title"},
	}}
	if si.Artist() != "Test Artist" {
		t.Fatalf("unexpected artist: %s", si.Artist())
	}
	if si.Album() != "" {
		t.Fatalf("expected empty album, got %q", si.Album())
	}
}

func TestChunkLifecycle(t *testing.T) {
	pool := chunkpool.New()
	buf, err := pool.Acquire(128)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	copy(buf.Bytes(), []byte("hello"))

	chunk := NewChunk(buf, 5, 0, 1000, 4096, true)
	if string(chunk.Data()) != "hello" {
		t.Fatalf("unexpected chunk data: %q", chunk.Data())
	}
	if chunk.Size() != 5 {
		t.Fatalf("expected size 5, got %d", chunk.Size())
	}

	chunk.Release()
	if got := pool.Stats().LiveBytes; got != 0 {
		t.Fatalf("expected pool live bytes 0 after release, got %d", got)
	}
}

func TestEmptyChunkSignalsEOF(t *testing.T) {
	chunk := EmptyChunk(2, 10000, 99999)
	if chunk.Size() != 0 {
		t.Fatalf("expected size 0 for EOF chunk")
	}
	if !chunk.EndOfStream {
		t.Fatalf("expected EndOfStream true")
	}
}

func TestSilenceFrame(t *testing.T) {
	frame := Silence(44100, 2, 1024)
	if frame.SampleFrameCount != 1024 {
		t.Fatalf("expected frame count 1024, got %d", frame.SampleFrameCount)
	}
	if len(frame.Samples) != 2048 {
		t.Fatalf("expected 2048 samples, got %d", len(frame.Samples))
	}
	if frame.ByteLen() != 4096 {
		t.Fatalf("expected byte length 4096, got %d", frame.ByteLen())
	}
	for _, s := range frame.Samples {
		if s != 0 {
			t.Fatalf("expected silent frame to be all zero")
		}
	}
}
