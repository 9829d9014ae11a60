package raw

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoon/audiocore/internal/bytesource"
	"github.com/jmoon/audiocore/internal/media"
)

func openSource(t *testing.T, data []byte) bytesource.ByteSource {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.raw")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	src, err := bytesource.NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	return src
}

func pcmHint() *media.StreamInfo {
	return &media.StreamInfo{
		CodecType:     media.CodecTypeAudio,
		CodecName:     "pcm_s16le",
		SampleRate:    8000,
		Channels:      2,
		BitsPerSample: 16,
	}
}

func TestParseContainerAndReadChunk(t *testing.T) {
	data := make([]byte, 20000) // 5000 stereo 16-bit frames
	for i := range data {
		data[i] = byte(i)
	}
	src := openSource(t, data)
	defer src.Close()

	dm, err := New(src, pcmHint())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ok, err := dm.ParseContainer()
	if err != nil || !ok {
		t.Fatalf("ParseContainer: ok=%v err=%v", ok, err)
	}

	streams := dm.GetStreams()
	if len(streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(streams))
	}
	si := streams[0]
	if si.CodecName != "pcm_s16le" || si.SampleRate != 8000 || si.Channels != 2 {
		t.Fatalf("unexpected stream info: %+v", si)
	}
	wantFrames := int64(len(data)) / 4
	if si.DurationSamples != wantFrames {
		t.Fatalf("duration samples = %d, want %d", si.DurationSamples, wantFrames)
	}

	var total []byte
	for {
		c, err := dm.ReadChunk(0)
		if err != nil {
			t.Fatalf("ReadChunk: %v", err)
		}
		if c.Size() == 0 {
			break
		}
		total = append(total, c.Data()...)
	}
	if !bytes.Equal(total, data) {
		t.Fatalf("reassembled data mismatch: got %d bytes, want %d", len(total), len(data))
	}
}

func TestParseContainerRejectsMissingHint(t *testing.T) {
	src := openSource(t, []byte{0, 0, 0, 0})
	defer src.Close()

	dm, err := New(src, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := dm.ParseContainer(); err == nil {
		t.Fatalf("expected error with no StreamInfo hint")
	}
}

func TestParseContainerRejectsInvalidHint(t *testing.T) {
	src := openSource(t, []byte{0, 0, 0, 0})
	defer src.Close()

	hint := &media.StreamInfo{CodecType: media.CodecTypeAudio, SampleRate: 0, Channels: 2}
	dm, err := New(src, hint)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := dm.ParseContainer(); err == nil {
		t.Fatalf("expected error with invalid StreamInfo hint")
	}
}

func TestSeekToConvertsMsToByteOffset(t *testing.T) {
	data := make([]byte, 2000) // mono 16-bit, 1000 frames
	for i := range data {
		data[i] = byte(i % 7)
	}
	src := openSource(t, data)
	defer src.Close()

	hint := &media.StreamInfo{
		CodecType:     media.CodecTypeAudio,
		CodecName:     "pcm_s16le",
		SampleRate:    1000,
		Channels:      1,
		BitsPerSample: 16,
	}
	dm, err := New(src, hint)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := dm.ParseContainer(); err != nil {
		t.Fatalf("ParseContainer: %v", err)
	}

	ok, err := dm.SeekTo(500) // halfway: frame 500, byte offset 1000
	if err != nil || !ok {
		t.Fatalf("SeekTo: ok=%v err=%v", ok, err)
	}
	c, err := dm.ReadChunk(0)
	if err != nil {
		t.Fatalf("ReadChunk after seek: %v", err)
	}
	if c.TimestampSamples != 500 {
		t.Fatalf("expected timestamp 500, got %d", c.TimestampSamples)
	}
	if !bytes.Equal(c.Data()[:4], data[1000:1004]) {
		t.Fatalf("seeked data mismatch")
	}
}

func TestReadChunkHandlesFinalPartialFrame(t *testing.T) {
	// 7 bytes with blockAlign 4 (mono, 32-bit): 1 whole frame + 3 leftover bytes.
	data := []byte{1, 2, 3, 4, 5, 6, 7}
	src := openSource(t, data)
	defer src.Close()

	hint := &media.StreamInfo{
		CodecType:     media.CodecTypeAudio,
		CodecName:     "pcm_s32le",
		SampleRate:    8000,
		Channels:      1,
		BitsPerSample: 32,
	}
	dm, err := New(src, hint)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := dm.ParseContainer(); err != nil {
		t.Fatalf("ParseContainer: %v", err)
	}

	var total []byte
	for {
		c, err := dm.ReadChunk(0)
		if err != nil {
			t.Fatalf("ReadChunk: %v", err)
		}
		if c.Size() == 0 {
			break
		}
		total = append(total, c.Data()...)
	}
	if !bytes.Equal(total, data) {
		t.Fatalf("reassembled data mismatch: got %v, want %v", total, data)
	}
}
