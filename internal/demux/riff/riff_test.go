package riff

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoon/audiocore/internal/bytesource"
	"github.com/jmoon/audiocore/internal/media"
)

func chunk(id string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(id)
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(body)))
	buf.Write(size[:])
	buf.Write(body)
	if len(body)%2 != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func encodeFmtBody(audioFormat, numChannels uint16, sampleRate uint32, bitsPerSample uint16) []byte {
	blockAlign := numChannels * (bitsPerSample / 8)
	bytesPerSec := sampleRate * uint32(blockAlign)
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint16(buf[0:2], audioFormat)
	binary.LittleEndian.PutUint16(buf[2:4], numChannels)
	binary.LittleEndian.PutUint32(buf[4:8], sampleRate)
	binary.LittleEndian.PutUint32(buf[8:12], bytesPerSec)
	binary.LittleEndian.PutUint16(buf[12:14], blockAlign)
	binary.LittleEndian.PutUint16(buf[14:16], bitsPerSample)
	return buf
}

func writeWaveFile(t *testing.T, fmtBody, data []byte) string {
	t.Helper()
	var riffBody bytes.Buffer
	riffBody.WriteString("WAVE")
	riffBody.Write(chunk("fmt ", fmtBody))
	riffBody.Write(chunk("data", data))

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(riffBody.Len()))
	buf.Write(size[:])
	buf.Write(riffBody.Bytes())

	path := filepath.Join(t.TempDir(), "test.wav")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func openSource(t *testing.T, path string) bytesource.ByteSource {
	t.Helper()
	src, err := bytesource.NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	return src
}

func TestParseContainerAndReadChunk(t *testing.T) {
	fmtBody := encodeFmtBody(formatPCM, 2, 44100, 16)
	data := make([]byte, 20000) // 5000 stereo 16-bit frames
	for i := range data {
		data[i] = byte(i)
	}
	path := writeWaveFile(t, fmtBody, data)
	src := openSource(t, path)
	defer src.Close()

	dm, err := New(src, nil)
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
	if si.CodecName != "pcm_s16le" || si.SampleRate != 44100 || si.Channels != 2 {
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

func TestParseContainerRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("NOTRIFFdata"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	src := openSource(t, path)
	defer src.Close()

	dm, err := New(src, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := dm.ParseContainer(); err == nil {
		t.Fatalf("expected error for non-RIFF file")
	}
}

func TestSeekToConvertsMsToByteOffset(t *testing.T) {
	fmtBody := encodeFmtBody(formatPCM, 1, 1000, 16) // 1000Hz mono 16-bit -> blockAlign 2
	data := make([]byte, 2000)                       // 1000 frames, 1 second
	for i := range data {
		data[i] = byte(i % 7)
	}
	path := writeWaveFile(t, fmtBody, data)
	src := openSource(t, path)
	defer src.Close()

	dm, err := New(src, nil)
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

func TestReadChunkReproducesTenThousandSampleScenario(t *testing.T) {
	// 16-bit 44100Hz stereo WAV of 10,000 samples: duration_ms = 226
	// (rounded), total PCM bytes = 10,000*2*2 = 40,000, and the last chunk
	// must report is_keyframe = true with timestamp_samples + chunk_samples
	// == 10,000.
	fmtBody := encodeFmtBody(formatPCM, 2, 44100, 16)
	const sampleCount = 10000
	const bytesPerFrame = 4 // 2 channels * 2 bytes
	data := make([]byte, sampleCount*bytesPerFrame)
	for i := range data {
		data[i] = byte(i)
	}
	path := writeWaveFile(t, fmtBody, data)
	src := openSource(t, path)
	defer src.Close()

	dm, err := New(src, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := dm.ParseContainer(); err != nil {
		t.Fatalf("ParseContainer: %v", err)
	}

	if got := dm.GetDuration(); got != 226 {
		t.Fatalf("GetDuration() = %d, want 226", got)
	}

	var totalBytes int
	var last *media.MediaChunk
	for {
		c, err := dm.ReadChunk(0)
		if err != nil {
			t.Fatalf("ReadChunk: %v", err)
		}
		if c.Size() == 0 {
			break
		}
		totalBytes += c.Size()
		last = c
	}
	if totalBytes != sampleCount*bytesPerFrame {
		t.Fatalf("total PCM bytes = %d, want %d", totalBytes, sampleCount*bytesPerFrame)
	}
	if last == nil {
		t.Fatalf("expected at least one chunk")
	}
	if !last.IsKeyframe {
		t.Fatalf("expected last chunk to be a keyframe")
	}
	chunkSamples := int64(last.Size()) / bytesPerFrame
	if last.TimestampSamples+chunkSamples != sampleCount {
		t.Fatalf("timestamp_samples %d + chunk_samples %d != %d", last.TimestampSamples, chunkSamples, sampleCount)
	}
}

func TestParseContainerRejectsUnsupportedFormat(t *testing.T) {
	fmtBody := encodeFmtBody(0x0002 /* ADPCM, unsupported */, 1, 8000, 4)
	path := writeWaveFile(t, fmtBody, []byte{0, 0, 0, 0})
	src := openSource(t, path)
	defer src.Close()

	dm, err := New(src, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := dm.ParseContainer(); err == nil {
		t.Fatalf("expected error for unsupported WAVE_FORMAT tag")
	}
}
