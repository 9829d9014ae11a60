package flac

import (
	"testing"

	"github.com/jmoon/audiocore/internal/chunkpool"
	"github.com/jmoon/audiocore/internal/media"
	"github.com/jmoon/audiocore/internal/mediaerr"
)

func chunkFrom(t *testing.T, pool *chunkpool.Pool, data []byte) *media.MediaChunk {
	t.Helper()
	buf, err := pool.Acquire(len(data))
	if err != nil {
		t.Fatalf("pool.Acquire: %v", err)
	}
	copy(buf.Bytes(), data)
	return media.NewChunk(buf, len(data), 0, 0, 0, true)
}

func TestDecodeConstantSubframeMono(t *testing.T) {
	// Mono, 16-bit, blockSize 192 (code 0x1), CONSTANT subframe value 1000.
	frame := []byte{0xFF, 0xF8, 0x10, 0x08, 0x00, 0x00, 0x00, 0x03, 0xE8}

	info := &media.StreamInfo{CodecType: media.CodecTypeAudio, CodecName: "flac", SampleRate: 44100, Channels: 1, BitsPerSample: 16}
	c, err := New(info)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	pool := chunkpool.New()
	chunk := chunkFrom(t, pool, frame)
	defer chunk.Release()

	out, err := c.Decode(chunk)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.SampleFrameCount != 192 {
		t.Fatalf("expected 192 frames, got %d", out.SampleFrameCount)
	}
	if out.Channels != 1 {
		t.Fatalf("expected 1 channel, got %d", out.Channels)
	}
	for i, s := range out.Samples {
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000", i, s)
		}
	}
}

func TestDecodeFixedOrder1ZeroResidual(t *testing.T) {
	// Mono, 8-bit, blockSize 4 (raw 8-bit code), FIXED order-1 subframe,
	// warmup 10, all-zero residual (Rice parameter 0, single partition).
	frame := []byte{0xFF, 0xF8, 0x60, 0x02, 0x00, 0x03, 0x00, 0x12, 0x0A, 0x00, 0x38}

	info := &media.StreamInfo{CodecType: media.CodecTypeAudio, CodecName: "flac", SampleRate: 8000, Channels: 1, BitsPerSample: 8}
	c, err := New(info)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	pool := chunkpool.New()
	chunk := chunkFrom(t, pool, frame)
	defer chunk.Release()

	out, err := c.Decode(chunk)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.SampleFrameCount != 4 {
		t.Fatalf("expected 4 frames, got %d", out.SampleFrameCount)
	}
	for i, s := range out.Samples {
		shifted := 10 << 8 // 8-bit depth is left-shifted to fill int16
		if int(s) != shifted {
			t.Fatalf("sample %d = %d, want %d", i, s, shifted)
		}
	}
}

func TestDecodeEmptyChunkYieldsSilence(t *testing.T) {
	info := &media.StreamInfo{CodecType: media.CodecTypeAudio, CodecName: "flac", SampleRate: 44100, Channels: 2, BitsPerSample: 16}
	c, err := New(info)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := c.Decode(media.EmptyChunk(0, 0, 0))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.SampleFrameCount != 0 {
		t.Fatalf("expected 0 frames for EOS chunk, got %d", out.SampleFrameCount)
	}
}

func TestDecodeMalformedFrameReturnsRecoverableSilence(t *testing.T) {
	info := &media.StreamInfo{CodecType: media.CodecTypeAudio, CodecName: "flac", SampleRate: 44100, Channels: 2, BitsPerSample: 16}
	c, err := New(info)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pool := chunkpool.New()
	chunk := chunkFrom(t, pool, []byte{0x00, 0x00, 0x00})
	defer chunk.Release()

	out, err := c.Decode(chunk)
	if err == nil {
		t.Fatalf("expected a format error for truncated frame")
	}
	if out == nil {
		t.Fatalf("expected a silence frame alongside the error")
	}
	if rec := mediaerr.RecoveryFor(err); rec != mediaerr.RecoverySkipSection {
		t.Fatalf("expected skip_section recovery, got %v", rec)
	}
}

func TestCorrelateLeftSide(t *testing.T) {
	left := []int32{100, 200, 300}
	side := []int32{10, 20, 30} // encoder stored left-right
	channels := [][]int32{left, side}
	correlate(chanAssignLeftSide, channels, 3)
	want := []int32{90, 180, 270} // right = left - side
	for i, v := range channels[1] {
		if v != want[i] {
			t.Fatalf("right[%d] = %d, want %d", i, v, want[i])
		}
	}
}

func TestCorrelateMidSide(t *testing.T) {
	mid := []int32{100}
	side := []int32{4}
	channels := [][]int32{mid, side}
	correlate(chanAssignMidSide, channels, 1)
	// m = 100*2 | (4&1) = 200; left = (200+4)/2 = 102; right = (200-4)/2 = 98
	if channels[0][0] != 102 {
		t.Fatalf("left = %d, want 102", channels[0][0])
	}
	if channels[1][0] != 98 {
		t.Fatalf("right = %d, want 98", channels[1][0])
	}
}

func TestCorrelateRightSide(t *testing.T) {
	right := []int32{70, 140, 210}
	side := []int32{30, 60, 90} // encoder stored left-right
	channels := [][]int32{side, right}
	correlate(chanAssignRightSide, channels, 3)
	want := []int32{100, 200, 300} // left = right + side
	for i, v := range channels[0] {
		if v != want[i] {
			t.Fatalf("left[%d] = %d, want %d", i, v, want[i])
		}
	}
}

func TestDecodeAllocsBoundedAfterInitialize(t *testing.T) {
	// Same CONSTANT-subframe mono frame as TestDecodeConstantSubframeMono.
	frame := []byte{0xFF, 0xF8, 0x10, 0x08, 0x00, 0x00, 0x00, 0x03, 0xE8}

	info := &media.StreamInfo{CodecType: media.CodecTypeAudio, CodecName: "flac", SampleRate: 44100, Channels: 1, BitsPerSample: 16}
	c, err := New(info)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	pool := chunkpool.New()
	chunk := chunkFrom(t, pool, frame)
	defer chunk.Release()

	allocs := testing.AllocsPerRun(100, func() {
		if _, err := c.Decode(chunk); err != nil {
			t.Fatalf("Decode: %v", err)
		}
	})
	// channelBuf/residualBuf/pcmBuf are all pre-allocated in Initialize and
	// Decode only slices into them; the allocations that remain are the
	// small per-call bytes.Reader/BitReader wrappers and the returned
	// *AudioFrame itself, not anything sized by block_size or channel count.
	if allocs > 4 {
		t.Fatalf("Decode allocated %.1f times per call after Initialize, want a small bounded constant", allocs)
	}
}

func TestToInt16PassthroughAndShift(t *testing.T) {
	ch := [][]int32{{500}}
	out := make([]int16, 1)
	toInt16(ch, 1, 16, newDitherState(1), out)
	if out[0] != 500 {
		t.Fatalf("16-bit passthrough = %d, want 500", out[0])
	}

	ch = [][]int32{{5}}
	out = make([]int16, 1)
	toInt16(ch, 1, 8, newDitherState(1), out)
	if out[0] != 5<<8 {
		t.Fatalf("8-bit upshift = %d, want %d", out[0], 5<<8)
	}
}

func TestCanDecode(t *testing.T) {
	info := &media.StreamInfo{CodecType: media.CodecTypeAudio, CodecName: "flac", SampleRate: 44100, Channels: 2, BitsPerSample: 16}
	c, err := New(info)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !c.CanDecode("flac") {
		t.Fatalf("expected CanDecode(\"flac\") to be true")
	}
	if c.CanDecode("vorbis") {
		t.Fatalf("expected CanDecode(\"vorbis\") to be false")
	}
}
