package mp3

import (
	"io"
	"testing"

	"github.com/jmoon/audiocore/internal/media"
)

func TestFeederBlocksUntilDataPushed(t *testing.T) {
	f := newFeeder()
	done := make(chan struct{})
	var got []byte
	var err error
	go func() {
		buf := make([]byte, 4)
		var n int
		n, err = f.Read(buf)
		got = buf[:n]
		close(done)
	}()

	f.push([]byte{1, 2, 3})

	<-done
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("got %v, want [1 2 3]", got)
	}
}

func TestFeederReadAfterCloseReturnsEOF(t *testing.T) {
	f := newFeeder()
	f.close()
	buf := make([]byte, 4)
	n, err := f.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("Read after close = (%d, %v), want (0, io.EOF)", n, err)
	}
}

func TestFeederDrainsBufferedBytesBeforeEOF(t *testing.T) {
	f := newFeeder()
	f.push([]byte{9, 9})
	f.close()
	buf := make([]byte, 4)
	n, err := f.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 2 || buf[0] != 9 || buf[1] != 9 {
		t.Fatalf("Read = (%d, %v), want buffered bytes first", n, buf[:n])
	}
}

func newPooledCodec(sampleRate int) *Codec {
	c := &Codec{sampleRate: sampleRate, channels: 2}
	c.pcmPool = make([][]int16, poolSlots)
	for i := range c.pcmPool {
		c.pcmPool[i] = make([]int16, maxSamplesPerRead)
	}
	c.drainBuf = make([]int16, drainCapSamples)
	return c
}

func TestPCMBytesToFrame(t *testing.T) {
	// Little-endian int16 stereo pair: left=1, right=-1.
	c := newPooledCodec(44100)
	f := c.pcmBytesToFrame([]byte{1, 0, 0xFF, 0xFF})
	if f.SampleFrameCount != 1 {
		t.Fatalf("SampleFrameCount = %d, want 1", f.SampleFrameCount)
	}
	if f.Channels != 2 {
		t.Fatalf("Channels = %d, want 2", f.Channels)
	}
	if f.Samples[0] != 1 || f.Samples[1] != -1 {
		t.Fatalf("Samples = %v, want [1 -1]", f.Samples)
	}
}

func TestPCMBytesToFrameCyclesThroughPoolSlots(t *testing.T) {
	c := newPooledCodec(44100)
	first := c.pcmBytesToFrame([]byte{1, 0, 2, 0})
	for i := 0; i < poolSlots-1; i++ {
		c.pcmBytesToFrame([]byte{9, 0, 9, 0})
	}
	// Exactly poolSlots calls have now run (1 + poolSlots-1), one full lap of
	// the ring, so poolNext is back at 0 but slot 0 itself (first's backing
	// array) has only been written once and must still hold first's data.
	if c.poolNext != 0 {
		t.Fatalf("poolNext = %d, want 0 after %d calls", c.poolNext, poolSlots)
	}
	if first.Samples[0] != 1 || first.Samples[1] != 2 {
		t.Fatalf("first.Samples = %v, want [1 2] (slot not yet overwritten)", first.Samples)
	}
}

func TestDecodeAllocsBoundedAfterPoolBuilt(t *testing.T) {
	c := newPooledCodec(44100)
	data := []byte{1, 0, 0xFF, 0xFF}
	allocs := testing.AllocsPerRun(100, func() {
		f := c.pcmBytesToFrame(data)
		if f == nil {
			t.Fatalf("pcmBytesToFrame returned nil")
		}
	})
	// pcmPool's fixed slots are allocated once up front; pcmBytesToFrame only
	// slices into the next one, so the single allocation that remains is the
	// returned *AudioFrame struct itself.
	if allocs > 1 {
		t.Fatalf("pcmBytesToFrame allocated %.1f times per call, want at most 1 (the returned *AudioFrame struct itself)", allocs)
	}
}

func TestNewRejectsMissingStreamInfo(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected New(nil) to fail")
	}
}

func TestCanDecodeAndCodecName(t *testing.T) {
	c, err := New(&media.StreamInfo{CodecType: media.CodecTypeAudio, CodecName: "mp3", Channels: 2, SampleRate: 44100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !c.CanDecode("mp3") {
		t.Fatalf("expected CanDecode(\"mp3\") to be true")
	}
	if c.CanDecode("flac") {
		t.Fatalf("expected CanDecode(\"flac\") to be false")
	}
	if c.GetCodecName() != "mp3" {
		t.Fatalf("GetCodecName() = %q, want \"mp3\"", c.GetCodecName())
	}
}
