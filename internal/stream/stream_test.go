package stream

import (
	"encoding/binary"
	"testing"

	"github.com/jmoon/audiocore/internal/capability"
	"github.com/jmoon/audiocore/internal/chunkpool"
	"github.com/jmoon/audiocore/internal/codec/pcm"
	"github.com/jmoon/audiocore/internal/media"
	"github.com/jmoon/audiocore/internal/registry"
)

// fakeDemuxer hands out a fixed list of chunks for one stream, then EOF.
type fakeDemuxer struct {
	info    *media.StreamInfo
	pool    *chunkpool.Pool
	payload [][]byte
	idx     int
	closed  bool
	sought  []int64
}

func newFakeDemuxer(info *media.StreamInfo, payload [][]byte) *fakeDemuxer {
	return &fakeDemuxer{info: info, pool: chunkpool.New(), payload: payload}
}

func (d *fakeDemuxer) State() capability.DemuxerState       { return capability.StateReading }
func (d *fakeDemuxer) ParseContainer() (bool, error)        { return true, nil }
func (d *fakeDemuxer) GetStreams() []*media.StreamInfo       { return []*media.StreamInfo{d.info} }
func (d *fakeDemuxer) GetStreamInfo(id int) (*media.StreamInfo, bool) {
	if id != d.info.StreamID {
		return nil, false
	}
	return d.info, true
}

func (d *fakeDemuxer) ReadChunk(streamID int) (*media.MediaChunk, error) {
	if d.idx >= len(d.payload) {
		return media.EmptyChunk(streamID, 0, 0), nil
	}
	data := d.payload[d.idx]
	d.idx++
	buf, err := d.pool.Acquire(len(data))
	if err != nil {
		return nil, err
	}
	copy(buf.Bytes(), data)
	return media.NewChunk(buf, len(data), streamID, 0, 0, true), nil
}

func (d *fakeDemuxer) SeekTo(targetMs int64) (bool, error) {
	d.sought = append(d.sought, targetMs)
	d.idx = 0
	return true, nil
}

func (d *fakeDemuxer) IsEOF() bool        { return d.idx >= len(d.payload) }
func (d *fakeDemuxer) GetDuration() int64 { return 0 }
func (d *fakeDemuxer) GetPosition() int64 { return 0 }
func (d *fakeDemuxer) GetLastError() error { return nil }
func (d *fakeDemuxer) ClearError()         {}
func (d *fakeDemuxer) Close() error        { d.closed = true; return nil }

func pcmRegistry() *registry.Registry {
	reg := registry.New()
	reg.RegisterCodec("pcm_s16le", pcm.New)
	return reg
}

func s16le(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestGetDataAcrossMultipleChunks(t *testing.T) {
	info := &media.StreamInfo{StreamID: 0, CodecType: media.CodecTypeAudio, CodecName: "pcm_s16le", SampleRate: 8000, Channels: 1}
	d := newFakeDemuxer(info, [][]byte{s16le(1, 2), s16le(3, 4)})
	reg := pcmRegistry()

	st, err := New(d, reg, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	buf := make([]byte, 6) // 3 samples
	n, err := st.GetData(len(buf), buf)
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if n != 6 {
		t.Fatalf("n = %d, want 6", n)
	}
	want := s16le(1, 2, 3)
	for i, b := range want {
		if buf[i] != b {
			t.Fatalf("byte %d = %d, want %d", i, buf[i], b)
		}
	}
}

func TestGetDataReturnsShortCountAtEOF(t *testing.T) {
	info := &media.StreamInfo{StreamID: 0, CodecType: media.CodecTypeAudio, CodecName: "pcm_s16le", SampleRate: 8000, Channels: 1}
	d := newFakeDemuxer(info, [][]byte{s16le(1, 2)})
	reg := pcmRegistry()

	st, err := New(d, reg, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	buf := make([]byte, 100)
	n, err := st.GetData(len(buf), buf)
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if n != 4 {
		t.Fatalf("n = %d, want 4 (2 samples, short of the requested 100 bytes)", n)
	}
	if !st.Eof() {
		t.Fatalf("expected Eof() true after draining every chunk")
	}
}

func TestSeekToResetsBufferedStateAndConvertsSampleToMs(t *testing.T) {
	info := &media.StreamInfo{StreamID: 0, CodecType: media.CodecTypeAudio, CodecName: "pcm_s16le", SampleRate: 8000, Channels: 1}
	d := newFakeDemuxer(info, [][]byte{s16le(1, 2), s16le(3, 4)})
	reg := pcmRegistry()

	st, err := New(d, reg, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf := make([]byte, 2)
	if _, err := st.GetData(len(buf), buf); err != nil {
		t.Fatalf("GetData: %v", err)
	}

	ok, err := st.SeekTo(4000) // 4000 samples at 8000Hz = 500ms
	if err != nil || !ok {
		t.Fatalf("SeekTo: ok=%v err=%v", ok, err)
	}
	if len(d.sought) != 1 || d.sought[0] != 500 {
		t.Fatalf("sought = %v, want [500]", d.sought)
	}
	if len(st.pendingPCM) != 0 {
		t.Fatalf("expected pendingPCM cleared after seek")
	}
}

func TestNewRejectsUnregisteredCodec(t *testing.T) {
	info := &media.StreamInfo{StreamID: 0, CodecType: media.CodecTypeAudio, CodecName: "nonexistent", SampleRate: 8000, Channels: 1}
	d := newFakeDemuxer(info, nil)
	reg := registry.New()
	if _, err := New(d, reg, 0); err == nil {
		t.Fatalf("expected New to fail for an unregistered codec name")
	}
}
