// Package stream implements DemuxedStream from spec.md §4.6: the glue that
// pairs a Demuxer with the Codec selected for its audio stream and exposes
// a contiguous PCM byte stream to the sink. It owns the one-decoded-frame
// buffer the sink's getData slices bytes out of, pulling one more chunk and
// decoding it whenever that buffer runs dry.
//
// Grounded on internal/rtmp/media/relay.go: both are an owning glue object
// sitting between a producer (there, a publisher's incoming messages; here,
// a demuxer's chunks) and a pull-rate consumer (there, subscriber sends;
// here, the audio sink's getData), and on the public/private `Foo`/
// `foo_unlocked` lock pattern used throughout internal/demux and
// internal/codec.
package stream

import (
	"encoding/binary"
	"sync"

	"github.com/jmoon/audiocore/internal/capability"
	"github.com/jmoon/audiocore/internal/media"
	"github.com/jmoon/audiocore/internal/mediaerr"
	"github.com/jmoon/audiocore/internal/registry"
)

// DemuxedStream pairs one demuxer stream with its codec and exposes PCM
// bytes to a pull-model consumer.
type DemuxedStream struct {
	mu sync.Mutex

	demuxer  capability.Demuxer
	codec    capability.Codec
	streamID int
	info     *media.StreamInfo

	pendingPCM []byte // interleaved int16 bytes not yet handed to a caller
	eof        bool
	lastErr    error
}

// New constructs a DemuxedStream for streamID on demuxer, looking up a
// codec factory in reg by the stream's reported codec_name, initializing
// the codec, and arming the stream for GetData.
func New(demuxer capability.Demuxer, reg *registry.Registry, streamID int) (*DemuxedStream, error) {
	info, ok := demuxer.GetStreamInfo(streamID)
	if !ok || !info.IsValid() {
		return nil, mediaerr.NewValidationError("stream.New", 0, errUnknownStream{streamID: streamID})
	}
	factory, ok := reg.CodecFactory(info.CodecName)
	if !ok {
		return nil, mediaerr.NewFormatError("stream.New", 0, mediaerr.RecoveryNone, errNoCodec{codecName: info.CodecName})
	}
	codec, err := factory(info)
	if err != nil {
		return nil, err
	}
	if _, err := codec.Initialize(); err != nil {
		return nil, err
	}
	return &DemuxedStream{
		demuxer:  demuxer,
		codec:    codec,
		streamID: streamID,
		info:     info,
	}, nil
}

type errUnknownStream struct{ streamID int }

func (e errUnknownStream) Error() string { return "stream: no such stream id in demuxer" }

type errNoCodec struct{ codecName string }

func (e errNoCodec) Error() string { return "stream: no codec registered for " + e.codecName }

// StreamInfo returns the stream's immutable parameters.
func (s *DemuxedStream) StreamInfo() *media.StreamInfo { return s.info }

// GetData fills buffer with up to n bytes of interleaved int16 PCM, pulling
// and decoding chunks as needed. Returns fewer than n only at end of stream.
func (s *DemuxedStream) GetData(n int, buffer []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getData_unlocked(n, buffer)
}

func (s *DemuxedStream) getData_unlocked(n int, buffer []byte) (int, error) {
	if n > len(buffer) {
		n = len(buffer)
	}
	filled := 0
	for filled < n {
		if len(s.pendingPCM) == 0 {
			if s.eof {
				break
			}
			if err := s.refill_unlocked(); err != nil {
				s.lastErr = err
				return filled, err
			}
			if len(s.pendingPCM) == 0 {
				if s.eof {
					break
				}
				continue // codec legitimately produced no output yet (e.g. mp3 still buffering)
			}
		}
		want := n - filled
		if want > len(s.pendingPCM) {
			want = len(s.pendingPCM)
		}
		copy(buffer[filled:filled+want], s.pendingPCM[:want])
		s.pendingPCM = s.pendingPCM[want:]
		filled += want
	}
	return filled, nil
}

// refill_unlocked pulls one chunk from the demuxer, decodes it, and appends
// the resulting PCM to pendingPCM. On EOF it calls Flush once to drain any
// remaining warm-up samples before marking the stream done.
func (s *DemuxedStream) refill_unlocked() error {
	chunk, err := s.demuxer.ReadChunk(s.streamID)
	if err != nil {
		return err
	}
	defer chunk.Release()

	if chunk.Size() == 0 {
		frame, err := s.codec.Flush()
		if err != nil {
			return err
		}
		s.appendFrame_unlocked(frame)
		s.eof = true
		return nil
	}

	frame, decErr := s.codec.Decode(chunk)
	if frame != nil {
		s.appendFrame_unlocked(frame)
	}
	return decErr
}

func (s *DemuxedStream) appendFrame_unlocked(frame *media.AudioFrame) {
	if frame == nil || len(frame.Samples) == 0 {
		return
	}
	offset := len(s.pendingPCM)
	s.pendingPCM = append(s.pendingPCM, make([]byte, frame.ByteLen())...)
	for i, sample := range frame.Samples {
		binary.LittleEndian.PutUint16(s.pendingPCM[offset+i*2:], uint16(sample))
	}
}

// Eof reports whether the stream has delivered its last byte: the demuxer
// hit end of stream and every buffered PCM byte has already been handed to
// a caller.
func (s *DemuxedStream) Eof() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eof && len(s.pendingPCM) == 0
}

// SeekTo instructs the demuxer to seek to the sample nearest targetSample,
// discards any buffered PCM decoded from before the seek, and resets the
// codec so stale decoder state can't bleed into the first post-seek chunk.
func (s *DemuxedStream) SeekTo(targetSample int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	targetMs := int64(0)
	if s.info.SampleRate > 0 {
		targetMs = targetSample * 1000 / int64(s.info.SampleRate)
	}
	ok, err := s.demuxer.SeekTo(targetMs)
	if err != nil {
		return false, err
	}
	s.codec.Reset()
	s.pendingPCM = nil
	s.eof = false
	return ok, nil
}

// GetLastError returns the most recent error surfaced from getData, if any.
func (s *DemuxedStream) GetLastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close releases the underlying demuxer (and, transitively, its ByteSource).
func (s *DemuxedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.demuxer.Close()
}
