package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoon/audiocore/internal/bytesource"
	"github.com/jmoon/audiocore/internal/media"
	"github.com/jmoon/audiocore/internal/notify"
	"github.com/jmoon/audiocore/internal/probe"
	"github.com/jmoon/audiocore/internal/registry"
	"github.com/jmoon/audiocore/internal/sink"
	"github.com/jmoon/audiocore/internal/stream"
)

// producerChunkBytes is how much PCM playSource pulls from a DemuxedStream
// per GetData call before trying to push it into the ring.
const producerChunkBytes = 4096

// deviceFrames is the frame count a real-time audio callback would request
// per period; used here to pace the draining goroutine that stands in for
// the actual output device (out of scope per spec.md §1).
const deviceFrames = 1024

// openSource opens a ByteSource for uri, dispatching on scheme: file paths
// (the common case) go through bytesource.NewFileSource, http(s):// URIs
// through bytesource.NewHTTPSource.
func openSource(uri string) (bytesource.ByteSource, error) {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return bytesource.NewHTTPSource(uri)
	}
	return bytesource.NewFileSource(uri)
}

// playSource runs one input end to end: detect its container format,
// parse it, select its first audio stream, and pump decoded PCM through a
// ring buffer the way a real audio callback would pull it, publishing
// lifecycle events to hub along the way. Returns once the stream is
// exhausted, ctx is cancelled, or a fatal error occurs.
func playSource(ctx context.Context, uri string, reg *registry.Registry, hub *notify.Hub, ringBytes int, log *slog.Logger) error {
	src, err := openSource(uri)
	if err != nil {
		return err
	}
	defer src.Close()

	formatID, ok, err := probe.Detect(src, reg, uri)
	if err != nil {
		return err
	}
	if !ok {
		return errUnrecognizedFormat{uri: uri}
	}

	factory, ok := reg.DemuxerFactory(formatID)
	if !ok {
		return errNoDemuxer{formatID: formatID}
	}
	demuxer, err := factory(src, nil)
	if err != nil {
		return err
	}
	defer demuxer.Close()

	if _, err := demuxer.ParseContainer(); err != nil {
		return err
	}

	var audioStreamID int
	var info *media.StreamInfo
	for _, s := range demuxer.GetStreams() {
		if s.CodecType == media.CodecTypeAudio {
			audioStreamID = s.StreamID
			info = s
			break
		}
	}
	if info == nil {
		return errNoAudioStream{uri: uri}
	}

	hub.Publish(notify.Event{
		Type:     notify.EventFormatDetected,
		StreamID: audioStreamID,
		Data:     map[string]any{"format": formatID, "codec": info.CodecName, "sample_rate": info.SampleRate},
	})

	st, err := stream.New(demuxer, reg, audioStreamID)
	if err != nil {
		return err
	}
	defer st.Close()

	ring := sink.NewRing(ringBytes)
	frameBytes := 2 * info.Channels
	if frameBytes <= 0 {
		frameBytes = 2
	}

	deviceCtx, stopDevice := context.WithCancel(ctx)
	defer stopDevice()

	producerDone := make(chan error, 1)
	go func() {
		producerDone <- runProducer(ctx, st, ring)
	}()

	deviceDone := make(chan struct{})
	go func() {
		defer close(deviceDone)
		runDevice(deviceCtx, ring, info.SampleRate, frameBytes, log)
	}()

	var producerErr error
	select {
	case producerErr = <-producerDone:
	case <-ctx.Done():
		<-producerDone
	}

	// Let the device keep draining whatever the producer already pushed
	// before tearing it down, unless shutdown was already requested.
	drainDeadline := time.Now().Add(2 * time.Second)
	for ctx.Err() == nil && ring.Len() > 0 && time.Now().Before(drainDeadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stopDevice()
	<-deviceDone

	if producerErr != nil {
		hub.Publish(notify.Event{Type: notify.EventError, StreamID: audioStreamID, Data: map[string]any{"error": producerErr.Error()}})
		return producerErr
	}
	hub.Publish(notify.Event{Type: notify.EventEOF, StreamID: audioStreamID})
	return nil
}

// runProducer pulls decoded PCM from st and pushes it into ring, backing
// off briefly whenever the ring is full rather than spinning, until the
// stream reports EOF or ctx is cancelled.
func runProducer(ctx context.Context, st *stream.DemuxedStream, ring *sink.Ring) error {
	buf := make([]byte, producerChunkBytes)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := st.GetData(len(buf), buf)
		if err != nil {
			return err
		}
		for offset := 0; offset < n; {
			written := ring.Push(buf[offset:n])
			offset += written
			if written == 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(time.Millisecond):
				}
			}
		}
		if st.Eof() {
			return nil
		}
	}
}

// runDevice stands in for the real-time audio callback: at the cadence a
// device would request deviceFrames-sized periods, it pulls from ring and
// discards the result, logging whenever Pull had to zero-fill.
func runDevice(ctx context.Context, ring *sink.Ring, sampleRate, frameBytes int, log *slog.Logger) {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	period := time.Duration(deviceFrames) * time.Second / time.Duration(sampleRate)
	buf := make([]byte, deviceFrames*frameBytes)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, underflow := ring.Pull(buf)
			if underflow {
				sink.LogUnderflow(ring.Underflows())
			}
		}
	}
}

type errUnrecognizedFormat struct{ uri string }

func (e errUnrecognizedFormat) Error() string { return "player: could not recognize format of " + e.uri }

type errNoDemuxer struct{ formatID string }

func (e errNoDemuxer) Error() string { return "player: no demuxer registered for format " + e.formatID }

type errNoAudioStream struct{ uri string }

func (e errNoAudioStream) Error() string { return "player: no audio stream found in " + e.uri }
