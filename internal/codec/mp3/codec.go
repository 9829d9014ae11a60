// Package mp3 implements the MPEG-1/2 Layer III Codec capability from
// spec.md §4.5.4, wrapping github.com/hajimehoshi/go-mp3's pure-Go decoder.
//
// go-mp3 decodes MP3's bit reservoir correctly only when driven as a single
// continuous io.Reader (each frame's Huffman data can borrow bits from the
// previous frame), so unlike FLAC/Vorbis/Opus this codec cannot treat a
// chunk as one self-contained decodable unit. Decode instead feeds the
// chunk's bytes into an internal queue a background goroutine drains
// through go-mp3's own Decoder, the same goroutine/channel pump shape
// github.com/xlab/vorbis-go's decoder.go uses to stream PCM out
// asynchronously. A Decode call returns whatever PCM has become available
// since the last call, which may legitimately be a zero-length frame while
// enough bytes accumulate for the next MPEG frame.
package mp3

import (
	"encoding/binary"
	"io"
	"log/slog"
	"sync"

	hajimemp3 "github.com/hajimehoshi/go-mp3"

	"github.com/jmoon/audiocore/internal/capability"
	"github.com/jmoon/audiocore/internal/logger"
	"github.com/jmoon/audiocore/internal/media"
	"github.com/jmoon/audiocore/internal/mediaerr"
)

// pcmReadBytes bounds one Decoder.Read call, comfortably more than a
// single MPEG frame's worth of 16-bit stereo PCM (1152 samples/channel).
const pcmReadBytes = 1152 * 2 * 2 * 4

// framesQueueDepth bounds how many decoded frames the background goroutine
// can get ahead of Decode calls before it blocks feeding the channel.
const framesQueueDepth = 32

// poolSlots bounds how many AudioFrames can be in flight at once: every
// queued channel entry plus the one decodeLoop is currently filling. Sized
// one larger than the channel capacity so decodeLoop never overwrites a
// slot a caller hasn't dequeued yet.
const poolSlots = framesQueueDepth + 1

// maxSamplesPerRead is the largest sample count a single pcmReadBytes read
// can produce, used to size each pooled frame buffer once at startup.
const maxSamplesPerRead = pcmReadBytes / 2

// drainCapSamples bounds drainRemaining's reused aggregation buffer: worst
// case every pooled slot is queued and concatenated at end of stream.
const drainCapSamples = poolSlots * maxSamplesPerRead

// Codec decodes an MP3 elementary stream. go-mp3 always produces stereo
// 16-bit output regardless of the source channel count, so Channels is
// fixed to 2 from construction.
type Codec struct {
	log *slog.Logger

	sampleRate int
	channels   int

	feeder *feeder
	dec    *hajimemp3.Decoder
	frames chan *media.AudioFrame
	stop   chan struct{}
	done   chan struct{}

	pcmPool  [][]int16 // fixed-size slots decodeLoop cycles through, never grown
	poolNext int
	drainBuf []int16 // reused aggregation buffer for drainRemaining

	initialized bool
}

// New constructs an MP3 Codec bound to info, matching capability.CodecFactory.
func New(info *media.StreamInfo) (capability.Codec, error) {
	if info == nil {
		return nil, mediaerr.NewValidationError("mp3.New", 0, errMissingStreamInfo{})
	}
	return &Codec{
		log:        logger.WithStream(logger.Logger(), "mp3", info.StreamID),
		sampleRate: info.SampleRate,
		channels:   2,
		feeder:     newFeeder(),
		frames:     make(chan *media.AudioFrame, framesQueueDepth),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Initialize only marks the codec ready. go-mp3 parses the stream's first
// frame header eagerly to learn the sample rate, so constructing its
// Decoder here would block until the first Decode call fed those bytes in;
// to avoid that chicken-and-egg wait, constructing the Decoder and starting
// the background decode pump (startDecoding) is deferred to the first
// Decode.
func (c *Codec) Initialize() (bool, error) {
	if c.initialized {
		return true, nil
	}
	c.initialized = true
	return true, nil
}

func (c *Codec) startDecoding() error {
	dec, err := hajimemp3.NewDecoder(c.feeder)
	if err != nil {
		return mediaerr.NewFormatError("mp3.Initialize", 0, mediaerr.RecoveryNone, err)
	}
	c.dec = dec
	if sr := dec.SampleRate(); sr > 0 {
		c.sampleRate = sr
	}
	if c.pcmPool == nil {
		c.pcmPool = make([][]int16, poolSlots)
		for i := range c.pcmPool {
			c.pcmPool[i] = make([]int16, maxSamplesPerRead)
		}
		c.drainBuf = make([]int16, drainCapSamples)
	}
	go c.decodeLoop()
	return nil
}

func (c *Codec) decodeLoop() {
	defer close(c.done)
	buf := make([]byte, pcmReadBytes)
	for {
		n, err := c.dec.Read(buf)
		if n > 0 {
			frame := c.pcmBytesToFrame(buf[:n])
			select {
			case c.frames <- frame:
			case <-c.stop:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// pcmBytesToFrame decodes b into the next pooled slot, cycling through
// poolSlots fixed buffers rather than allocating one per call; poolSlots
// is sized one larger than the frames channel's capacity so a slot is
// never reused before its previous occupant has been dequeued.
func (c *Codec) pcmBytesToFrame(b []byte) *media.AudioFrame {
	samples := c.pcmPool[c.poolNext][:len(b)/2]
	c.poolNext = (c.poolNext + 1) % len(c.pcmPool)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return &media.AudioFrame{
		Samples:          samples,
		SampleRate:       c.sampleRate,
		Channels:         2,
		SampleFrameCount: len(samples) / 2,
	}
}

// Decode pushes chunk's bytes into the feeder and returns the next decoded
// frame if one is already queued, or a zero-length frame if the decoder
// hasn't produced one yet (more chunks are needed before it can). The
// returned frame's Samples slice aliases one of c.pcmPool's fixed buffers
// and is valid only until that slot cycles back around. Once the pool has
// been built on the first chunk fed in, sample buffers are never
// reallocated; each returned frame is still a newly allocated
// *AudioFrame, and the feeder's byte queue grows as chunks are pushed.
func (c *Codec) Decode(chunk *media.MediaChunk) (*media.AudioFrame, error) {
	if !c.initialized {
		if _, err := c.Initialize(); err != nil {
			return nil, err
		}
	}
	if chunk == nil || chunk.Size() == 0 {
		if c.dec != nil {
			c.feeder.close()
		}
		return c.drainRemaining(), nil
	}

	firstFeed := c.dec == nil
	c.feeder.push(chunk.Data())
	if firstFeed {
		if err := c.startDecoding(); err != nil {
			return media.Silence(c.sampleRate, c.channels, 0), err
		}
	}

	select {
	case f := <-c.frames:
		return f, nil
	default:
		return media.Silence(c.sampleRate, c.channels, 0), nil
	}
}

// drainRemaining collects every frame left in the queue after end-of-stream
// into one AudioFrame so the last partial second of audio isn't dropped.
// Runs once per stream (or once per Reset), not in the per-chunk steady
// state, but still fills c.drainBuf in place rather than growing a slice.
func (c *Codec) drainRemaining() *media.AudioFrame {
	<-c.done
	total := 0
	for {
		select {
		case f := <-c.frames:
			n := copy(c.drainBuf[total:], f.Samples)
			total += n
		default:
			samples := c.drainBuf[:total]
			return &media.AudioFrame{
				Samples:          samples,
				SampleRate:       c.sampleRate,
				Channels:         c.channels,
				SampleFrameCount: len(samples) / c.channels,
			}
		}
	}
}

// Flush is a no-op here: end-of-stream draining happens via the empty
// chunk Decode already handles, since go-mp3's bit reservoir means there is
// no separate frame boundary to flush independently of the final chunk.
func (c *Codec) Flush() (*media.AudioFrame, error) {
	return media.Silence(c.sampleRate, c.channels, 0), nil
}

// Reset tears down and restarts the decode pump: MP3's bit reservoir
// carries state across frames that a post-seek position can't satisfy, so
// decoding must restart clean from the new chunk stream.
func (c *Codec) Reset() {
	if c.dec == nil {
		return
	}
	close(c.stop)
	c.feeder.close()
	<-c.done
	c.feeder = newFeeder()
	c.frames = make(chan *media.AudioFrame, framesQueueDepth)
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.dec = nil
}

func (c *Codec) CanDecode(codecName string) bool { return codecName == "mp3" }
func (c *Codec) GetCodecName() string            { return "mp3" }

type errMissingStreamInfo struct{}

func (errMissingStreamInfo) Error() string { return "mp3: missing StreamInfo" }

// feeder is an unbounded byte queue satisfying io.Reader: push appends and
// never blocks, Read blocks until bytes are available or the feeder is
// closed, matching the blocking single-reader contract go-mp3 expects.
type feeder struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newFeeder() *feeder {
	f := &feeder{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *feeder) push(p []byte) {
	f.mu.Lock()
	f.buf = append(f.buf, p...)
	f.cond.Signal()
	f.mu.Unlock()
}

func (f *feeder) close() {
	f.mu.Lock()
	f.closed = true
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *feeder) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.buf) == 0 && !f.closed {
		f.cond.Wait()
	}
	if len(f.buf) == 0 && f.closed {
		return 0, io.EOF
	}
	n := copy(p, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}
