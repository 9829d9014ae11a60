// Package builtins is the single place that wires every concrete demuxer
// and codec into a registry.Registry, the way a teacher's main package
// wires its handshake/control/rpc handlers into a server before Serve is
// called. Nothing else in this module imports both internal/registry and
// the demux/codec packages directly; keeping that import edge in one
// place is what lets registry stay free of a dependency on every format
// and codec it names.
package builtins

import (
	"github.com/jmoon/audiocore/internal/bytesource"
	"github.com/jmoon/audiocore/internal/capability"
	"github.com/jmoon/audiocore/internal/codec/flac"
	"github.com/jmoon/audiocore/internal/codec/mp3"
	"github.com/jmoon/audiocore/internal/codec/opus"
	"github.com/jmoon/audiocore/internal/codec/pcm"
	"github.com/jmoon/audiocore/internal/codec/vorbis"
	demuxflac "github.com/jmoon/audiocore/internal/demux/flac"
	"github.com/jmoon/audiocore/internal/demux/isomp4"
	"github.com/jmoon/audiocore/internal/demux/ogg"
	"github.com/jmoon/audiocore/internal/demux/raw"
	"github.com/jmoon/audiocore/internal/demux/riff"
	"github.com/jmoon/audiocore/internal/media"
	"github.com/jmoon/audiocore/internal/registry"
)

// pcmCodecNames are every codec_name the raw/riff/isomp4 family can report
// for an uncompressed or companded stream, each bound to the same factory
// since pcm.New dispatches on info.CodecName itself.
var pcmCodecNames = []string{
	"pcm_u8", "pcm_s16le", "pcm_s24le", "pcm_s32le", "pcm_f32le",
	"pcm_mulaw", "pcm_alaw",
}

// Register populates reg with every demuxer and codec this module ships.
// Called once from cmd/player at startup against the registry it builds
// with registry.New(); takes the registry as a parameter rather than
// hardcoding registry.Default so callers and tests can each build an
// isolated registry with the same contents.
func Register(reg *registry.Registry) {
	registerDemuxers(reg)
	registerCodecs(reg)
}

func registerDemuxers(reg *registry.Registry) {
	reg.RegisterFormat("flac",
		[]registry.Signature{{FormatID: "flac", Pattern: []byte("fLaC"), Offset: 0, Priority: 100}},
		func(src bytesource.ByteSource, hint *media.StreamInfo) (capability.Demuxer, error) { return demuxflac.New(src, hint) },
		".flac",
	)

	reg.RegisterFormat("ogg",
		[]registry.Signature{{FormatID: "ogg", Pattern: []byte("OggS"), Offset: 0, Priority: 100}},
		func(src bytesource.ByteSource, hint *media.StreamInfo) (capability.Demuxer, error) { return ogg.New(src, hint) },
		".ogg", ".oga", ".opus",
	)

	reg.RegisterFormat("riff",
		[]registry.Signature{
			{FormatID: "riff", Pattern: []byte("RIFF"), Offset: 0, Priority: 90},
			{FormatID: "riff", Pattern: []byte("WAVE"), Offset: 8, Priority: 90},
		},
		func(src bytesource.ByteSource, hint *media.StreamInfo) (capability.Demuxer, error) { return riff.New(src, hint) },
		".wav",
	)

	reg.RegisterFormat("isomp4",
		[]registry.Signature{{FormatID: "isomp4", Pattern: []byte("ftyp"), Offset: 4, Priority: 100}},
		func(src bytesource.ByteSource, hint *media.StreamInfo) (capability.Demuxer, error) { return isomp4.New(src, hint) },
		".m4a", ".mp4", ".m4b",
	)

	// raw carries no magic signature of its own: spec.md §4.4.5 requires a
	// caller-supplied hint (format or codec name from the command line, or
	// an earlier FormatProbe pass), so it is reachable only by explicit
	// extension/format selection, never by signature sniffing.
	reg.RegisterFormat("raw", nil,
		func(src bytesource.ByteSource, hint *media.StreamInfo) (capability.Demuxer, error) { return raw.New(src, hint) },
		".pcm", ".raw", ".ul", ".al",
	)
}

func registerCodecs(reg *registry.Registry) {
	reg.RegisterCodec("flac", flac.New)
	reg.RegisterCodec("vorbis", vorbis.New)
	reg.RegisterCodec("opus", opus.New)
	reg.RegisterCodec("mp3", mp3.New)
	for _, name := range pcmCodecNames {
		reg.RegisterCodec(name, pcm.New)
	}
}
