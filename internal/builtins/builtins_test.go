package builtins

import (
	"testing"

	"github.com/jmoon/audiocore/internal/registry"
)

func TestRegisterWiresEveryFormatAndCodec(t *testing.T) {
	reg := registry.New()
	Register(reg)

	for _, formatID := range []string{"flac", "ogg", "riff", "isomp4", "raw"} {
		if _, ok := reg.DemuxerFactory(formatID); !ok {
			t.Errorf("no demuxer factory registered for %q", formatID)
		}
	}

	for _, codecName := range []string{
		"flac", "vorbis", "opus", "mp3",
		"pcm_u8", "pcm_s16le", "pcm_s24le", "pcm_s32le", "pcm_f32le", "pcm_mulaw", "pcm_alaw",
	} {
		if _, ok := reg.CodecFactory(codecName); !ok {
			t.Errorf("no codec factory registered for %q", codecName)
		}
	}

	wantExt := map[string]string{
		".flac": "flac",
		".ogg":  "ogg",
		".opus": "ogg",
		".wav":  "riff",
		".m4a":  "isomp4",
		".mp4":  "isomp4",
		".raw":  "raw",
	}
	for ext, want := range wantExt {
		got, ok := reg.FormatForExtension(ext)
		if !ok || got != want {
			t.Errorf("FormatForExtension(%q) = %q, %v; want %q, true", ext, got, ok, want)
		}
	}

	sigs := reg.Signatures()
	if len(sigs) == 0 {
		t.Fatalf("expected at least one registered signature")
	}
	var sawFLAC, sawOgg, sawISOMP4 bool
	for _, s := range sigs {
		switch s.FormatID {
		case "flac":
			sawFLAC = true
		case "ogg":
			sawOgg = true
		case "isomp4":
			sawISOMP4 = true
		}
	}
	if !sawFLAC || !sawOgg || !sawISOMP4 {
		t.Fatalf("missing expected signature entries: flac=%v ogg=%v isomp4=%v", sawFLAC, sawOgg, sawISOMP4)
	}

	// raw registers no signature at all: it is reachable only by explicit
	// extension/format selection, never by magic-byte sniffing.
	for _, s := range sigs {
		if s.FormatID == "raw" {
			t.Fatalf("raw should not register any signature")
		}
	}
}
