package isomp4

import (
	"errors"
	"io"

	"github.com/abema/go-mp4"
	"github.com/jmoon/audiocore/internal/mediaerr"
)

// soundHandler is the hdlr.HandlerType value ("soun") marking a track as
// audio, the same check the m4a reference in the example corpus makes.
var soundHandler = [4]byte{'s', 'o', 'u', 'n'}

// parseTracks walks r's box tree with go-mp4, building one track per trak
// box and filling its sample table from stsz/stco/co64/stsc/stts/ctts,
// mirroring the box set and callback shape of the example corpus's m4a
// parser but keeping every track (not just the first audio one found) and
// building a durable sample table instead of decoding as it walks.
func parseTracks(r io.ReadSeeker) ([]*track, error) {
	var tracks []*track
	var cur *track

	_, err := mp4.ReadBoxStructure(r, func(h *mp4.ReadHandle) (any, error) {
		switch h.BoxInfo.Type {
		case mp4.BoxTypeMoov(), mp4.BoxTypeMdia(), mp4.BoxTypeMinf(), mp4.BoxTypeStbl(), mp4.BoxTypeStsd():
			return h.Expand()

		case mp4.BoxTypeTrak():
			cur = &track{trackID: len(tracks) + 1}
			tracks = append(tracks, cur)
			return h.Expand()

		case mp4.BoxTypeMdhd():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if mdhd, ok := box.(*mp4.Mdhd); ok && cur != nil {
				cur.timescale = mdhd.Timescale
			}

		case mp4.BoxTypeHdlr():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if hdlr, ok := box.(*mp4.Hdlr); ok && cur != nil {
				cur.isAudio = hdlr.HandlerType == soundHandler
			}

		case mp4.BoxTypeMp4a():
			if cur == nil || !cur.isAudio {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			entry, ok := box.(*mp4.AudioSampleEntry)
			if !ok {
				return nil, nil
			}
			cur.sampleRate = int(entry.SampleRate / 65536)
			cur.channels = int(entry.ChannelCount)
			cur.codecName = "aac"
			cur.codecTag = fourccTag(h.BoxInfo.Type)
			return h.Expand() // descend for esds

		case mp4.BoxTypeEsds():
			if cur == nil || !cur.isAudio {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			esds, ok := box.(*mp4.Esds)
			if !ok {
				return nil, nil
			}
			for _, desc := range esds.Descriptors {
				if desc.Tag == 0x05 && len(desc.Data) > 0 {
					cur.codecPrivate = desc.Data
					break
				}
			}

		case mp4.BoxTypeStsz():
			if cur == nil || !cur.isAudio {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			stsz, ok := box.(*mp4.Stsz)
			if !ok {
				return nil, nil
			}
			cur.bitsPerSample = 16
			if stsz.SampleSize != 0 {
				for range stsz.SampleCount {
					cur.sampleSizes = append(cur.sampleSizes, stsz.SampleSize)
				}
			} else {
				cur.sampleSizes = stsz.EntrySize
			}

		case mp4.BoxTypeStco():
			if cur == nil || !cur.isAudio {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			stco, ok := box.(*mp4.Stco)
			if !ok {
				return nil, nil
			}
			for _, o := range stco.ChunkOffset {
				cur.chunkOffsets = append(cur.chunkOffsets, int64(o))
			}

		case mp4.BoxTypeCo64():
			if cur == nil || !cur.isAudio {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			co64, ok := box.(*mp4.Co64)
			if !ok {
				return nil, nil
			}
			for _, o := range co64.ChunkOffset {
				cur.chunkOffsets = append(cur.chunkOffsets, int64(o))
			}

		case mp4.BoxTypeStsc():
			if cur == nil || !cur.isAudio {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			stsc, ok := box.(*mp4.Stsc)
			if !ok {
				return nil, nil
			}
			for _, e := range stsc.Entries {
				cur.stscEntries = append(cur.stscEntries, stscEntry{FirstChunk: e.FirstChunk, SamplesPerChunk: e.SamplesPerChunk})
			}

		case mp4.BoxTypeStts():
			if cur == nil || !cur.isAudio {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			stts, ok := box.(*mp4.Stts)
			if !ok {
				return nil, nil
			}
			for _, e := range stts.Entries {
				cur.sttsEntries = append(cur.sttsEntries, durationEntry{SampleCount: e.SampleCount, SampleDelta: int64(e.SampleDelta)})
			}

		case mp4.BoxTypeCtts():
			if cur == nil || !cur.isAudio {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			ctts, ok := box.(*mp4.Ctts)
			if !ok {
				return nil, nil
			}
			for _, e := range ctts.Entries {
				cur.cttsEntries = append(cur.cttsEntries, durationEntry{SampleCount: e.SampleCount, SampleDelta: int64(e.SampleOffset)})
			}
		}

		// A sample entry this module doesn't have a registered Go type for
		// (a newer codec tag such as fLaC or Opus in an isobmff context):
		// go-mp4 still hands back the generic audio layout for any fourcc
		// it recognizes as an audio sample entry, so try that before giving
		// up and only recording the fourcc as the codec name.
		if cur != nil && cur.isAudio && cur.codecName == "" && len(h.Path) >= 2 && h.Path[len(h.Path)-2] == mp4.BoxTypeStsd() {
			box, _, err := h.ReadPayload()
			if err == nil {
				if entry, ok := box.(*mp4.AudioSampleEntry); ok {
					cur.sampleRate = int(entry.SampleRate / 65536)
					cur.channels = int(entry.ChannelCount)
				}
			}
			cur.codecName = fourccName(h.BoxInfo.Type)
			cur.codecTag = fourccTag(h.BoxInfo.Type)
			return h.Expand()
		}

		return nil, nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, mediaerr.NewFormatError("isomp4.boxwalk", 0, mediaerr.RecoveryNone, err)
	}

	out := tracks[:0]
	for _, t := range tracks {
		if !t.isAudio || t.codecName == "" {
			continue
		}
		if err := t.buildSampleTable(); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func fourccName(bt mp4.BoxType) string { return string(bt[:]) }

func fourccTag(bt mp4.BoxType) uint32 {
	return uint32(bt[0])<<24 | uint32(bt[1])<<16 | uint32(bt[2])<<8 | uint32(bt[3])
}
