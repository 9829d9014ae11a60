package isomp4

import "github.com/jmoon/audiocore/internal/mediaerr"

// sampleEntry is one row of a track's flattened sample table: the byte
// range of the sample's payload inside the file and its timing in track
// timescale units. CTS carries the stts/ctts-derived presentation offset
// spec.md §4.4.3 calls for ("timestamp from stts/ctts").
type sampleEntry struct {
	Offset int64
	Size   uint32
	DTS    int64
	CTS    int64
}

// track accumulates one trak's parsed state while the box tree is walked,
// then resolves into a flattened sample table once stbl's children have
// all been seen.
type track struct {
	trackID       int
	isAudio       bool
	timescale     uint32
	codecName     string
	codecTag      uint32
	sampleRate    int
	channels      int
	bitsPerSample int
	codecPrivate  []byte

	sampleSizes   []uint32
	chunkOffsets  []int64
	stscEntries   []stscEntry
	sttsEntries   []durationEntry
	cttsEntries   []durationEntry // SampleDelta here holds the signed CTS offset

	samples []sampleEntry
}

type stscEntry struct {
	FirstChunk      uint32
	SamplesPerChunk uint32
}

type durationEntry struct {
	SampleCount uint32
	SampleDelta int64
}

// buildSampleTable flattens stsz/stco(or co64)/stsc/stts/ctts into one
// sample-ordered table, the same shape the m4a reference in the example
// corpus builds by hand from the identical box set.
func (t *track) buildSampleTable() error {
	if len(t.sampleSizes) == 0 || len(t.chunkOffsets) == 0 {
		return mediaerr.NewFormatError("isomp4.stbl", 0, mediaerr.RecoveryNone, errIncompleteSampleTable{})
	}

	durations := make([]int64, 0, len(t.sampleSizes))
	for _, e := range t.sttsEntries {
		for i := uint32(0); i < e.SampleCount; i++ {
			durations = append(durations, e.SampleDelta)
		}
	}
	ctsOffsets := make([]int64, 0, len(t.sampleSizes))
	for _, e := range t.cttsEntries {
		for i := uint32(0); i < e.SampleCount; i++ {
			ctsOffsets = append(ctsOffsets, e.SampleDelta)
		}
	}

	t.samples = make([]sampleEntry, 0, len(t.sampleSizes))
	var dts int64
	sampleIdx := 0
	for chunkIdx, offset := range t.chunkOffsets {
		samplesInChunk := uint32(1)
		for i := len(t.stscEntries) - 1; i >= 0; i-- {
			if uint32(chunkIdx+1) >= t.stscEntries[i].FirstChunk {
				samplesInChunk = t.stscEntries[i].SamplesPerChunk
				break
			}
		}
		chunkOffset := offset
		for i := uint32(0); i < samplesInChunk && sampleIdx < len(t.sampleSizes); i++ {
			size := t.sampleSizes[sampleIdx]
			var cts int64
			if sampleIdx < len(ctsOffsets) {
				cts = ctsOffsets[sampleIdx]
			}
			t.samples = append(t.samples, sampleEntry{
				Offset: chunkOffset,
				Size:   size,
				DTS:    dts,
				CTS:    dts + cts,
			})
			chunkOffset += int64(size)
			if sampleIdx < len(durations) {
				dts += durations[sampleIdx]
			}
			sampleIdx++
		}
	}
	return nil
}

type errIncompleteSampleTable struct{}

func (errIncompleteSampleTable) Error() string {
	return "isomp4: track is missing stsz/stco sample table boxes"
}
