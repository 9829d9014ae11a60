package ogg

import "github.com/jmoon/audiocore/internal/bytesource"

// durationScanWindow bounds how much of the file's tail estimateDuration
// reads looking for the last valid page, since Ogg carries no duration
// field of its own — the end-of-stream page's granule position is the only
// authoritative source.
const durationScanWindow = 128 * 1024

// estimateDuration scans the tail of src for the last page belonging to
// each known stream and returns the longest duration in milliseconds, or 0
// if the source size is unknown or no page was found in the scan window.
// The ByteSource's position is restored before returning.
func estimateDuration(src bytesource.ByteSource, streams map[uint32]*logicalStream) int64 {
	size, ok := src.Size()
	if !ok || size == 0 {
		return 0
	}
	saved, err := src.Tell()
	if err != nil {
		return 0
	}
	defer src.Seek(saved, bytesource.SeekSet)

	start := size - durationScanWindow
	if start < 0 {
		start = 0
	}
	if _, err := src.Seek(start, bytesource.SeekSet); err != nil {
		return 0
	}
	if found, err := findNextCapture(src, durationScanWindow); err != nil || !found {
		return 0
	}

	bestMs := int64(0)
	for {
		h, _, err := readPage(src)
		if err != nil {
			if found, ferr := findNextCapture(src, durationScanWindow); ferr != nil || !found {
				break
			}
			continue
		}
		s, ok := streams[h.SerialNumber]
		if !ok || s.sampleRate <= 0 || h.GranulePos < 0 {
			continue
		}
		ms := h.GranulePos * 1000 / int64(s.sampleRate)
		if ms > bestMs {
			bestMs = ms
		}
	}
	return bestMs
}
