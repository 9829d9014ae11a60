// Package probe implements FormatProbe from spec.md §4.3: one-shot format
// detection from a ByteSource's leading bytes, with an extension/MIME hint
// as a secondary path. Mirrors the teacher's CodecDetector in spirit (a
// stateless one-shot classifier driven off a byte prefix) but against a
// registry of declarative signatures rather than a fixed RTMP tag switch.
package probe

import (
	"path/filepath"
	"strings"

	"github.com/jmoon/audiocore/internal/bytesource"
	"github.com/jmoon/audiocore/internal/mediaerr"
	"github.com/jmoon/audiocore/internal/registry"
)

// scratchLimit is the maximum number of leading bytes FormatProbe reads to
// evaluate magic signatures against, per spec.md §4.3 step 1.
const scratchLimit = 64 * 1024

// Detect implements the spec.md §4.3 algorithm: read a bounded prefix,
// evaluate registered signatures in descending priority order, fall back to
// the extension hint, else report the empty format id (ok=false).
//
// hint is an optional filename or URL used only for the extension fallback;
// pass "" when no name is available (e.g. an anonymous in-memory source).
func Detect(src bytesource.ByteSource, reg *registry.Registry, hint string) (formatID string, ok bool, err error) {
	pos, err := src.Tell()
	if err != nil {
		return "", false, err
	}
	if _, err := src.Seek(0, bytesource.SeekSet); err != nil {
		return "", false, err
	}

	scratch := make([]byte, scratchLimit)
	n, readErr := readFull(src, scratch)
	scratch = scratch[:n]

	if _, err := src.Seek(pos, bytesource.SeekSet); err != nil {
		return "", false, err
	}
	if readErr != nil {
		return "", false, mediaerr.NewIOError("probe.detect.read", 0, readErr)
	}

	for _, sig := range reg.Signatures() {
		if matchSignature(scratch, sig) {
			return sig.FormatID, true, nil
		}
	}

	if hint != "" {
		ext := strings.ToLower(filepath.Ext(hint))
		if ext != "" {
			if id, ok := reg.FormatForExtension(ext); ok {
				return id, true, nil
			}
		}
	}

	return "", false, nil
}

func matchSignature(scratch []byte, sig registry.Signature) bool {
	end := sig.Offset + len(sig.Pattern)
	if sig.Offset < 0 || end > len(scratch) {
		return false
	}
	for i, b := range sig.Pattern {
		if scratch[sig.Offset+i] != b {
			return false
		}
	}
	return true
}

// readFull reads until buf is full, the source hits EOF, or an error
// occurs, returning the number of bytes actually placed into buf. A
// prefix shorter than scratchLimit (small files) is not an error.
func readFull(src bytesource.ByteSource, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := src.Read(buf[total:])
		total += n
		if src.EOF() {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
	return total, nil
}
