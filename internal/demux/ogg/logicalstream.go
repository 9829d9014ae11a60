package ogg

// logicalStream reassembles packets for one Ogg serial_number across page
// boundaries (lacing) and tracks enough codec identification state to fill
// out a StreamInfo, mirroring the teacher reader's per-CSID
// ChunkStreamState used to reassemble RTMP messages across chunk
// boundaries.
type logicalStream struct {
	streamID int
	serial   uint32

	codecName         string
	headerPacketsLeft int // identification/comment/setup packets still expected before audio
	codecPrivate      [][]byte
	sampleRate        int
	channels          int
	preSkip           int // Opus-only: samples to discard from the decoded output start

	partial []byte // in-progress packet spanning multiple pages
	eos     bool
}

// packetsFromPage runs the page's lacing values against its payload,
// producing zero or more complete packets. A page's last packet may remain
// incomplete (terminated by a lacing value of exactly 255 at the page's end)
// and is retained in s.partial until continued by a later page.
func (s *logicalStream) packetsFromPage(h *pageHeader, payload []byte) [][]byte {
	var packets [][]byte
	cursor := 0
	runStart := 0
	runLen := 0
	first := true

	flush := func(terminated bool) {
		data := payload[runStart : runStart+runLen]
		if first && h.isContinued() && len(s.partial) > 0 {
			s.partial = append(s.partial, data...)
			data = s.partial
			s.partial = nil
		} else if first && h.isContinued() {
			// Continuation flagged but nothing pending: drop the orphaned
			// fragment per spec.md's resync-forward recovery strategy.
			first = false
			runStart = cursor
			runLen = 0
			return
		}
		if terminated {
			packets = append(packets, data)
		} else {
			s.partial = append(s.partial, data...)
		}
		first = false
		runStart = cursor
		runLen = 0
	}

	for _, seg := range h.SegmentTable {
		runLen += int(seg)
		cursor += int(seg)
		if seg < 255 {
			flush(true)
		}
	}
	if runLen > 0 {
		flush(false)
	}
	return packets
}
