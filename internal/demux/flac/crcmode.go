package flac

// CRCMode selects how strictly frame header (CRC-8) and frame body (CRC-16)
// checksums are enforced (spec.md §4.4.2).
type CRCMode int

const (
	// CRCDisabled skips all checksum verification.
	CRCDisabled CRCMode = iota
	// CRCEnabled verifies checksums and counts mismatches without failing
	// the read; repeated mismatches trip the shared error counter.
	CRCEnabled
	// CRCStrict rejects any frame whose checksum does not match.
	CRCStrict
)

func (m CRCMode) String() string {
	switch m {
	case CRCDisabled:
		return "disabled"
	case CRCEnabled:
		return "enabled"
	case CRCStrict:
		return "strict"
	default:
		return "unknown"
	}
}
