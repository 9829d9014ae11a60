package mediaerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestPipelineErrorUnwrap(t *testing.T) {
	cause := errors.New("short read")
	err := NewIOError("bytesource.read", 128, cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}

	var pe *PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("expected errors.As to extract *PipelineError")
	}
	if pe.Cat != CategoryIO {
		t.Fatalf("expected CategoryIO, got %v", pe.Cat)
	}
	if pe.FileOffset != 128 {
		t.Fatalf("expected file offset 128, got %d", pe.FileOffset)
	}
}

func TestRecoveryFor(t *testing.T) {
	err := NewFormatError("ogg.parsePage", 0, RecoverySkipSection, errors.New("bad crc"))
	if got := RecoveryFor(err); got != RecoverySkipSection {
		t.Fatalf("expected RecoverySkipSection, got %v", got)
	}

	wrapped := fmt.Errorf("readChunk: %w", err)
	if got := RecoveryFor(wrapped); got != RecoverySkipSection {
		t.Fatalf("expected RecoverySkipSection through wrapping, got %v", got)
	}

	if got := RecoveryFor(nil); got != RecoveryNone {
		t.Fatalf("expected RecoveryNone for nil error, got %v", got)
	}
}

func TestCategoryString(t *testing.T) {
	cases := map[Category]string{
		CategoryIO:         "io",
		CategoryFormat:     "format",
		CategoryMemory:     "memory",
		CategoryValidation: "validation",
		CategoryException:  "exception",
		CategoryUnknown:    "unknown",
	}
	for cat, want := range cases {
		if got := cat.String(); got != want {
			t.Errorf("Category(%d).String() = %q, want %q", cat, got, want)
		}
	}
}
