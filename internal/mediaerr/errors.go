// Package mediaerr defines the error vocabulary shared by every layer of the
// media pipeline: I/O sources, demuxers, codecs and the pool. Every error
// implements error/Unwrap so callers can use errors.As/errors.Is across
// layers, and carries a Category/Recovery pair so a caller can decide
// whether to retry, skip, fall back, or give up without string matching.
package mediaerr

import (
	"fmt"
)

// Category classifies the layer/kind of failure, mirroring the DemuxerError
// categories of the data model: IO, Format, Memory, Validation, Exception.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryIO
	CategoryFormat
	CategoryMemory
	CategoryValidation
	CategoryException
)

func (c Category) String() string {
	switch c {
	case CategoryIO:
		return "io"
	case CategoryFormat:
		return "format"
	case CategoryMemory:
		return "memory"
	case CategoryValidation:
		return "validation"
	case CategoryException:
		return "exception"
	default:
		return "unknown"
	}
}

// Recovery names the action a caller (or the component itself) should take
// in response to an error of a given category.
type Recovery int

const (
	RecoveryNone Recovery = iota
	RecoveryRetry
	RecoverySkipSection
	RecoveryFallbackMode
	RecoveryReset
)

func (r Recovery) String() string {
	switch r {
	case RecoveryRetry:
		return "retry"
	case RecoverySkipSection:
		return "skip_section"
	case RecoveryFallbackMode:
		return "fallback_mode"
	case RecoveryReset:
		return "reset"
	default:
		return "none"
	}
}

// recoveryMarker is implemented by every error type in this package so
// callers can classify a wrapped error without a type switch over every
// concrete type, mirroring the teacher's protocolMarker pattern.
type recoveryMarker interface {
	error
	Category() Category
	Recovery() Recovery
}

// PipelineError is the concrete DemuxerError/CodecError value from the data
// model: {category, message, file_offset, error_code, recovery}.
type PipelineError struct {
	Op         string // component + operation, e.g. "flac.parseContainer"
	Err        error  // underlying cause, may be nil
	Cat        Category
	Rec        Recovery
	FileOffset int64
	ErrorCode  int
}

func (e *PipelineError) Error() string {
	base := fmt.Sprintf("%s error: %s", e.Cat, e.Op)
	if e.FileOffset != 0 {
		base = fmt.Sprintf("%s (offset %d)", base, e.FileOffset)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", base, e.Err)
	}
	return base
}

func (e *PipelineError) Unwrap() error      { return e.Err }
func (e *PipelineError) Category() Category { return e.Cat }
func (e *PipelineError) Recovery() Recovery { return e.Rec }

// Constructors. Keep layering context with fmt.Errorf("...: %w", err) on Err
// when wrapping a lower-level cause.

func NewIOError(op string, offset int64, cause error) error {
	return &PipelineError{Op: op, Err: cause, Cat: CategoryIO, Rec: RecoveryNone, FileOffset: offset}
}

func NewFormatError(op string, offset int64, recovery Recovery, cause error) error {
	return &PipelineError{Op: op, Err: cause, Cat: CategoryFormat, Rec: recovery, FileOffset: offset}
}

func NewMemoryError(op string, cause error) error {
	return &PipelineError{Op: op, Err: cause, Cat: CategoryMemory, Rec: RecoveryRetry}
}

func NewValidationError(op string, offset int64, cause error) error {
	return &PipelineError{Op: op, Err: cause, Cat: CategoryValidation, Rec: RecoveryNone, FileOffset: offset}
}

func NewExceptionError(op string, offset int64, cause error) error {
	return &PipelineError{Op: op, Err: cause, Cat: CategoryException, Rec: RecoveryNone, FileOffset: offset}
}

// As extracts the *PipelineError from err's chain, if any.
func As(err error) (*PipelineError, bool) {
	var pe *PipelineError
	for err != nil {
		if p, ok := err.(*PipelineError); ok {
			pe = p
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return pe, pe != nil
}

// RecoveryFor returns the Recovery action attached to err, or RecoveryNone if
// err is nil or carries no recovery marker.
func RecoveryFor(err error) Recovery {
	if err == nil {
		return RecoveryNone
	}
	if rm, ok := err.(recoveryMarker); ok {
		return rm.Recovery()
	}
	if pe, ok := As(err); ok {
		return pe.Rec
	}
	return RecoveryNone
}
