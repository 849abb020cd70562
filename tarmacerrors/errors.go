package tarmacerrors

import (
	"errors"
	"strings"
)

// Configuration (C) Errors
var (
	ErrConflictingExitPolicy = errors.New("C1|ConflictingExitPolicy: exit_on_diff and exit_on_insn_diff are mutually exclusive.")
	ErrBadVectorLength       = errors.New("C2|BadVectorLength: max_vector_length must be between 1 and 16 quadwords.")
	ErrBadAddrRange          = errors.New("C3|BadAddrRange: Ignored address range end precedes its start.")
	ErrBadDeferredDelay      = errors.New("C4|BadDeferredDelay: Deferred check delay must be at least one tick.")
	ErrMissingTracePath      = errors.New("C5|MissingTracePath: No trace file configured.")
)

// Trace (T) Errors
var (
	ErrMalformedTrace        = errors.New("T1|MalformedTrace: Trace line does not follow the TARMAC column grammar.")
	ErrLineTooLong           = errors.New("T2|LineTooLong: Trace line exceeds the maximum line length.")
	ErrTooManyRegisterWrites = errors.New("T3|TooManyRegisterWrites: Instruction has more register records than the pending list holds.")
	ErrSeekUnsupported       = errors.New("T4|SeekUnsupported: Trace input is not seekable.")
	ErrReaderClosed          = errors.New("T5|ReaderClosed: Trace reader is closed.")
)

// Index (I) Errors
var (
	ErrIndexStale    = errors.New("I1|IndexStale: Trace index was built for a different trace file.")
	ErrIndexNotFound = errors.New("I2|IndexNotFound: PC not present in trace index.")
)

// Run (R) Errors
var (
	ErrTerminatedByPolicy = errors.New("R1|TerminatedByPolicy: Simulation stopped after a mismatch with the reference trace.")
)

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := rootMessage(err)
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	errStr := rootMessage(err)
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorDesc extracts the error description from the error message.
func GetErrorDesc(err error) string {
	if err == nil {
		return ""
	}
	parts := strings.SplitN(rootMessage(err), ":", 2)
	if len(parts) < 2 {
		return "DESC NOT SET"
	}
	return strings.TrimSpace(parts[1])
}

// rootMessage returns the message of the innermost wrapped error so codes
// survive fmt.Errorf("...: %w") wrapping.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
