// Package backuperrors defines the error taxonomy raised by the backup
// agent's duty cycle. Errors carry a Kind and a Severity rather than being
// expressed as a subclass hierarchy, per the agent's own design notes on
// representing faults as a sum type.
package backuperrors

import "fmt"

// Severity classifies how a raised error should be handled by a caller.
type Severity int

const (
	// SeverityWarn is reported to the events listener but does not abort
	// the caller's retry loop.
	SeverityWarn Severity = iota
	// SeverityFatal aborts the current duty cycle and is re-raised to the
	// owner of the agent after a RESET_BACKUP transition.
	SeverityFatal
)

func (s Severity) String() string {
	if s == SeverityFatal {
		return "fatal"
	}
	return "warn"
}

// Kind identifies the category of fault, matching spec.md §7.
type Kind int

const (
	KindProtocolMismatch Kind = iota
	KindArchiveError
	KindStall
	KindResourceUnavailable
	KindUnexpectedRecordingSignal
)

func (k Kind) String() string {
	switch k {
	case KindProtocolMismatch:
		return "protocol_mismatch"
	case KindArchiveError:
		return "archive_error"
	case KindStall:
		return "stall"
	case KindResourceUnavailable:
		return "resource_unavailable"
	case KindUnexpectedRecordingSignal:
		return "unexpected_recording_signal"
	default:
		return "unknown"
	}
}

// Error is the concrete error type raised throughout the agent.
type Error struct {
	Kind     Kind
	Severity Severity
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a fatal error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Severity: SeverityFatal, Message: message}
}

// Wrap constructs a fatal error of the given kind wrapping err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Severity: SeverityFatal, Message: message, Err: err}
}

// Warnf constructs a warning-severity error of the given kind.
func Warnf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Severity: SeverityWarn, Message: fmt.Sprintf(format, args...)}
}

// ProtocolMismatch reports a schema-id mismatch on the consensus subscription.
func ProtocolMismatch(expected, actual int32) *Error {
	return New(KindProtocolMismatch, fmt.Sprintf("expected schemaId=%d, actual=%d", expected, actual))
}

// ArchiveError reports an archive control response with code=ERROR.
func ArchiveError(correlationID int64, message string) *Error {
	return New(KindArchiveError, fmt.Sprintf("archive response for correlationId=%d, error: %s", correlationID, message))
}

// Stall reports that progress has stalled prior to steady state.
func Stall() *Error {
	return Warnf(KindStall, "progress has stalled")
}

// ResourceUnavailable reports that a tracked counter disappeared from the registry.
func ResourceUnavailable(message string) *Error {
	return Warnf(KindResourceUnavailable, "%s", message)
}

// UnexpectedRecordingSignal reports a snapshot START/STOP signal at an
// unexpected position.
func UnexpectedRecordingSignal(message string) *Error {
	return New(KindUnexpectedRecordingSignal, fmt.Sprintf("error occurred while transferring snapshot: %s", message))
}
