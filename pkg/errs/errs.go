package errs

import (
	"errors"
	"fmt"
)

// Kind identifies what went wrong, independent of how bad it is.
type Kind int

const (
	KindUnknown Kind = iota
	KindCaptureFailure
	KindAnalysisFailure
	KindStreamFailure
	KindNoActiveSession
	KindAlreadyActive
	KindNotActive
	KindBudgetExceeded
	KindPersistenceFailure
)

func (k Kind) String() string {
	switch k {
	case KindCaptureFailure:
		return "capture_failure"
	case KindAnalysisFailure:
		return "analysis_failure"
	case KindStreamFailure:
		return "stream_failure"
	case KindNoActiveSession:
		return "no_active_session"
	case KindAlreadyActive:
		return "already_active"
	case KindNotActive:
		return "not_active"
	case KindBudgetExceeded:
		return "budget_exceeded"
	case KindPersistenceFailure:
		return "persistence_failure"
	default:
		return "unknown"
	}
}

// Severity error severity
type Severity int

const (
	// SeverityFatal cannot be recovered locally
	SeverityFatal Severity = iota
	// SeverityRecoverable the operation failed, the caller may try again later
	SeverityRecoverable
	// SeverityTransient temporary failure, a retry is likely to succeed
	SeverityTransient
)

func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "fatal"
	case SeverityRecoverable:
		return "recoverable"
	case SeverityTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error unified error structure
type Error struct {
	Kind     Kind
	Severity Severity
	Service  string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Service, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Service, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrNotActive)
// works for wrapped and freshly built values alike.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind != KindUnknown && t.Kind == e.Kind
}

// Sentinel values for errors.Is.
var (
	ErrNoActiveSession    = &Error{Kind: KindNoActiveSession, Severity: SeverityRecoverable, Service: "session", Message: "no active session"}
	ErrAlreadyActive      = &Error{Kind: KindAlreadyActive, Severity: SeverityRecoverable, Service: "session", Message: "a session is already active"}
	ErrNotActive          = &Error{Kind: KindNotActive, Severity: SeverityRecoverable, Service: "session", Message: "session is not active"}
	ErrCaptureFailure     = &Error{Kind: KindCaptureFailure, Severity: SeverityRecoverable, Service: "capture", Message: "capture failed"}
	ErrAnalysisFailure    = &Error{Kind: KindAnalysisFailure, Severity: SeverityRecoverable, Service: "vision", Message: "analysis failed"}
	ErrStreamFailure      = &Error{Kind: KindStreamFailure, Severity: SeverityTransient, Service: "realtime", Message: "stream failed"}
	ErrBudgetExceeded     = &Error{Kind: KindBudgetExceeded, Severity: SeverityRecoverable, Service: "summary", Message: "budget exceeded"}
	ErrPersistenceFailure = &Error{Kind: KindPersistenceFailure, Severity: SeverityFatal, Service: "store", Message: "persistence failed"}
)

// New builds an error of the given kind.
func New(kind Kind, severity Severity, service, message string, err error) *Error {
	return &Error{Kind: kind, Severity: severity, Service: service, Message: message, Err: err}
}

// CaptureFailure wraps a capture error. Device errors are recoverable.
func CaptureFailure(err error) *Error {
	return New(KindCaptureFailure, SeverityRecoverable, "capture", "capture failed", err)
}

// AnalysisFailure wraps a vision API error, keeping the severity of the cause
// when it is already classified.
func AnalysisFailure(severity Severity, err error) *Error {
	return New(KindAnalysisFailure, severity, "vision", "analysis failed", err)
}

// StreamFailure wraps a realtime channel error.
func StreamFailure(err error) *Error {
	return New(KindStreamFailure, SeverityTransient, "realtime", "stream failed", err)
}

// PersistenceFailure wraps a storage error.
func PersistenceFailure(severity Severity, err error) *Error {
	return New(KindPersistenceFailure, severity, "store", "persistence failed", err)
}

// KindOf returns the Kind of the first *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
