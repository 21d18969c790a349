package errs

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

var fatalKeywords = []string{
	"quota exceeded",
	"insufficient quota",
	"unauthorized",
	"authentication failed",
	"invalid api key",
	"incorrect api key",
	"api key invalid",
	"permission denied",
	"access denied",
	"model not found",
}

var transientKeywords = []string{
	"timeout",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"eof",
	"temporary",
	"rate limit",
	"too many requests",
	"status code: 429",
	"status code: 500",
	"status code: 502",
	"status code: 503",
	"status code: 504",
	"service unavailable",
	"internal server error",
	"overloaded",
}

// ErrHandler classifies plain errors and logs them by severity.
type ErrHandler struct {
	logger *zap.Logger
}

// NewErrHandler create error handler
func NewErrHandler(logger *zap.Logger) *ErrHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &ErrHandler{logger: logger}
}

// IsFatal reports whether err cannot be fixed by retrying.
func (h *ErrHandler) IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Severity == SeverityFatal
	}
	return containsAny(strings.ToLower(err.Error()), fatalKeywords)
}

// IsTransient reports whether a retry is likely to succeed.
func (h *ErrHandler) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Severity == SeverityTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), transientKeywords)
}

// Severity returns the severity err would be classified with.
func (h *ErrHandler) Severity(err error) Severity {
	switch {
	case h.IsFatal(err):
		return SeverityFatal
	case h.IsTransient(err):
		return SeverityTransient
	default:
		return SeverityRecoverable
	}
}

// Classify wraps err as *Error of the given kind unless it already is one.
func (h *ErrHandler) Classify(err error, kind Kind, service string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Kind:     kind,
		Severity: h.Severity(err),
		Service:  service,
		Message:  err.Error(),
		Err:      err,
	}
}

// HandleError classifies and logs err, returning the classified value.
func (h *ErrHandler) HandleError(err error, kind Kind, service string) error {
	if err == nil {
		return nil
	}
	classified := h.Classify(err, kind, service)
	fields := []zap.Field{
		zap.String("service", service),
		zap.String("kind", classified.Kind.String()),
		zap.String("severity", classified.Severity.String()),
		zap.Error(err),
	}
	switch classified.Severity {
	case SeverityFatal:
		h.logger.Error("fatal error", fields...)
	case SeverityRecoverable:
		h.logger.Warn("recoverable error", fields...)
	case SeverityTransient:
		h.logger.Debug("transient error", fields...)
	}
	return classified
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
