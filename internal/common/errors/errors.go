// Package errors classifies pipeline failures by the recovery they
// demand. Every failure the market-data and order paths can raise has
// a stable Code, and every Code maps to exactly one Policy: drop the
// offending input and continue, re-enter snapshot recovery, retry a
// bounded number of times before giving up, or terminate the session.
// Components decide what to do next from the Policy, not by matching
// individual codes.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode names one failure the pipeline can raise.
type ErrorCode string

const (
	// Decode path: the frame is unusable, the stream is fine.
	ErrMalformedMessage ErrorCode = "MALFORMED_MESSAGE"
	ErrUnknownTemplate  ErrorCode = "UNKNOWN_TEMPLATE"
	ErrTruncatedBuffer  ErrorCode = "TRUNCATED_BUFFER"

	// Depth stream: the book can no longer be trusted.
	ErrSequenceGap       ErrorCode = "SEQUENCE_GAP"
	ErrSnapshotTooOld    ErrorCode = "SNAPSHOT_TOO_OLD"
	ErrRecoveryExhausted ErrorCode = "RECOVERY_EXHAUSTED"

	// Book / order path: one event or action is dropped, the rest of
	// the batch proceeds.
	ErrPriceOutOfGrid   ErrorCode = "PRICE_OUT_OF_GRID"
	ErrVenueRejected    ErrorCode = "VENUE_REJECTED"
	ErrRiskRejected     ErrorCode = "RISK_REJECTED"
	ErrUnknownClOrderID ErrorCode = "UNKNOWN_CL_ORDER_ID"
	ErrOrderExpired     ErrorCode = "ORDER_EXPIRED"

	// Resources / environment.
	ErrPoolExhausted      ErrorCode = "POOL_EXHAUSTED"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrInvalidConfig      ErrorCode = "INVALID_CONFIG"
)

// Policy is the recovery a failure demands from the component that
// detected it.
type Policy int

const (
	// PolicyDropInput: log, discard the offending frame/event/action,
	// keep processing the stream.
	PolicyDropInput Policy = iota
	// PolicyResnapshot: the depth stream lost continuity; clear state
	// and re-enter snapshot recovery.
	PolicyResnapshot
	// PolicyRetryBounded: retry the failed operation up to the
	// configured limit, then escalate to ErrRecoveryExhausted.
	PolicyRetryBounded
	// PolicyTerminate: the session cannot continue; exit non-zero.
	PolicyTerminate
)

// Policy returns the recovery policy for c. Unknown codes get
// PolicyDropInput, the least disruptive response.
func (c ErrorCode) Policy() Policy {
	switch c {
	case ErrSequenceGap:
		return PolicyResnapshot
	case ErrSnapshotTooOld, ErrPoolExhausted, ErrServiceUnavailable, ErrTimeout:
		return PolicyRetryBounded
	case ErrRecoveryExhausted, ErrInvalidConfig:
		return PolicyTerminate
	default:
		return PolicyDropInput
	}
}

// Error is one classified pipeline failure: which stage raised it,
// which code it carries, and the underlying cause if another error
// triggered it. Diagnostic values belong in Msg (use the formatted
// constructors); the hot path never builds maps for them.
type Error struct {
	Stage string
	Code  ErrorCode
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Stage, e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error for stage with a formatted message.
func New(code ErrorCode, stage, format string, args ...interface{}) *Error {
	return &Error{Stage: stage, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. Returns nil if err is nil.
func Wrap(err error, code ErrorCode, stage, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Stage: stage, Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the ErrorCode of the first *Error in err's chain, or
// "" if the chain holds none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err's chain carries code.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsRetryable reports whether a fresh attempt at the same operation may
// succeed without operator intervention.
func IsRetryable(err error) bool {
	switch CodeOf(err).Policy() {
	case PolicyResnapshot, PolicyRetryBounded:
		return true
	default:
		return false
	}
}

// IsValidation reports whether err reflects malformed input rather
// than a transient or business condition.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case ErrMalformedMessage, ErrUnknownTemplate, ErrTruncatedBuffer,
		ErrPriceOutOfGrid, ErrInvalidConfig:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err must stop the session rather than being
// absorbed and retried.
func IsFatal(err error) bool {
	return CodeOf(err).Policy() == PolicyTerminate
}
