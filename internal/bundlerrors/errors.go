// Package bundlerrors defines the error taxonomy originated by the bundle
// submission core. Every error the core returns to a caller is wrapped in
// *Error so that callers can classify failures without string matching.
package bundlerrors

import (
	"fmt"
	"time"
)

// Kind classifies an Error for retry and reporting purposes.
type Kind string

const (
	// Config marks invalid or missing configuration.
	Config Kind = "Config"
	// WhitelistViolation marks a program or account outside an allow-set.
	WhitelistViolation Kind = "WhitelistViolation"
	// Malformed marks a bundle that cannot be constructed (size/CU/empty).
	Malformed Kind = "Malformed"
	// UpstreamTransient marks an endpoint error that is safe to retry.
	UpstreamTransient Kind = "UpstreamTransient"
	// UpstreamExhausted marks that every endpoint was attempted without success.
	UpstreamExhausted Kind = "UpstreamExhausted"
	// Chain marks a deterministic on-chain failure, surfaced verbatim.
	Chain Kind = "Chain"
	// FeeCeiling marks that the bump schedule would exceed max_price.
	FeeCeiling Kind = "FeeCeiling"
	// Timeout marks that the caller's overall deadline elapsed.
	Timeout Kind = "Timeout"
	// Cancelled marks a token fired by atomicity failure or caller action.
	Cancelled Kind = "Cancelled"
	// Signing marks a key-unavailable, signing-refused, or signature-timeout failure.
	Signing Kind = "Signing"
)

// Error is the single error type the bundling core originates.
//
// Sensitive material (key bytes, raw signed payloads) must never be placed
// in Message or Cause.
type Error struct {
	Kind       Kind
	Message    string
	Cause      error
	RetryAfter *time.Duration
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the core itself may retry an error of this kind
// within its own attempt budget. Only UpstreamTransient is ever retried
// locally; every other kind is surfaced to the caller per §7 of SPEC_FULL.md.
func (e *Error) Retryable() bool {
	return e.Kind == UpstreamTransient
}

// New constructs an Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NewRetryable constructs an UpstreamTransient error with a suggested delay.
func NewRetryable(message string, retryAfter time.Duration, cause error) *Error {
	return &Error{Kind: UpstreamTransient, Message: message, Cause: cause, RetryAfter: &retryAfter}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

// KindOf extracts the Kind from err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}
