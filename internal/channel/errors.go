package channel

import (
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures so callers can branch without
// string matching.
type ErrorKind string

const (
	// KindUnauthorized means the gateway rejected our token. Not retryable.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindRateLimited means the gateway returned 429. Retryable after the
	// advertised delay.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTransient covers transport errors and 5xx responses. Retryable.
	KindTransient ErrorKind = "transient"
	// KindInvalidRecipient means the recipient is unknown or malformed.
	KindInvalidRecipient ErrorKind = "invalid_recipient"
	// KindSessionDisconnected means the channel session needs re-pairing.
	KindSessionDisconnected ErrorKind = "session_disconnected"
)

// Error is a classified gateway error.
type Error struct {
	Kind ErrorKind
	// RetryAfterSec is set for rate-limited errors when the gateway
	// advertised a delay.
	RetryAfterSec int
	Err           error
}

func (e *Error) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure may succeed on a later attempt.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

// KindOf extracts the error kind, or "" for unclassified errors.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsRetryable reports whether err is a classified retryable gateway error.
func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Retryable()
	}
	return false
}
