package core

import "errors"

var (
	// ErrCodeRejected is returned by a verifier when the submitted code is
	// not accepted. Transport timeouts are folded into this error on
	// purpose: a slow verification is indistinguishable from a failed one.
	ErrCodeRejected = errors.New("second-factor code rejected")

	// ErrMalformedMarker is returned when a stored marker value does not
	// parse in the marker wire format.
	ErrMalformedMarker = errors.New("malformed marker value")

	// ErrInvalidToken is returned when a session binding token does not
	// parse or verify.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrTokenExpired is returned when a session binding token has expired.
	ErrTokenExpired = errors.New("session token has expired")
)
