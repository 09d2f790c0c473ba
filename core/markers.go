package core

import (
	"fmt"
	"strconv"
	"time"
)

// Marker keys. The names and value formats are load-bearing: the resume
// algorithm distinguishes present from absent for every key, and timestamps
// travel as integer epoch-milliseconds rendered as strings.
const (
	// KeyLoginTimestamp (durable tier) holds the instant at which
	// credentials were most recently validated.
	KeyLoginTimestamp = "loginTimestamp"

	// KeyMFAPendingSince (ephemeral tier) holds the instant at which a
	// second-factor challenge was issued and not yet resolved.
	KeyMFAPendingSince = "mfaPendingSince"

	// KeyMFACompletedThisSession (ephemeral tier) is set to MarkerTrue only
	// after the verifier accepts a code within the current session lifetime.
	KeyMFACompletedThisSession = "mfaCompletedThisSession"

	// KeyMFAVerifiedAt (durable tier) holds the instant of the last
	// successful second-factor completion.
	KeyMFAVerifiedAt = "mfaVerifiedAt"
)

// MarkerTrue is the only value ever stored under KeyMFACompletedThisSession.
// Any other value is treated as "not completed".
const MarkerTrue = "true"

// FormatInstant renders an instant in the marker wire format.
func FormatInstant(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// ParseInstant parses a marker timestamp value.
func ParseInstant(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedMarker, v)
	}
	return time.UnixMilli(ms), nil
}
