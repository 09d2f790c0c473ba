package core

import "time"

// Audit event actions and field values.
const (
	ActionBypassAttempt   = "MFA_BYPASS_ATTEMPT"
	ActionStaleCredential = "STALE_CREDENTIAL_REUSE"

	MethodResumeReuse      = "resume_reuse"
	MethodStaleLoginMarker = "stale_login_marker"

	AuditOutcomeBlocked   = "BLOCKED"
	AuditOutcomeMFAForced = "MFA_FORCED"

	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// AuditEvent is the record handed to the audit sink. The JSON field names are
// part of the sink contract.
type AuditEvent struct {
	Action            string    `json:"action"`
	UserID            string    `json:"userId"`
	Method            string    `json:"method"`
	PendingAgeSeconds int64     `json:"pendingAgeSeconds"`
	Outcome           string    `json:"outcome"`
	Severity          string    `json:"severity"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewBypassAttempt builds the event emitted when a challenge was issued,
// never resolved, and execution resumed anyway.
func NewBypassAttempt(userID string, pendingAge time.Duration, now time.Time) AuditEvent {
	return AuditEvent{
		Action:            ActionBypassAttempt,
		UserID:            userID,
		Method:            MethodResumeReuse,
		PendingAgeSeconds: int64(pendingAge.Seconds()),
		Outcome:           AuditOutcomeBlocked,
		Severity:          SeverityCritical,
		Timestamp:         now,
	}
}

// NewStaleCredential builds the lower-severity event emitted when an old
// login marker is found with no challenge ever recorded as pending.
func NewStaleCredential(userID string, markerAge time.Duration, now time.Time) AuditEvent {
	return AuditEvent{
		Action:            ActionStaleCredential,
		UserID:            userID,
		Method:            MethodStaleLoginMarker,
		PendingAgeSeconds: int64(markerAge.Seconds()),
		Outcome:           AuditOutcomeMFAForced,
		Severity:          SeverityWarning,
		Timestamp:         now,
	}
}
