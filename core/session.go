package core

import "time"

// SessionBinding ties a transport caller to its marker scope. The binding
// grants nothing by itself: a holder still passes through the resume check
// before any protected operation.
type SessionBinding struct {
	ID          string    // Unique session identifier, scopes the marker keys
	UserID      string    // Subject the markers belong to
	MFARequired bool      // Whether the subject has a second factor enrolled
	IssuedAt    time.Time // When the binding was created
	ExpiresAt   time.Time // When the binding stops identifying anything
}
