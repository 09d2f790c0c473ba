package core

// Outcome is the top-level result of an authority operation.
type Outcome int

const (
	// OutcomeUnauthenticated means no valid session exists; the caller may
	// start a fresh login flow.
	OutcomeUnauthenticated Outcome = iota

	// OutcomeAuthenticated means the holder may proceed as authenticated.
	OutcomeAuthenticated

	// OutcomeRejected means the resume state looked like reuse of
	// partially-completed authentication. Rejected is terminal for the
	// current process; a wholly fresh login is required.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unauthenticated"
	}
}

// Reason qualifies a non-authenticated outcome.
type Reason int

const (
	// ReasonNone accompanies OutcomeAuthenticated.
	ReasonNone Reason = iota

	// ReasonNoSession is the ordinary logged-out state: no markers present.
	ReasonNoSession

	// ReasonExpired means a pending challenge outlived the stale-pending
	// window and all markers were cleared. Abandoned, not hostile.
	ReasonExpired

	// ReasonSessionExpired means a completed session outlived the session
	// validity window and must re-authenticate.
	ReasonSessionExpired

	// ReasonFreshLoginPendingChallenge means credentials validated within
	// the fresh-login window and the caller should now issue the challenge.
	ReasonFreshLoginPendingChallenge

	// ReasonBypassDetected means a challenge was issued, never resolved in
	// its session's lifetime, yet execution resumed.
	ReasonBypassDetected

	// ReasonStaleCredentialReuse means an old login marker was found with no
	// challenge ever recorded as pending. Not conclusive, never trusted.
	ReasonStaleCredentialReuse

	// ReasonChallengeFailed means the verifier rejected the submitted code.
	// The caller may retry.
	ReasonChallengeFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonNoSession:
		return "no_session"
	case ReasonExpired:
		return "expired"
	case ReasonSessionExpired:
		return "session_expired"
	case ReasonFreshLoginPendingChallenge:
		return "fresh_login_pending_challenge"
	case ReasonBypassDetected:
		return "bypass_detected"
	case ReasonStaleCredentialReuse:
		return "stale_credential_reuse"
	case ReasonChallengeFailed:
		return "challenge_failed"
	default:
		return "none"
	}
}

// Decision is the closed result type returned by the authority. Security
// outcomes are values, never errors, so a caller cannot swallow a rejection
// with a generic error check.
type Decision struct {
	Outcome Outcome
	Reason  Reason
}

// Authenticated builds the single admitting decision.
func Authenticated() Decision {
	return Decision{Outcome: OutcomeAuthenticated, Reason: ReasonNone}
}

// Unauthenticated builds a benign non-admitting decision.
func Unauthenticated(r Reason) Decision {
	return Decision{Outcome: OutcomeUnauthenticated, Reason: r}
}

// Rejected builds a terminal non-admitting decision.
func Rejected(r Reason) Decision {
	return Decision{Outcome: OutcomeRejected, Reason: r}
}

// Allowed reports whether the holder may proceed as authenticated.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAuthenticated
}

func (d Decision) String() string {
	if d.Reason == ReasonNone {
		return d.Outcome.String()
	}
	return d.Outcome.String() + "(" + d.Reason.String() + ")"
}
