package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seclane/authgate/core"
	"github.com/seclane/authgate/ports"
)

// Config holds the timing policy of the state machine. The windows are
// policy, not constants: deployments tune them without touching the
// resume logic.
type Config struct {
	// StalePendingWindow bounds how long an unresolved challenge is treated
	// as live. Older pending markers are abandoned sessions, not attacks.
	StalePendingWindow time.Duration

	// FreshLoginWindow bounds how old a login marker may be and still count
	// as the same call stack that is about to issue a challenge.
	FreshLoginWindow time.Duration

	// SessionValidityWindow bounds how long a completed session remains
	// valid without re-challenging.
	SessionValidityWindow time.Duration
}

// DefaultConfig returns the stock timing policy.
func DefaultConfig() Config {
	return Config{
		StalePendingWindow:    10 * time.Minute,
		FreshLoginWindow:      time.Second,
		SessionValidityWindow: 30 * time.Minute,
	}
}

// Authority is the session state machine. It owns the auth markers in the
// two storage tiers, delegates code verification to the verifier, and emits
// security events to the audit sink. One Authority is bound to one session
// and one user; all operations run to completion without preemption, the
// verifier call in CompleteMFA being the only suspension point.
type Authority struct {
	userID    string
	durable   ports.KV
	ephemeral ports.KV
	verifier  ports.Verifier
	sink      ports.AuditSink

	cfg Config
	log *zap.Logger
	now func() time.Time

	// mfaRequired is false only for users with no enrolled second factor.
	mfaRequired bool
}

// Option configures an Authority.
type Option func(*Authority)

// WithConfig overrides the timing policy.
func WithConfig(cfg Config) Option {
	return func(a *Authority) { a.cfg = cfg }
}

// WithLogger sets the diagnostic logger. Sink and store degradations are
// reported here, never to the end user.
func WithLogger(log *zap.Logger) Option {
	return func(a *Authority) { a.log = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

// WithoutSecondFactor marks the bound user as having no enrolled second
// factor. Admission then rests on the login marker alone.
func WithoutSecondFactor() Option {
	return func(a *Authority) { a.mfaRequired = false }
}

// NewAuthority creates an Authority bound to one user's markers.
func NewAuthority(userID string, durable, ephemeral ports.KV, verifier ports.Verifier, sink ports.AuditSink, opts ...Option) *Authority {
	a := &Authority{
		userID:      userID,
		durable:     durable,
		ephemeral:   ephemeral,
		verifier:    verifier,
		sink:        sink,
		cfg:         DefaultConfig(),
		log:         zap.NewNop(),
		now:         time.Now,
		mfaRequired: true,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// BeginLogin records that credentials were just validated. It grants nothing
// by itself.
func (a *Authority) BeginLogin(ctx context.Context) error {
	if err := a.durable.Set(ctx, core.KeyLoginTimestamp, core.FormatInstant(a.now())); err != nil {
		return fmt.Errorf("set login marker: %w", err)
	}
	return nil
}

// RequireMFA records that a second-factor challenge is being issued. It must
// be called before the challenge is shown, never after.
func (a *Authority) RequireMFA(ctx context.Context) error {
	// An issued challenge demands resolution: a completion from earlier in
	// the session must not coexist with the new pending marker, or a resume
	// during the re-challenge would still admit.
	if err := a.ephemeral.Delete(ctx, core.KeyMFACompletedThisSession); err != nil {
		return fmt.Errorf("clear completed marker: %w", err)
	}
	if err := a.ephemeral.Set(ctx, core.KeyMFAPendingSince, core.FormatInstant(a.now())); err != nil {
		return fmt.Errorf("set pending marker: %w", err)
	}
	return nil
}

// CompleteMFA submits a code to the verifier and, on success, promotes the
// session to authenticated. Markers are untouched until the verifier result
// is known, so a failed or slow verification can never leave them
// half-updated.
func (a *Authority) CompleteMFA(ctx context.Context, code string) (core.Decision, error) {
	pendingBefore, hasPending, err := a.ephemeral.Get(ctx, core.KeyMFAPendingSince)
	if err != nil {
		return core.Decision{}, fmt.Errorf("read pending marker: %w", err)
	}
	if !hasPending {
		return core.Unauthenticated(core.ReasonNoSession), nil
	}

	if err := a.verifier.Verify(ctx, a.userID, code); err != nil {
		// No marker mutation on failure; the caller may retry.
		return core.Unauthenticated(core.ReasonChallengeFailed), nil
	}

	// The verifier call is the only suspension point. Re-check that the
	// challenge this call started from is still the live one before
	// trusting our own start state.
	pendingAfter, stillPending, err := a.ephemeral.Get(ctx, core.KeyMFAPendingSince)
	if err != nil {
		return core.Decision{}, fmt.Errorf("recheck pending marker: %w", err)
	}
	if !stillPending || pendingAfter != pendingBefore {
		return core.Unauthenticated(core.ReasonNoSession), nil
	}

	// The completed marker is written last so a storage failure midway
	// degrades to a lost session, never to completed-with-pending.
	if err := a.durable.Set(ctx, core.KeyMFAVerifiedAt, core.FormatInstant(a.now())); err != nil {
		return core.Decision{}, fmt.Errorf("set verified marker: %w", err)
	}
	if err := a.ephemeral.Delete(ctx, core.KeyMFAPendingSince); err != nil {
		return core.Decision{}, fmt.Errorf("clear pending marker: %w", err)
	}

	// The login marker is consumed; it must not justify a later bypass.
	if err := a.durable.Delete(ctx, core.KeyLoginTimestamp); err != nil {
		return core.Decision{}, fmt.Errorf("clear login marker: %w", err)
	}

	if err := a.ephemeral.Set(ctx, core.KeyMFACompletedThisSession, core.MarkerTrue); err != nil {
		return core.Decision{}, fmt.Errorf("set completed marker: %w", err)
	}

	return core.Authenticated(), nil
}

// CancelMFA abandons an issued challenge and clears all markers.
func (a *Authority) CancelMFA(ctx context.Context) (core.Decision, error) {
	if err := a.clearAll(ctx); err != nil {
		return core.Decision{}, err
	}
	return core.Unauthenticated(core.ReasonNoSession), nil
}

// Logout clears all markers in both tiers unconditionally. Idempotent.
func (a *Authority) Logout(ctx context.Context) error {
	return a.clearAll(ctx)
}

// ResumeCheck decides whether the current holder of the process may proceed
// as authenticated. It must run once per process start, before any protected
// operation, and its result is authoritative. The five steps are ordered;
// each one short-circuits.
func (a *Authority) ResumeCheck(ctx context.Context) (core.Decision, error) {
	now := a.now()

	pendingAt, hasPending, err := a.instant(ctx, a.ephemeral, core.KeyMFAPendingSince)
	if err != nil {
		return core.Decision{}, err
	}
	completed, err := a.completedThisSession(ctx)
	if err != nil {
		return core.Decision{}, err
	}

	// Step 1: staleness clears first. An abandoned challenge is not an
	// attack, and stale state must never survive into the checks below.
	if hasPending && now.Sub(pendingAt) > a.cfg.StalePendingWindow {
		if err := a.clearAll(ctx); err != nil {
			return core.Decision{}, err
		}
		return core.Unauthenticated(core.ReasonExpired), nil
	}

	// Step 2: bypass detection. A live pending challenge with no completion
	// in this session's lifetime means execution resumed around the second
	// factor. This runs before the fresh-login check in all cases;
	// reordering it reopens the hole this machine exists to close.
	if hasPending && !completed {
		pendingAge := now.Sub(pendingAt)
		if err := a.clearAll(ctx); err != nil {
			return core.Decision{}, err
		}
		a.audit(ctx, core.NewBypassAttempt(a.userID, pendingAge, now))
		return core.Rejected(core.ReasonBypassDetected), nil
	}

	loginAt, hasLogin, err := a.instant(ctx, a.durable, core.KeyLoginTimestamp)
	if err != nil {
		return core.Decision{}, err
	}

	// Step 3: fresh-login admission.
	if hasLogin {
		age := now.Sub(loginAt)

		if !a.mfaRequired {
			// No second factor enrolled: admission rests on the login
			// marker alone, bounded by the session validity window.
			if age <= a.cfg.SessionValidityWindow {
				return core.Authenticated(), nil
			}
			if err := a.clearAll(ctx); err != nil {
				return core.Decision{}, err
			}
			return core.Unauthenticated(core.ReasonSessionExpired), nil
		}

		if age < a.cfg.FreshLoginWindow {
			// Same call stack as the credential validation; the caller
			// proceeds to issue the challenge normally.
			return core.Unauthenticated(core.ReasonFreshLoginPendingChallenge), nil
		}

		// Old login marker, no challenge ever recorded as pending. Not
		// conclusive, but never trusted to skip the second factor.
		a.audit(ctx, core.NewStaleCredential(a.userID, age, now))
		return core.Rejected(core.ReasonStaleCredentialReuse), nil
	}

	// Step 4: completed-session admission.
	if completed {
		verifiedAt, hasVerified, err := a.instant(ctx, a.durable, core.KeyMFAVerifiedAt)
		if err != nil {
			return core.Decision{}, err
		}
		if hasVerified && now.Sub(verifiedAt) <= a.cfg.SessionValidityWindow {
			return core.Authenticated(), nil
		}
		if err := a.clearAll(ctx); err != nil {
			return core.Decision{}, err
		}
		return core.Unauthenticated(core.ReasonSessionExpired), nil
	}

	// Step 5: no markers at all, the ordinary logged-out state.
	return core.Unauthenticated(core.ReasonNoSession), nil
}

// instant reads a timestamp marker. A malformed value is treated as absent
// and reported to the diagnostic log; every downstream path then denies
// rather than admits.
func (a *Authority) instant(ctx context.Context, tier ports.KV, key string) (time.Time, bool, error) {
	v, ok, err := tier.Get(ctx, key)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return time.Time{}, false, nil
	}

	t, err := core.ParseInstant(v)
	if err != nil {
		a.log.Warn("discarding malformed marker",
			zap.String("key", key),
			zap.String("userId", a.userID),
			zap.Error(err))
		return time.Time{}, false, nil
	}

	return t, true, nil
}

func (a *Authority) completedThisSession(ctx context.Context) (bool, error) {
	v, ok, err := a.ephemeral.Get(ctx, core.KeyMFACompletedThisSession)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", core.KeyMFACompletedThisSession, err)
	}
	return ok && v == core.MarkerTrue, nil
}

func (a *Authority) clearAll(ctx context.Context) error {
	if err := a.ephemeral.Clear(ctx); err != nil {
		return fmt.Errorf("clear ephemeral tier: %w", err)
	}
	if err := a.durable.Clear(ctx); err != nil {
		return fmt.Errorf("clear durable tier: %w", err)
	}
	return nil
}

// audit hands an event to the sink. Sink failures go to the diagnostic log
// and never block or alter the decision being returned.
func (a *Authority) audit(ctx context.Context, event core.AuditEvent) {
	if a.sink == nil {
		return
	}
	if err := a.sink.Record(ctx, event); err != nil {
		a.log.Warn("audit sink unavailable",
			zap.String("action", event.Action),
			zap.String("userId", event.UserID),
			zap.Error(err))
	}
}
