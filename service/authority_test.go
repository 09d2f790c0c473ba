package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclane/authgate/adapters/store"
	"github.com/seclane/authgate/core"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type fakeVerifier struct {
	err      error
	calls    int
	onVerify func()
}

func (v *fakeVerifier) Verify(ctx context.Context, userID, code string) error {
	v.calls++
	if v.onVerify != nil {
		v.onVerify()
	}
	return v.err
}

type captureSink struct {
	events []core.AuditEvent
	err    error
}

func (s *captureSink) Record(ctx context.Context, event core.AuditEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type fixture struct {
	clock     *fakeClock
	durable   *store.MemoryStore
	ephemeral *store.MemoryStore
	verifier  *fakeVerifier
	sink      *captureSink
	authority *Authority
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		clock:     &fakeClock{t: time.UnixMilli(1700000000000)},
		durable:   store.NewMemoryStore(),
		ephemeral: store.NewMemoryStore(),
		verifier:  &fakeVerifier{},
		sink:      &captureSink{},
	}

	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.authority = NewAuthority("user-1", f.durable, f.ephemeral, f.verifier, f.sink, opts...)

	return f
}

func (f *fixture) marker(t *testing.T, tier *store.MemoryStore, key string) (string, bool) {
	t.Helper()

	v, ok, err := tier.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func (f *fixture) requireAllCleared(t *testing.T) {
	t.Helper()

	for _, key := range []string{core.KeyLoginTimestamp, core.KeyMFAVerifiedAt} {
		_, ok := f.marker(t, f.durable, key)
		assert.False(t, ok, "durable %s should be absent", key)
	}
	for _, key := range []string{core.KeyMFAPendingSince, core.KeyMFACompletedThisSession} {
		_, ok := f.marker(t, f.ephemeral, key)
		assert.False(t, ok, "ephemeral %s should be absent", key)
	}
}

func TestBeginLoginSetsDurableMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))

	v, ok := f.marker(t, f.durable, core.KeyLoginTimestamp)
	require.True(t, ok)
	assert.Equal(t, core.FormatInstant(f.clock.Now()), v)
}

func TestRequireMFASetsEphemeralMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.RequireMFA(ctx))

	v, ok := f.marker(t, f.ephemeral, core.KeyMFAPendingSince)
	require.True(t, ok)
	assert.Equal(t, core.FormatInstant(f.clock.Now()), v)
}

func TestResumeFreshLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))

	decision, err := f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Unauthenticated(core.ReasonFreshLoginPendingChallenge), decision)

	// Idempotent with no intervening mutation.
	again, err := f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, decision, again)
}

func TestCancelThenResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))
	require.NoError(t, f.authority.RequireMFA(ctx))

	f.clock.Advance(10 * time.Second)
	decision, err := f.authority.CancelMFA(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Unauthenticated(core.ReasonNoSession), decision)

	f.clock.Advance(10 * time.Second)
	decision, err = f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Unauthenticated(core.ReasonNoSession), decision)

	f.requireAllCleared(t)
	assert.Empty(t, f.sink.events)
}

func TestResumeDetectsBypass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))
	require.NoError(t, f.authority.RequireMFA(ctx))

	f.clock.Advance(5 * time.Second)
	decision, err := f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Rejected(core.ReasonBypassDetected), decision)

	f.requireAllCleared(t)

	require.Len(t, f.sink.events, 1)
	event := f.sink.events[0]
	assert.Equal(t, core.ActionBypassAttempt, event.Action)
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, core.MethodResumeReuse, event.Method)
	assert.EqualValues(t, 5, event.PendingAgeSeconds)
	assert.Equal(t, core.AuditOutcomeBlocked, event.Outcome)
	assert.Equal(t, core.SeverityCritical, event.Severity)
}

func TestBypassBeatsFreshLogin(t *testing.T) {
	// A pending-but-incomplete challenge must lose the session even when the
	// login marker is fresh enough to pass the fresh-login check.
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))
	require.NoError(t, f.authority.RequireMFA(ctx))

	decision, err := f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Rejected(core.ReasonBypassDetected), decision)
	require.Len(t, f.sink.events, 1)
	assert.Equal(t, core.ActionBypassAttempt, f.sink.events[0].Action)
}

func TestCompleteMFAPromotesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))
	require.NoError(t, f.authority.RequireMFA(ctx))

	f.clock.Advance(2 * time.Second)
	decision, err := f.authority.CompleteMFA(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, core.Authenticated(), decision)

	completed, ok := f.marker(t, f.ephemeral, core.KeyMFACompletedThisSession)
	require.True(t, ok)
	assert.Equal(t, core.MarkerTrue, completed)

	verifiedAt, ok := f.marker(t, f.durable, core.KeyMFAVerifiedAt)
	require.True(t, ok)
	assert.Equal(t, core.FormatInstant(f.clock.Now()), verifiedAt)

	_, ok = f.marker(t, f.ephemeral, core.KeyMFAPendingSince)
	assert.False(t, ok, "pending must clear on completion")

	// Consumed login markers must not justify a later bypass.
	_, ok = f.marker(t, f.durable, core.KeyLoginTimestamp)
	assert.False(t, ok, "login marker must clear on completion")

	f.clock.Advance(98 * time.Second)
	decision, err = f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Authenticated(), decision)

	again, err := f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, decision, again)
}

func TestResumeExpiresStalePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))
	require.NoError(t, f.authority.RequireMFA(ctx))

	f.clock.Advance(700 * time.Second)
	decision, err := f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Unauthenticated(core.ReasonExpired), decision)

	f.requireAllCleared(t)

	// Abandonment is not an attack.
	assert.Empty(t, f.sink.events)
}

func TestResumeExpiresCompletedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))
	require.NoError(t, f.authority.RequireMFA(ctx))

	f.clock.Advance(2 * time.Second)
	decision, err := f.authority.CompleteMFA(ctx, "123456")
	require.NoError(t, err)
	require.True(t, decision.Allowed())

	f.clock.Advance(1898 * time.Second)
	decision, err = f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Unauthenticated(core.ReasonSessionExpired), decision)

	f.requireAllCleared(t)
}

func TestCompleteMFAFailureLeavesMarkersUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))
	require.NoError(t, f.authority.RequireMFA(ctx))

	f.verifier.err = core.ErrCodeRejected
	decision, err := f.authority.CompleteMFA(ctx, "000000")
	require.NoError(t, err)
	assert.Equal(t, core.Unauthenticated(core.ReasonChallengeFailed), decision)

	_, ok := f.marker(t, f.ephemeral, core.KeyMFAPendingSince)
	assert.True(t, ok, "pending must survive a failed attempt")
	_, ok = f.marker(t, f.ephemeral, core.KeyMFACompletedThisSession)
	assert.False(t, ok)
	_, ok = f.marker(t, f.durable, core.KeyLoginTimestamp)
	assert.True(t, ok)

	// The caller may retry.
	f.verifier.err = nil
	decision, err = f.authority.CompleteMFA(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, core.Authenticated(), decision)
}

func TestCompleteMFAWithoutChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	decision, err := f.authority.CompleteMFA(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, core.Unauthenticated(core.ReasonNoSession), decision)
	assert.Zero(t, f.verifier.calls, "verifier must not run without a pending challenge")
}

func TestCompleteMFAChallengeClearedMidFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))
	require.NoError(t, f.authority.RequireMFA(ctx))

	// A concurrent cancel lands while the verifier call is in flight.
	f.verifier.onVerify = func() {
		require.NoError(t, f.ephemeral.Delete(ctx, core.KeyMFAPendingSince))
	}

	decision, err := f.authority.CompleteMFA(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, core.Unauthenticated(core.ReasonNoSession), decision)

	_, ok := f.marker(t, f.ephemeral, core.KeyMFACompletedThisSession)
	assert.False(t, ok, "a torn completion must not promote the session")
	_, ok = f.marker(t, f.durable, core.KeyMFAVerifiedAt)
	assert.False(t, ok)
}

func TestRechallengeRevokesCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))
	require.NoError(t, f.authority.RequireMFA(ctx))
	decision, err := f.authority.CompleteMFA(ctx, "123456")
	require.NoError(t, err)
	require.True(t, decision.Allowed())

	// Step-up: a new challenge on the already-completed session.
	f.clock.Advance(time.Minute)
	require.NoError(t, f.authority.RequireMFA(ctx))

	_, ok := f.marker(t, f.ephemeral, core.KeyMFACompletedThisSession)
	assert.False(t, ok, "an issued challenge must revoke the earlier completion")
	_, ok = f.marker(t, f.ephemeral, core.KeyMFAPendingSince)
	assert.True(t, ok)

	// Resolving the new challenge re-admits.
	decision, err = f.authority.CompleteMFA(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, core.Authenticated(), decision)
}

func TestResumeDuringRechallengeNotAdmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))
	require.NoError(t, f.authority.RequireMFA(ctx))
	decision, err := f.authority.CompleteMFA(ctx, "123456")
	require.NoError(t, err)
	require.True(t, decision.Allowed())

	// A new challenge is issued and the user reloads instead of answering.
	f.clock.Advance(time.Minute)
	require.NoError(t, f.authority.RequireMFA(ctx))
	f.clock.Advance(5 * time.Second)

	decision, err = f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Rejected(core.ReasonBypassDetected), decision)
	f.requireAllCleared(t)
}

type failingKV struct {
	*store.MemoryStore
	failDeleteKey string
}

func (f *failingKV) Delete(ctx context.Context, key string) error {
	if key == f.failDeleteKey {
		return errors.New("tier unavailable")
	}
	return f.MemoryStore.Delete(ctx, key)
}

func TestCompleteMFAPartialFailureStaysConsistent(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1700000000000)}
	durable := store.NewMemoryStore()
	ephemeral := &failingKV{MemoryStore: store.NewMemoryStore()}
	authority := NewAuthority("user-1", durable, ephemeral, &fakeVerifier{}, &captureSink{}, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, authority.BeginLogin(ctx))
	require.NoError(t, authority.RequireMFA(ctx))

	// The pending marker cannot be cleared after the verifier accepts.
	ephemeral.failDeleteKey = core.KeyMFAPendingSince

	_, err := authority.CompleteMFA(ctx, "123456")
	require.Error(t, err)

	// The interrupted completion must not leave contradictory markers:
	// completed is only ever written after pending is gone.
	_, ok, getErr := ephemeral.Get(ctx, core.KeyMFACompletedThisSession)
	require.NoError(t, getErr)
	assert.False(t, ok)

	// The surviving pending marker keeps denying on resume.
	ephemeral.failDeleteKey = ""
	decision, err := authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.False(t, decision.Allowed())
}

func TestResumeRejectsStaleCredentialArtifact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))

	f.clock.Advance(5 * time.Second)
	decision, err := f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Rejected(core.ReasonStaleCredentialReuse), decision)

	require.Len(t, f.sink.events, 1)
	event := f.sink.events[0]
	assert.Equal(t, core.ActionStaleCredential, event.Action)
	assert.Equal(t, core.SeverityWarning, event.Severity)
	assert.Equal(t, core.AuditOutcomeMFAForced, event.Outcome)

	// Idempotent: with no intervening mutation the answer does not change.
	again, err := f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, decision, again)
}

func TestSinkFailureNeverAltersDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sink.err = errors.New("sink unavailable")

	require.NoError(t, f.authority.BeginLogin(ctx))
	require.NoError(t, f.authority.RequireMFA(ctx))

	f.clock.Advance(5 * time.Second)
	decision, err := f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Rejected(core.ReasonBypassDetected), decision)
	f.requireAllCleared(t)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))
	require.NoError(t, f.authority.RequireMFA(ctx))

	require.NoError(t, f.authority.Logout(ctx))
	require.NoError(t, f.authority.Logout(ctx))

	f.requireAllCleared(t)

	decision, err := f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Unauthenticated(core.ReasonNoSession), decision)
}

func TestNoSecondFactorAdmission(t *testing.T) {
	f := newFixture(t, WithoutSecondFactor())
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))

	f.clock.Advance(5 * time.Minute)
	decision, err := f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Authenticated(), decision)

	f.clock.Advance(40 * time.Minute)
	decision, err = f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Unauthenticated(core.ReasonSessionExpired), decision)
	f.requireAllCleared(t)
}

func TestCompletedWithoutVerifiedAtFailsSecure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Completed marker with no verification instant is ambiguous state.
	require.NoError(t, f.ephemeral.Set(ctx, core.KeyMFACompletedThisSession, core.MarkerTrue))

	decision, err := f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Unauthenticated(core.ReasonSessionExpired), decision)
	f.requireAllCleared(t)
}

func TestMalformedMarkerNeverAdmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.durable.Set(ctx, core.KeyLoginTimestamp, "not-a-timestamp"))

	decision, err := f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.False(t, decision.Allowed())
	assert.Equal(t, core.Unauthenticated(core.ReasonNoSession), decision)
}

func TestUnresolvedPendingNeverAuthenticated(t *testing.T) {
	ages := []time.Duration{
		0,
		500 * time.Millisecond,
		5 * time.Second,
		9 * time.Minute,
		11 * time.Minute,
		24 * time.Hour,
	}

	for _, age := range ages {
		t.Run(age.String(), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			require.NoError(t, f.authority.BeginLogin(ctx))
			require.NoError(t, f.authority.RequireMFA(ctx))

			f.clock.Advance(age)
			decision, err := f.authority.ResumeCheck(ctx)
			require.NoError(t, err)
			assert.False(t, decision.Allowed(),
				"pending without completion must never authenticate at age %s", age)
		})
	}
}

func TestAuthenticatedImpliesCompletedAndFresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.BeginLogin(ctx))
	require.NoError(t, f.authority.RequireMFA(ctx))
	_, err := f.authority.CompleteMFA(ctx, "123456")
	require.NoError(t, err)

	for advanced := time.Duration(0); advanced <= 31*time.Minute; advanced += 10 * time.Minute {
		decision, err := f.authority.ResumeCheck(ctx)
		require.NoError(t, err)

		if decision.Allowed() {
			completed, ok, err := f.ephemeral.Get(ctx, core.KeyMFACompletedThisSession)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, core.MarkerTrue, completed)

			v, ok, err := f.durable.Get(ctx, core.KeyMFAVerifiedAt)
			require.NoError(t, err)
			require.True(t, ok)
			verifiedAt, err := core.ParseInstant(v)
			require.NoError(t, err)
			assert.LessOrEqual(t, f.clock.Now().Sub(verifiedAt), 30*time.Minute)
		}

		f.clock.Advance(10 * time.Minute)
	}

	// Past the validity window the session must be gone.
	decision, err := f.authority.ResumeCheck(ctx)
	require.NoError(t, err)
	assert.False(t, decision.Allowed())
}
