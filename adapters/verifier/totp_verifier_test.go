package verifier

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclane/authgate/core"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func TestTOTPVerifierAcceptsCurrentCode(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	v := NewTOTPVerifier(SecretMap{"user-1": testSecret}).
		WithClock(func() time.Time { return now })

	code, err := totp.GenerateCode(testSecret, now.UTC())
	require.NoError(t, err)

	assert.NoError(t, v.Verify(context.Background(), "user-1", code))
}

func TestTOTPVerifierRejectsWrongCode(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	v := NewTOTPVerifier(SecretMap{"user-1": testSecret}).
		WithClock(func() time.Time { return now })

	err := v.Verify(context.Background(), "user-1", "000000")
	assert.ErrorIs(t, err, core.ErrCodeRejected)
}

func TestTOTPVerifierRejectsStaleCode(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	v := NewTOTPVerifier(SecretMap{"user-1": testSecret}).
		WithClock(func() time.Time { return now })

	// A code from five minutes ago falls outside the allowed skew.
	code, err := totp.GenerateCode(testSecret, now.Add(-5*time.Minute).UTC())
	require.NoError(t, err)

	err = v.Verify(context.Background(), "user-1", code)
	assert.ErrorIs(t, err, core.ErrCodeRejected)
}

func TestTOTPVerifierUnknownUserIndistinguishable(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	v := NewTOTPVerifier(SecretMap{}).
		WithClock(func() time.Time { return now })

	// Unknown enrollment collapses into the same rejection as a bad code.
	err := v.Verify(context.Background(), "ghost", "123456")
	assert.ErrorIs(t, err, core.ErrCodeRejected)
}
