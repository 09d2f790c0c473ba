package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"

	"github.com/seclane/authgate/core"
	"github.com/seclane/authgate/ports"
)

// SecretSource resolves a user's enrolled TOTP secret.
type SecretSource interface {
	Secret(ctx context.Context, userID string) (string, error)
}

// SecretMap is a static SecretSource, useful for tests and small deployments.
type SecretMap map[string]string

// Secret returns the secret enrolled for userID.
func (m SecretMap) Secret(ctx context.Context, userID string) (string, error) {
	secret, ok := m[userID]
	if !ok {
		return "", fmt.Errorf("no secret enrolled for %s", userID)
	}
	return secret, nil
}

// RedisSecretSource reads enrolled secrets from Redis.
type RedisSecretSource struct {
	client *redis.Client
	prefix string
}

// NewRedisSecretSource creates a secret source backed by Redis.
func NewRedisSecretSource(client *redis.Client) *RedisSecretSource {
	return &RedisSecretSource{
		client: client,
		prefix: "authgate:totp:",
	}
}

// Secret returns the secret enrolled for userID.
func (s *RedisSecretSource) Secret(ctx context.Context, userID string) (string, error) {
	secret, err := s.client.Get(ctx, s.prefix+userID).Result()
	if err != nil {
		return "", fmt.Errorf("failed to load secret for %s: %w", userID, err)
	}
	return secret, nil
}

// TOTPVerifier validates time-based one-time codes. Every failure mode,
// including an unresolvable secret, collapses into a rejected code so the
// caller learns nothing about enrollment state.
type TOTPVerifier struct {
	secrets SecretSource
	now     func() time.Time
}

// NewTOTPVerifier creates a verifier reading secrets from the given source.
func NewTOTPVerifier(secrets SecretSource) *TOTPVerifier {
	return &TOTPVerifier{
		secrets: secrets,
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (v *TOTPVerifier) WithClock(now func() time.Time) *TOTPVerifier {
	v.now = now
	return v
}

var _ ports.Verifier = (*TOTPVerifier)(nil)

// Verify checks a submitted code against the user's enrolled secret.
func (v *TOTPVerifier) Verify(ctx context.Context, userID, code string) error {
	secret, err := v.secrets.Secret(ctx, userID)
	if err != nil {
		return core.ErrCodeRejected
	}

	valid, err := totp.ValidateCustom(code, secret, v.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		return core.ErrCodeRejected
	}

	return nil
}
