package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with session-specific ones. The
// session ID rides in the jti claim, the user ID in the subject.
type SessionClaims struct {
	jwt.RegisteredClaims
	MFARequired bool `json:"mfa"`
}
