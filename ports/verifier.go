package ports

import "context"

// Verifier validates a submitted second-factor code against a user's
// enrolled secret. A nil return means the code was accepted; any other
// result is a failure, including transport timeouts.
type Verifier interface {
	Verify(ctx context.Context, userID, code string) error
}
