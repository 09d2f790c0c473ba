package ports

import "context"

// KV is one storage tier: a flat string key-value map scoped to a single
// session. Absence is a first-class result, never an error. Implementations
// decide the lifetime: the durable tier survives process restart and is
// cleared only explicitly, the ephemeral tier dies with its session.
type KV interface {
	// Get returns the value under key, with ok reporting presence.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every key in this tier's scope.
	Clear(ctx context.Context) error
}
