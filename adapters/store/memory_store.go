package store

import (
	"context"
	"sync"

	"github.com/seclane/authgate/ports"
)

// MemoryStore is an in-memory implementation of one storage tier. It backs
// the ephemeral tier in production and both tiers in tests.
type MemoryStore struct {
	values map[string]string
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory tier.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

var _ ports.KV = (*MemoryStore)(nil)

// Get returns the value under key, with ok reporting presence.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

// Delete removes key. Absent keys are not an error.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Clear removes every key in the tier.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = make(map[string]string)
	return nil
}

// EphemeralTiers hands out one in-memory tier per session and destroys it
// when the session ends. This is the server-side rendition of storage that
// survives reloads of a running session but not the session's death.
type EphemeralTiers struct {
	tiers map[string]*MemoryStore
	mu    sync.Mutex
}

// NewEphemeralTiers creates an empty tier registry.
func NewEphemeralTiers() *EphemeralTiers {
	return &EphemeralTiers{
		tiers: make(map[string]*MemoryStore),
	}
}

// Tier returns the ephemeral tier for a session, creating it on first use.
func (e *EphemeralTiers) Tier(sessionID string) ports.KV {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tiers[sessionID]
	if !ok {
		t = NewMemoryStore()
		e.tiers[sessionID] = t
	}
	return t
}

// Drop destroys a session's ephemeral tier.
func (e *EphemeralTiers) Drop(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.tiers, sessionID)
}
