package quota

import "context"

// Store is the durable mirror of the ledger. The ledger works correctly
// when a Store is permanently unreachable; persistence failures are a
// degraded mode, never an error surfaced to request callers.
type Store interface {
	// LoadAll returns every persisted usage record keyed by pool index.
	// Stale-day records may be included; the ledger discards them on
	// first use. An empty map is a valid "no usage yet" result.
	LoadAll(ctx context.Context) (map[int]Usage, error)

	// Save persists one key's usage record. Best effort: callers log and
	// swallow the returned error.
	Save(ctx context.Context, index int, u Usage) error
}

// MemoryStore is the no-op Store used when no durable backend is
// reachable. Usage then lives only in the ledger's own memory and is
// lost on restart.
type MemoryStore struct{}

// NewMemoryStore returns a Store that persists nothing.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LoadAll always reports no prior usage.
func (s *MemoryStore) LoadAll(ctx context.Context) (map[int]Usage, error) {
	return map[int]Usage{}, nil
}

// Save discards the record.
func (s *MemoryStore) Save(ctx context.Context, index int, u Usage) error {
	return nil
}
