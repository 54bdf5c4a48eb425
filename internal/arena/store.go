package arena

import (
	"context"
	"sync"
)

// StateStore persists the arena as a single document.
//
// Load returns an empty state (zero WeekStart, Version 0) when nothing has been
// saved yet. Save must fail with ErrVersionConflict when the stored version no
// longer equals s.Version, and bump s.Version on success.
type StateStore interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
}

// MemoryStore keeps the arena in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	state   *State
	saves   int
	saveErr error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored state.
func (m *MemoryStore) Load(ctx context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		s := &State{}
		s.Normalize()
		return s, nil
	}
	return m.state.Clone(), nil
}

// Save stores a copy of s if its version is current.
func (m *MemoryStore) Save(ctx context.Context, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}

	var current int64
	if m.state != nil {
		current = m.state.Version
	}
	if s.Version != current {
		return ErrVersionConflict
	}

	s.Version++
	m.state = s.Clone()
	m.saves++
	return nil
}

// Saves returns the number of successful saves.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// FailSaves makes every later Save return err. A nil err restores normal saves.
func (m *MemoryStore) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}
