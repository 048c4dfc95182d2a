package store

import (
	"context"
	"sync"

	"github.com/atmx/adledger/internal/model"
)

// MemoryStore implements Store with an in-memory state. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.Mutex
	state    *model.State
	commits   int
	failNext  error
	failAfter error
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: model.NewState()}
}

func (s *MemoryStore) Load(_ context.Context) (*model.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), nil
}

func (s *MemoryStore) Commit(ctx context.Context, change model.Change, hook Hook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	if err := s.failAfter; err != nil {
		s.failAfter = nil
		return err
	}
	s.state.Apply(change)
	s.commits++
	return nil
}

// FailNextCommit makes the next Commit return err before running its hook.
func (s *MemoryStore) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// FailNextCommitAfterHook makes the next Commit run its hook and then return
// err without applying the change, as a store whose final write fails would.
func (s *MemoryStore) FailNextCommitAfterHook(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = err
}

// Commits returns the number of successful commits.
func (s *MemoryStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}
