package store

import (
	"context"
	"sync"
)

// MemorySnapshotStore keeps snapshots in process memory. Used by the CLI
// client and tests, where attempts do not need to outlive the process.
type MemorySnapshotStore struct {
	mu    sync.Mutex
	slots map[string]*Snapshot
}

// NewMemorySnapshotStore creates an empty in-memory store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{slots: make(map[string]*Snapshot)}
}

var _ SnapshotStore = (*MemorySnapshotStore)(nil)

func (s *MemorySnapshotStore) Reset(_ context.Context, userID, blockID string, remaining int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[userID] = &Snapshot{
		BlockID:   blockID,
		Answers:   make(map[string]string),
		Remaining: remaining,
	}
	return nil
}

func (s *MemorySnapshotStore) SaveRemaining(_ context.Context, userID string, remaining int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.slots[userID]; ok {
		snap.Remaining = remaining
	} else {
		s.slots[userID] = &Snapshot{Answers: make(map[string]string), Remaining: remaining}
	}
	return nil
}

func (s *MemorySnapshotStore) SaveAnswers(_ context.Context, userID string, answers map[string]string) error {
	copied := make(map[string]string, len(answers))
	for k, v := range answers {
		copied[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.slots[userID]; ok {
		snap.Answers = copied
	} else {
		s.slots[userID] = &Snapshot{Answers: copied}
	}
	return nil
}

func (s *MemorySnapshotStore) Load(_ context.Context, userID string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.slots[userID]
	if !ok {
		return nil, ErrNoSnapshot
	}

	answers := make(map[string]string, len(snap.Answers))
	for k, v := range snap.Answers {
		answers[k] = v
	}
	return &Snapshot{BlockID: snap.BlockID, Answers: answers, Remaining: snap.Remaining}, nil
}

func (s *MemorySnapshotStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, userID)
	return nil
}
