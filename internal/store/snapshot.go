package store

import (
	"context"
	"errors"
)

// ErrNoSnapshot is returned by Load when the user has no persisted attempt.
var ErrNoSnapshot = errors.New("no persisted quiz snapshot")

// Snapshot is the durably persisted state of one in-progress attempt:
// the active block, the answers given so far and the remaining seconds.
// There is exactly one snapshot slot per user, shared across all blocks.
type Snapshot struct {
	BlockID   string
	Answers   map[string]string
	Remaining int
}

// SnapshotStore is the local persistence adapter for quiz attempts. It
// exists so attempts survive process restarts: the in-memory session and the
// persisted snapshot converge within one answer-change or one timer tick.
type SnapshotStore interface {
	// Reset overwrites the slot with defaults for a new attempt: the given
	// remaining seconds, an empty answers map and the new active block.
	Reset(ctx context.Context, userID, blockID string, remaining int) error

	// SaveRemaining write-through persists the countdown value.
	SaveRemaining(ctx context.Context, userID string, remaining int) error

	// SaveAnswers persists the full answers map, replacing the stored one.
	SaveAnswers(ctx context.Context, userID string, answers map[string]string) error

	// Load returns the persisted snapshot, or ErrNoSnapshot if the slot is empty.
	Load(ctx context.Context, userID string) (*Snapshot, error)

	// Clear erases the slot. Called after a successful submission.
	Clear(ctx context.Context, userID string) error
}
