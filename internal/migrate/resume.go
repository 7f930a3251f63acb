package migrate

import (
	"context"
	"fmt"
)

// HighestNumberer reports the highest item number on the destination.
type HighestNumberer interface {
	HighestIssueNumber(ctx context.Context) (int, error)
}

// Resumer derives the migration cursor from destination state.
type Resumer struct {
	dest HighestNumberer

	// Floor is the minimum start position (the --skip option).
	Floor int
}

// NewResumer creates a Resumer. A nil dest means an empty destination.
func NewResumer(dest HighestNumberer, floor int) *Resumer {
	return &Resumer{dest: dest, Floor: floor}
}

// DetermineStartPosition returns N such that source positions 1..N are
// already migrated. Pull requests count, as they share the issue number
// sequence.
func (r *Resumer) DetermineStartPosition(ctx context.Context) (int, error) {
	n := 0
	if r.dest != nil {
		highest, err := r.dest.HighestIssueNumber(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to determine resume position: %w", err)
		}
		n = highest
	}
	if r.Floor > n {
		n = r.Floor
	}
	return n, nil
}
