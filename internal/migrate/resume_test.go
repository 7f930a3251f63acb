package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedHighest struct {
	n   int
	err error
}

func (f fixedHighest) HighestIssueNumber(context.Context) (int, error) { return f.n, f.err }

func TestDetermineStartPosition(t *testing.T) {
	tests := []struct {
		name  string
		dest  HighestNumberer
		floor int
		want  int
	}{
		{"empty destination", fixedHighest{}, 0, 0},
		{"resume", fixedHighest{n: 7}, 0, 7},
		{"floor above destination", fixedHighest{n: 3}, 10, 10},
		{"destination above floor", fixedHighest{n: 12}, 10, 12},
		{"no destination", nil, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewResumer(tt.dest, tt.floor).DetermineStartPosition(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetermineStartPositionError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewResumer(fixedHighest{err: boom}, 0).DetermineStartPosition(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "resume position")
}
