package github

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProber struct {
	known map[string]bool
	calls []string
	err   error
}

func (s *stubProber) UserExists(_ context.Context, login string) (bool, error) {
	s.calls = append(s.calls, login)
	if s.err != nil {
		return false, s.err
	}
	return s.known[login], nil
}

func TestUserDirectory(t *testing.T) {
	prober := &stubProber{known: map[string]bool{"alice": true}}
	dir := NewUserDirectory(prober, map[string]string{"bob_bb": "bob-gh"})
	ctx := context.Background()

	require.NoError(t, dir.Resolve(ctx, "alice", "bob_bb", "carol", "", "alice"))
	require.NoError(t, dir.Resolve(ctx, "carol"))

	assert.Equal(t, []string{"alice", "carol"}, prober.calls, "each unmapped name probed once")

	gh, ok := dir.Lookup("bob_bb")
	assert.True(t, ok)
	assert.Equal(t, "bob-gh", gh)

	gh, ok = dir.Lookup("alice")
	assert.True(t, ok)
	assert.Equal(t, "alice", gh)

	_, ok = dir.Lookup("carol")
	assert.False(t, ok)
	_, ok = dir.Lookup("never-resolved")
	assert.False(t, ok)

	assert.Equal(t, []string{"carol"}, dir.Unmapped())
}

func TestUserDirectoryProbeError(t *testing.T) {
	dir := NewUserDirectory(&stubProber{err: errors.New("boom")}, nil)
	err := dir.Resolve(context.Background(), "alice")
	require.Error(t, err)

	_, ok := dir.Lookup("alice")
	assert.False(t, ok)
}

func TestUserDirectoryWithoutProber(t *testing.T) {
	dir := NewUserDirectory(nil, map[string]string{"x": "y"})
	require.NoError(t, dir.Resolve(context.Background(), "alice"))
	gh, ok := dir.Lookup("x")
	assert.True(t, ok)
	assert.Equal(t, "y", gh)
}
