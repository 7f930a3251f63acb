package main

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/bbmigrate/internal/config"
	"github.com/steveyegge/bbmigrate/internal/convert"
	"github.com/steveyegge/bbmigrate/internal/migrate"
	"github.com/steveyegge/bbmigrate/internal/ratelimit"
)

const exportDB = `{
  "issues": [
    {"id": 3, "title": "Crash on save", "content": "It crashes.", "reporter": "alice", "status": "resolved",
     "priority": "major", "kind": "bug", "component": null, "version": null, "milestone": "1.0",
     "created_on": "2013-01-02T10:00:00+00:00", "updated_on": "2013-01-05T10:00:00+00:00"},
    {"id": 1, "title": "Add dark mode", "content": "Please.", "reporter": "jdoe",
     "status": "new", "priority": "minor", "kind": "enhancement", "component": null,
     "version": null, "milestone": null,
     "created_on": "2012-11-26T09:59:39+00:00", "updated_on": "2012-11-27T09:59:39+00:00"}
  ],
  "comments": [
    {"id": 10, "issue": 1, "user": "alice", "content": "+1 from me",
     "created_on": "2012-11-27T00:00:00+00:00", "updated_on": "2012-11-27T00:00:00+00:00"}
  ],
  "logs": [],
  "attachments": [
    {"issue": 1, "filename": "mockup.png", "path": "attachments/f00d"}
  ]
}`

func writeTestExport(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "issues.zip")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("db-1.0.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(exportDB))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func TestRunMigrationDryRunFromExport(t *testing.T) {
	resetConfig(t)
	t.Setenv("GITHUB_TOKEN", "")
	config.Set("bitbucket.export", writeTestExport(t))
	config.Set("bitbucket.lookup-users", false)

	res, err := runMigration(context.Background(), "acme/widgets", "acme-gh/widgets", migrateFlags{
		dryRun:   true,
		mapUsers: []string{"jdoe=janedoe"},
	})
	require.NoError(t, err)

	require.Len(t, res.previews, 3)
	for i, p := range res.previews {
		assert.Equal(t, i+1, p.Position)
	}
	assert.Equal(t, "Add dark mode", res.previews[0].Issue.Title)
	assert.Contains(t, res.previews[0].Issue.Body, "https://bitbucket.org/acme/widgets/issue/1")
	assert.Contains(t, res.previews[0].Issue.Body, "@janedoe")
	assert.Contains(t, res.previews[0].Issue.Body, "Attachments: mockup.png")
	assert.Len(t, res.previews[0].Notes, 1)
	assert.False(t, res.previews[0].Issue.Closed)

	assert.Equal(t, convert.PlaceholderTitle, res.previews[1].Issue.Title)
	assert.True(t, res.previews[1].Issue.Closed)

	assert.Equal(t, "Crash on save", res.previews[2].Issue.Title)
	assert.True(t, res.previews[2].Issue.Closed)
	assert.Equal(t, "1.0", res.previews[2].Issue.Milestone)

	assert.Equal(t, 3, res.stats.Created)
	assert.Equal(t, 1, res.stats.Placeholders)
	assert.Equal(t, 3, res.stats.LastMigrated)

	report := res.report()
	items, ok := report["previews"].([]previewJSON)
	require.True(t, ok)
	assert.Len(t, items, 3)
	assert.Equal(t, "Add dark mode", items[0].Title)
}

func TestRunMigrationRejectsBadTemplates(t *testing.T) {
	resetConfig(t)
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("comment_template: \"{nope}\"\n"), 0o600))
	config.Set("templates", path)

	_, err := runMigration(context.Background(), "acme/widgets", "acme-gh/widgets", migrateFlags{dryRun: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{nope}")
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&migrate.OutOfSyncError{Position: 4, Number: 5}, "out_of_sync"},
		{fmt.Errorf("issue 4: %w", &migrate.ImportFailedError{Position: 4}), "import_failed"},
		{fmt.Errorf("issue 9: %w", migrate.ErrPollTimeout), "poll_timeout"},
		{ratelimit.ErrWaitTooLong, "rate_limited"},
		{&ratelimit.Error{Kind: ratelimit.Permanent, StatusCode: 422}, "http_permanent"},
		{errors.New("boom"), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCode(tt.err), "%v", tt.err)
	}
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "(not set)", maskToken(""))
	assert.Equal(t, "****", maskToken("abc"))
	assert.Equal(t, "ghp_****", maskToken("ghp_0123456789"))
}
