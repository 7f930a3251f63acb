package main

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/bbmigrate/internal/config"
	"github.com/steveyegge/bbmigrate/internal/convert"
	"github.com/steveyegge/bbmigrate/internal/migrate"
)

func resetConfig(t *testing.T) {
	t.Helper()
	config.ResetForTesting()
	t.Cleanup(config.ResetForTesting)
}

func TestResolveRepos(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		bbCfg, ghCfg   string
		wantBB, wantGH string
		wantErr        bool
	}{
		{name: "arguments", args: []string{"team/repo", "org/repo"}, wantBB: "team/repo", wantGH: "org/repo"},
		{name: "settings", bbCfg: "team/a", ghCfg: "org/b", wantBB: "team/a", wantGH: "org/b"},
		{name: "argument beats setting", args: []string{"team/x"}, bbCfg: "team/a", ghCfg: "org/b", wantBB: "team/x", wantGH: "org/b"},
		{name: "missing github", args: []string{"team/x"}, wantErr: true},
		{name: "missing both", wantErr: true},
		{name: "malformed bitbucket", args: []string{"repo", "org/repo"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetConfig(t)
			config.Set("bitbucket.repo", tt.bbCfg)
			config.Set("github.repo", tt.ghCfg)
			bb, gh, err := resolveRepos(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBB, bb)
			assert.Equal(t, tt.wantGH, gh)
		})
	}
}

func TestGitHubToken(t *testing.T) {
	resetConfig(t)
	t.Setenv("GITHUB_TOKEN", "from-env")
	assert.Equal(t, "from-env", githubToken())
	config.Set("github.token", "from-config")
	assert.Equal(t, "from-config", githubToken())
}

func TestAttachmentMode(t *testing.T) {
	resetConfig(t)
	tests := []struct {
		flags attachmentFlags
		want  convert.AttachmentMode
	}{
		{attachmentFlags{}, convert.AttachmentsNames},
		{attachmentFlags{Mention: true}, convert.AttachmentsNames},
		{attachmentFlags{Wiki: true}, convert.AttachmentsLinked},
		{attachmentFlags{Dir: "out"}, convert.AttachmentsLinked},
	}
	for _, tt := range tests {
		got, err := attachmentMode(tt.flags)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%+v", tt.flags)
	}

	config.Set("attachments.mode", "none")
	got, err := attachmentMode(attachmentFlags{})
	require.NoError(t, err)
	assert.Equal(t, convert.AttachmentsNone, got)
}

func TestDriverOptions(t *testing.T) {
	resetConfig(t)
	opts, err := driverOptions()
	require.NoError(t, err)
	assert.Equal(t, migrate.ReconcileSeparate, opts.Reconcile)
	assert.Equal(t, migrate.CommentsSkip, opts.OnCommentError)
	assert.Equal(t, 500*time.Millisecond, opts.PollInterval)
	assert.Equal(t, 5*time.Minute, opts.PollTimeout)

	config.Set("comments.mode", "embed")
	config.Set("comments.on-error", "abort")
	config.Set("poll.timeout", "30s")
	opts, err = driverOptions()
	require.NoError(t, err)
	assert.Equal(t, migrate.ReconcileEmbed, opts.Reconcile)
	assert.Equal(t, migrate.CommentsAbort, opts.OnCommentError)
	assert.Equal(t, 30*time.Second, opts.PollTimeout)

	config.Set("comments.on-error", "ignore")
	_, err = driverOptions()
	assert.Error(t, err)
}

func TestNewTransportFromSettings(t *testing.T) {
	resetConfig(t)
	config.Set("rate.threshold", "25")
	config.Set("rate.max-wait", "10m")
	config.Set("rate.min-interval", "2s")
	config.Set("retry.max-attempts", "7")

	tr := newTransport(http.DefaultClient, nil)
	assert.Equal(t, 25, tr.Threshold)
	assert.Equal(t, 10*time.Minute, tr.MaxWait)
	assert.Equal(t, 2*time.Second, tr.MinInterval)
	assert.Equal(t, 7, tr.MaxAttempts)
	assert.NotNil(t, tr.OnWait)
}

func TestLoadUserMap(t *testing.T) {
	resetConfig(t)
	path := filepath.Join(t.TempDir(), "users.toml")
	require.NoError(t, os.WriteFile(path, []byte("[users]\njdoe = \"janedoe\"\nfk = \"fkrull\"\n"), 0o600))
	config.Set("users-file", path)

	users, err := loadUserMap([]string{"fk=frank"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"jdoe": "janedoe", "fk": "frank"}, users)

	_, err = loadUserMap([]string{"nobody"})
	assert.Error(t, err)
}

func TestLoadContentConfigDefaults(t *testing.T) {
	resetConfig(t)
	cfg, err := loadContentConfig()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultMigrationConfig().StatesAsLabels, cfg.StatesAsLabels)

	config.Set("templates", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = loadContentConfig()
	assert.Error(t, err)
}
