package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/steveyegge/bbmigrate/internal/config"
	"github.com/steveyegge/bbmigrate/internal/convert"
	"github.com/steveyegge/bbmigrate/internal/debug"
	"github.com/steveyegge/bbmigrate/internal/migrate"
	"github.com/steveyegge/bbmigrate/internal/ratelimit"
)

// resolveRepos returns the Bitbucket and GitHub repositories from the
// positional arguments, falling back to bitbucket.repo and github.repo.
func resolveRepos(args []string) (bbRepo, ghRepo string, err error) {
	bbRepo = config.GetString("bitbucket.repo")
	ghRepo = config.GetString("github.repo")
	if len(args) > 0 {
		bbRepo = args[0]
	}
	if len(args) > 1 {
		ghRepo = args[1]
	}
	if bbRepo == "" {
		return "", "", fmt.Errorf("no Bitbucket repository given (argument or bitbucket.repo)")
	}
	if ghRepo == "" {
		return "", "", fmt.Errorf("no GitHub repository given (argument or github.repo)")
	}
	if strings.Count(bbRepo, "/") != 1 {
		return "", "", fmt.Errorf("invalid Bitbucket repository %q: want workspace/slug", bbRepo)
	}
	return bbRepo, ghRepo, nil
}

// githubToken reads github.token, then GITHUB_TOKEN.
func githubToken() string {
	if t := config.GetString("github.token"); t != "" {
		return t
	}
	return os.Getenv("GITHUB_TOKEN")
}

// loadContentConfig loads the templates file named by the templates
// setting, or the built-in defaults.
func loadContentConfig() (*config.MigrationConfig, error) {
	path := config.GetString("templates")
	if path == "" {
		return config.DefaultMigrationConfig(), nil
	}
	cfg, err := config.LoadMigrationConfig(path)
	if err != nil {
		return nil, err
	}
	debug.Logf("loaded templates from %s\n", path)
	return cfg, nil
}

// loadUserMap merges the users-file setting with --map-user values.
// Command-line mappings win.
func loadUserMap(mappings []string) (map[string]string, error) {
	users := map[string]string{}
	if path := config.GetString("users-file"); path != "" {
		fromFile, err := config.LoadUserMap(path)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			users[k] = v
		}
	}
	if err := config.ParseUserMappings(users, mappings); err != nil {
		return nil, err
	}
	return users, nil
}

// attachmentFlags are the mutually exclusive attachment options.
type attachmentFlags struct {
	Mention bool   // --mention-attachments
	Wiki    bool   // --attachments-wiki
	Dir     string // --attachments-dir
}

// attachmentMode picks the rendering mode from the flags, falling back to
// the attachments.mode setting.
func attachmentMode(f attachmentFlags) (convert.AttachmentMode, error) {
	switch {
	case f.Wiki || f.Dir != "":
		return convert.AttachmentsLinked, nil
	case f.Mention:
		return convert.AttachmentsNames, nil
	}
	return convert.ParseAttachmentMode(config.GetString("attachments.mode"))
}

// driverOptions reads the comment and polling settings.
func driverOptions() (migrate.Options, error) {
	mode, err := migrate.ParseReconcileMode(config.GetString("comments.mode"))
	if err != nil {
		return migrate.Options{}, err
	}
	policy, err := migrate.ParseCommentPolicy(config.GetString("comments.on-error"))
	if err != nil {
		return migrate.Options{}, err
	}
	return migrate.Options{
		Reconcile:      mode,
		OnCommentError: policy,
		PollInterval:   config.GetDuration("poll.interval"),
		PollTimeout:    config.GetDuration("poll.timeout"),
	}, nil
}

var timeNow = time.Now

// newTransport builds the rate-governed transport from the rate.* and
// retry.* settings.
func newTransport(client ratelimit.Doer, clock ratelimit.Clock) *ratelimit.Transport {
	t := ratelimit.NewTransport(client, clock)
	t.Threshold = config.GetInt("rate.threshold")
	t.MaxWait = config.GetDuration("rate.max-wait")
	t.MinInterval = config.GetDuration("rate.min-interval")
	if n := config.GetInt("retry.max-attempts"); n > 0 {
		t.MaxAttempts = n
	}
	t.OnWait = reportWait
	return t
}

// reportWait tells the user about long suspensions. Pacing waits are
// routine and only logged.
func reportWait(ev ratelimit.WaitEvent) {
	switch ev.Reason {
	case ratelimit.WaitQuota:
		debug.PrintNormal("GitHub rate limit reached, waiting %s (resuming %s)\n",
			ev.Duration.Round(time.Second), humanize.Time(timeNow().Add(ev.Duration)))
	case ratelimit.WaitRetry:
		debug.PrintNormal("Request to %s failed (attempt %d), retrying in %s\n",
			ev.URL, ev.Attempt, ev.Duration.Round(time.Millisecond))
	default:
		debug.Logf("pacing %s before %s\n", ev.Duration, ev.URL)
	}
}
