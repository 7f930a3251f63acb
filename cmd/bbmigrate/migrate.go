package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/bbmigrate/internal/attachments"
	"github.com/steveyegge/bbmigrate/internal/bitbucket"
	"github.com/steveyegge/bbmigrate/internal/config"
	"github.com/steveyegge/bbmigrate/internal/convert"
	"github.com/steveyegge/bbmigrate/internal/debug"
	"github.com/steveyegge/bbmigrate/internal/github"
	"github.com/steveyegge/bbmigrate/internal/migrate"
	"github.com/steveyegge/bbmigrate/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate [bitbucket-repo] [github-repo]",
	GroupID: "migrate",
	Short:   "Migrate issues from a Bitbucket repository to GitHub",
	Long: `Migrate every issue of a Bitbucket repository into a GitHub repository.

Issues are read from the Bitbucket API, or from an export archive with
--export. Each issue is created through the GitHub issue import API in
order, so that Bitbucket issue N becomes GitHub issue #N. Missing Bitbucket
numbers are filled with closed placeholder issues.

The destination repository is the only record of progress: running the same
command again after an interruption continues after the highest existing
issue number. The repository should contain no issues or pull requests
other than those created by bbmigrate.

Settings can also come from bbmigrate.yaml or BBMIGRATE_* variables:
  github.token / BBMIGRATE_GITHUB_TOKEN / GITHUB_TOKEN
  bitbucket.user, bitbucket.password
  comments.mode, comments.on-error, rate.*, poll.*`,
	Example: `  bbmigrate migrate acme/widgets acme-gh/widgets --dry-run
  bbmigrate migrate acme/widgets acme-gh/widgets -m jdoe=janedoe --attachments-wiki
  bbmigrate migrate acme/widgets acme-gh/widgets --export widgets-issues.zip`,
	Args: cobra.MaximumNArgs(2),
	RunE: runMigrate,
}

// migrateFlags holds the flags that are not plain settings overrides.
type migrateFlags struct {
	dryRun             bool
	skip               int
	yes                bool
	full               bool
	noPager            bool
	mapUsers           []string
	skipAttributionFor string
	linkChangesets     bool
	mentionChanges     bool
	attachments        attachmentFlags
	linkPrefix         string
	gitSSHIdentity     string
}

var migrateOpts migrateFlags

func init() {
	f := migrateCmd.Flags()
	f.BoolVarP(&migrateOpts.dryRun, "dry-run", "n", false, "Read and render issues without creating anything on GitHub")
	f.IntVarP(&migrateOpts.skip, "skip", "f", 0, "Start after this Bitbucket issue number even if GitHub has fewer issues")
	f.BoolVarP(&migrateOpts.yes, "yes", "y", false, "Do not ask for confirmation")
	f.BoolVar(&migrateOpts.full, "full", false, "Dry run: show complete bodies instead of truncating")
	f.BoolVar(&migrateOpts.noPager, "no-pager", false, "Dry run: do not pipe the preview through a pager")
	f.StringArrayVarP(&migrateOpts.mapUsers, "map-user", "m", nil, "Map a Bitbucket user to a GitHub user, e.g. -m jdoe=janedoe (repeatable)")
	f.StringVar(&migrateOpts.skipAttributionFor, "skip-attribution-for", "", "Bitbucket user whose issues and comments need no attribution (usually your own)")
	f.BoolVar(&migrateOpts.linkChangesets, "link-changesets", false, "Link changeset references back to Bitbucket")
	f.BoolVar(&migrateOpts.mentionChanges, "mention-changes", false, "Post state and field changes as comments")
	f.BoolVar(&migrateOpts.attachments.Mention, "mention-attachments", false, "List attachment names in issue bodies")
	f.BoolVar(&migrateOpts.attachments.Wiki, "attachments-wiki", false, "Commit attachments to the GitHub wiki of the destination and link them")
	f.StringVar(&migrateOpts.attachments.Dir, "attachments-dir", "", "Copy attachments into this directory and link them")
	f.StringVar(&migrateOpts.linkPrefix, "attachments-link-prefix", "", "URL prefix for links to --attachments-dir files")
	f.StringVar(&migrateOpts.gitSSHIdentity, "git-ssh-identity", "", "SSH private key used to push to the wiki")
	migrateCmd.MarkFlagsMutuallyExclusive("mention-attachments", "attachments-wiki", "attachments-dir")

	// Settings overrides (see flagConfigKeys)
	f.String("bb-user", "", "Bitbucket username, for private repositories")
	f.String("export", "", "Read issues from a Bitbucket export archive instead of the API")
	f.String("use-config", "", "Templates and label translations file (see 'bbmigrate config init')")
	f.String("users-file", "", "TOML file with a [users] table of Bitbucket to GitHub user names")
	f.String("comments-mode", "", "How comments reach GitHub: separate (default) or embed")
	f.String("on-comment-error", "", "What a rejected comment does: skip (default) or abort")
	f.String("github-api-url", "", "GitHub API base URL (GitHub Enterprise)")
	f.String("bitbucket-api-url", "", "Bitbucket API base URL")
	f.Duration("poll-interval", 0, "Delay between import status checks")
	f.Duration("poll-timeout", 0, "Give up on an import that stays pending this long")
	f.Int("rate-threshold", 0, "Wait for the rate limit reset when this few calls remain")
	f.Duration("rate-max-wait", 0, "Abort instead of waiting longer than this for the rate limit")
	f.Duration("rate-min-interval", 0, "Minimum delay between GitHub API calls")
	f.Int("retry-max-attempts", 0, "Attempts for a request that fails transiently")

	rootCmd.AddCommand(migrateCmd)
}

var errCanceled = errors.New("migration canceled")

func runMigrate(cmd *cobra.Command, args []string) error {
	bbRepo, ghRepo, err := resolveRepos(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	begin := time.Now()
	res, err := runMigration(rootCtx, bbRepo, ghRepo, migrateOpts)
	if err != nil {
		return err
	}

	if jsonOutput {
		outputJSON(res.report())
		return nil
	}
	if migrateOpts.dryRun && len(res.previews) > 0 {
		if err := showPreviews(res.previews); err != nil {
			return err
		}
	}
	if !debug.IsQuiet() {
		_, _ = fmt.Fprint(out, ui.FormatSummary(res.stats, time.Since(begin), migrateOpts.dryRun))
		if unmapped := res.users.Unmapped(); len(unmapped) > 0 {
			debug.Logf("Bitbucket users without a GitHub account: %s\n", strings.Join(unmapped, ", "))
		}
	}
	return nil
}

// migrationResult is what a finished run reports.
type migrationResult struct {
	stats    *migrate.Stats
	previews []*migrate.Preview
	users    *github.UserDirectory
}

type previewJSON struct {
	Position  int       `json:"position"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Labels    []string  `json:"labels,omitempty"`
	Milestone string    `json:"milestone,omitempty"`
	Assignee  string    `json:"assignee,omitempty"`
	Closed    bool      `json:"closed"`
	CreatedAt time.Time `json:"created_at"`
	Notes     []string  `json:"notes,omitempty"`
}

func (r *migrationResult) report() map[string]interface{} {
	out := map[string]interface{}{"stats": r.stats}
	if len(r.previews) > 0 {
		items := make([]previewJSON, len(r.previews))
		for i, p := range r.previews {
			items[i] = previewJSON{
				Position:  p.Position,
				Title:     p.Issue.Title,
				Body:      p.Issue.Body,
				Labels:    p.Issue.Labels.Names(),
				Milestone: p.Issue.Milestone,
				Assignee:  p.Issue.Assignee,
				Closed:    p.Issue.Closed,
				CreatedAt: p.Issue.CreatedAt,
				Notes:     p.Notes,
			}
		}
		out["previews"] = items
	}
	return out
}

// runMigration wires the source, renderer, relocator and destination
// from the settings and runs the driver.
func runMigration(ctx context.Context, bbRepo, ghRepo string, f migrateFlags) (*migrationResult, error) {
	content, err := loadContentConfig()
	if err != nil {
		return nil, err
	}
	tmpl, err := convert.CompileTemplates(content.Templates)
	if err != nil {
		return nil, err
	}
	userMap, err := loadUserMap(f.mapUsers)
	if err != nil {
		return nil, err
	}
	mode, err := attachmentMode(f.attachments)
	if err != nil {
		return nil, err
	}
	opts, err := driverOptions()
	if err != nil {
		return nil, err
	}
	opts.DryRun = f.dryRun
	opts.Skip = f.skip
	opts.MentionChanges = f.mentionChanges

	warn := func(msg string) { warnf("%s", msg) }

	// GitHub
	token := githubToken()
	if token == "" && !f.dryRun {
		token, err = ui.PromptSecret("GitHub token for " + ghRepo)
		if err != nil {
			return nil, fmt.Errorf("no GitHub token: set github.token or GITHUB_TOKEN: %w", err)
		}
	}
	var gh *github.Client
	var repo *github.Repository
	if token != "" {
		if gh, err = newGitHubClient(token, ghRepo); err != nil {
			return nil, err
		}
	}
	if gh != nil && !f.dryRun {
		if repo, err = gh.VerifyRepository(ctx); err != nil {
			return nil, err
		}
		if budget, err := gh.RateLimit(ctx); err != nil {
			warn(fmt.Sprintf("could not read rate limit: %v", err))
		} else {
			debug.Logf("rate limit: %d/%d remaining\n", budget.Remaining, budget.Limit)
		}
	}

	// Bitbucket
	relocate := mode == convert.AttachmentsLinked && !f.dryRun
	src, closeSrc, err := openSource(ctx, bbRepo, relocate, warn)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeSrc() }()

	var prober github.UserProber
	if gh != nil {
		prober = gh
	}
	users := github.NewUserDirectory(prober, userMap)
	renderer := convert.NewRenderer(tmpl,
		convert.NewLabelTranslator(content.LabelTranslations, content.StatesAsLabels),
		users,
		convert.Options{
			Repo:           bbRepo,
			SkipUser:       f.skipAttributionFor,
			LinkChangesets: f.linkChangesets,
			Attachments:    mode,
			Mentions:       userMap,
		})

	var relocator *attachments.Relocator
	if relocate {
		store, closeStore, err := openStore(ctx, ghRepo, repo, f)
		if err != nil {
			return nil, err
		}
		defer func() { _ = closeStore() }()
		relocator = attachments.NewRelocator(store)
		relocator.OnWarning = warn
	}

	if !f.dryRun && !f.yes && !jsonOutput && ui.IsTerminal() {
		ok, err := ui.Confirm(
			fmt.Sprintf("Migrate issues from %s to %s?", bbRepo, ghRepo),
			"Issues are created through the import API and cannot be deleted afterwards.")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errCanceled
		}
	}

	var dest migrate.Destination
	if !f.dryRun {
		dest = github.NewDestination(gh)
	}
	driver := migrate.NewDriver(src, dest, renderer, opts)
	if relocator != nil {
		driver.Relocator = relocator
	}
	if prober != nil {
		driver.Users = users
	}
	driver.OnWarning = warn
	driver.OnMessage = func(msg string) {
		if !jsonOutput {
			debug.PrintNormal("%s\n", msg)
		}
	}

	res := &migrationResult{users: users}
	driver.OnPreview = func(p *migrate.Preview) { res.previews = append(res.previews, p) }

	stats, err := driver.Run(ctx)
	res.stats = stats
	if err != nil {
		return nil, err
	}
	return res, nil
}

func newGitHubClient(token, repo string) (*github.Client, error) {
	owner, name, err := github.ParseRepo(repo)
	if err != nil {
		return nil, err
	}
	c := github.NewClient(token, owner, name).WithBaseURL(config.GetString("github.api-url"))
	return c.WithTransport(newTransport(c.HTTPClient, nil)), nil
}

// openSource returns the export reader when bitbucket.export is set and
// the API reader otherwise.
func openSource(ctx context.Context, bbRepo string, withData bool, warn func(string)) (migrate.Source, func() error, error) {
	password := config.GetString("bitbucket.password")
	user := config.GetString("bitbucket.user")
	if user != "" && password == "" && ui.IsTerminal() {
		p, err := ui.PromptSecret("Bitbucket app password for " + user)
		if err != nil {
			return nil, nil, err
		}
		password = p
	}
	client := bitbucket.NewClient(user, password, bbRepo).WithBaseURL(config.GetString("bitbucket.api-url"))
	opts := bitbucket.Options{AttachmentData: withData, OnWarning: warn}

	if archive := config.GetString("bitbucket.export"); archive != "" {
		r, err := bitbucket.OpenExport(archive, opts)
		if err != nil {
			return nil, nil, err
		}
		if config.GetBool("bitbucket.lookup-users") {
			r.Users = client
		}
		debug.PrintNormal("Reading issues from %s\n", archive)
		return r, r.Close, nil
	}

	if err := client.CheckAccess(ctx); err != nil {
		return nil, nil, err
	}
	debug.PrintNormal("Reading issues from bitbucket.org/%s\n", bbRepo)
	return bitbucket.NewAPIReader(client, opts), func() error { return nil }, nil
}

// openStore prepares the attachment store selected by the flags.
func openStore(ctx context.Context, ghRepo string, repo *github.Repository, f migrateFlags) (attachments.Store, func() error, error) {
	if f.attachments.Dir != "" {
		return attachments.NewDirStore(f.attachments.Dir, f.linkPrefix), func() error { return nil }, nil
	}
	if repo != nil && !repo.HasWiki {
		return nil, nil, fmt.Errorf("%s has its wiki disabled; enable it or use --attachments-dir", ghRepo)
	}
	w, err := attachments.OpenWiki(ctx, attachments.WikiURL(ghRepo), f.gitSSHIdentity)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to clone the wiki (create its first page on GitHub first): %w", err)
	}
	return w, w.Close, nil
}

// showPreviews renders the dry-run previews as markdown through the pager.
func showPreviews(previews []*migrate.Preview) error {
	var b strings.Builder
	for i, p := range previews {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		b.WriteString(ui.FormatPreview(p, ui.PreviewOptions{Full: migrateOpts.full}))
	}
	return ui.ToPager(ui.RenderMarkdown(b.String()), ui.PagerOptions{NoPager: migrateOpts.noPager})
}
