package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/steveyegge/bbmigrate/internal/config"
	"github.com/steveyegge/bbmigrate/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status [github-repo]",
	GroupID: "migrate",
	Short:   "Show where a migration into a GitHub repository would resume",
	Long: `Check the GitHub token and repository, show the remaining API quota and
the highest existing issue number. The next migration run starts after that
number.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusReport is the JSON form of `bbmigrate status`.
type statusReport struct {
	Repository     string    `json:"repository"`
	Token          string    `json:"token"`
	HasWiki        bool      `json:"has_wiki"`
	RateRemaining  int       `json:"rate_remaining"`
	RateLimit      int       `json:"rate_limit"`
	RateReset      time.Time `json:"rate_reset"`
	HighestNumber  int       `json:"highest_number"`
	NextSourceItem int       `json:"next_source_issue"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	repoName := config.GetString("github.repo")
	if len(args) > 0 {
		repoName = args[0]
	}
	if repoName == "" {
		return fmt.Errorf("no GitHub repository given (argument or github.repo)")
	}
	token := githubToken()
	if token == "" {
		return fmt.Errorf("github.token is not configured. Set it in bbmigrate.yaml or the GITHUB_TOKEN environment variable")
	}

	gh, err := newGitHubClient(token, repoName)
	if err != nil {
		return err
	}
	ctx := rootCtx
	repo, err := gh.VerifyRepository(ctx)
	if err != nil {
		return err
	}
	budget, err := gh.RateLimit(ctx)
	if err != nil {
		return err
	}
	highest, err := gh.HighestIssueNumber(ctx)
	if err != nil {
		return err
	}

	report := statusReport{
		Repository:     repo.FullName,
		Token:          maskToken(token),
		HasWiki:        repo.HasWiki,
		RateRemaining:  budget.Remaining,
		RateLimit:      budget.Limit,
		RateReset:      budget.Reset,
		HighestNumber:  highest,
		NextSourceItem: highest + 1,
	}
	if jsonOutput {
		outputJSON(report)
		return nil
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, ui.RenderCategory("GitHub"))
	_, _ = fmt.Fprintf(out, "%sRepository: %s\n", ui.TreeIndent, report.Repository)
	_, _ = fmt.Fprintf(out, "%sToken:      %s\n", ui.TreeIndent, report.Token)
	wiki := ui.RenderPassIcon() + " enabled"
	if !repo.HasWiki {
		wiki = ui.RenderWarnIcon() + " disabled (needed for --attachments-wiki)"
	}
	_, _ = fmt.Fprintf(out, "%sWiki:       %s\n", ui.TreeIndent, wiki)
	_, _ = fmt.Fprintf(out, "%sRate limit: %s of %s calls left, resets %s\n", ui.TreeIndent,
		humanize.Comma(int64(budget.Remaining)), humanize.Comma(int64(budget.Limit)), humanize.Time(budget.Reset))
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, ui.RenderCategory("Migration"))
	if highest == 0 {
		_, _ = fmt.Fprintf(out, "%sNo issues yet; a migration starts at Bitbucket issue 1\n", ui.TreeIndent)
	} else {
		_, _ = fmt.Fprintf(out, "%sHighest issue number: #%d\n", ui.TreeIndent, highest)
		_, _ = fmt.Fprintf(out, "%s%sthe next run resumes at Bitbucket issue %d\n", ui.TreeIndent, ui.TreeLast, highest+1)
	}
	return nil
}
