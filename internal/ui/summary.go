package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/steveyegge/bbmigrate/internal/migrate"
)

// FormatSummary renders the end-of-run report.
func FormatSummary(stats *migrate.Stats, elapsed time.Duration, dryRun bool) string {
	var b strings.Builder

	verb := "Migrated"
	if dryRun {
		verb = "Previewed"
	}
	line := fmt.Sprintf("%s %s %s", verb, humanize.Comma(int64(stats.Created)), plural(stats.Created, "issue", "issues"))
	if stats.Placeholders > 0 {
		line += fmt.Sprintf(" (%s %s)", humanize.Comma(int64(stats.Placeholders)), plural(stats.Placeholders, "placeholder", "placeholders"))
	}
	if elapsed > 0 {
		line += " in " + elapsed.Round(time.Second).String()
	}
	fmt.Fprintf(&b, "%s %s\n", RenderPassIcon(), line)

	if stats.Start > 0 {
		fmt.Fprintf(&b, "%s%s\n", TreeIndent, RenderMuted(fmt.Sprintf("resumed after issue %d", stats.Start)))
	}
	if stats.Notes > 0 {
		fmt.Fprintf(&b, "%s%s %s %s\n", TreeIndent, humanize.Comma(int64(stats.Notes)), plural(stats.Notes, "note", "notes"), postedOrRendered(dryRun))
	}
	if stats.AttachmentLinks > 0 {
		fmt.Fprintf(&b, "%s%s attachment %s\n", TreeIndent, humanize.Comma(int64(stats.AttachmentLinks)), plural(stats.AttachmentLinks, "link", "links"))
	}
	if stats.NoteFailures > 0 {
		fmt.Fprintf(&b, "%s%s %s\n", TreeIndent, RenderWarnIcon(),
			RenderWarn(fmt.Sprintf("%d %s could not be posted", stats.NoteFailures, plural(stats.NoteFailures, "note", "notes"))))
	}
	return b.String()
}

func postedOrRendered(dryRun bool) string {
	if dryRun {
		return "rendered"
	}
	return "posted"
}

// FormatAbort renders an aborted run with the position to resume from.
func FormatAbort(err *migrate.AbortError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", RenderFailIcon(), RenderFail("Migration aborted: "+err.Err.Error()))
	fmt.Fprintf(&b, "%s%s\n", TreeLast, fmt.Sprintf("last fully migrated issue: %d", err.LastMigrated))
	if err.Partial > 0 {
		fmt.Fprintf(&b, "%s%s\n", TreeLast, RenderWarn(fmt.Sprintf("issue %d exists on GitHub but its comments or state are incomplete", err.Partial)))
	}
	b.WriteString(RenderMuted("Run the same command again to resume.") + "\n")
	return b.String()
}
