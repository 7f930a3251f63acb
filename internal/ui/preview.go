package ui

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/steveyegge/bbmigrate/internal/migrate"
)

// PreviewOptions controls dry-run preview output.
type PreviewOptions struct {
	// Full disables body truncation (--full flag).
	Full bool
}

// FormatPreview renders one dry-run item as markdown.
func FormatPreview(p *migrate.Preview, opts PreviewOptions) string {
	issue := p.Issue
	var b strings.Builder

	fmt.Fprintf(&b, "## #%d %s\n\n", p.Position, issue.Title)

	state := "open"
	if issue.Closed {
		state = "closed"
	}
	meta := []string{"**state:** " + state}
	if names := issue.Labels.Names(); len(names) > 0 {
		meta = append(meta, "**labels:** "+strings.Join(names, ", "))
	}
	if issue.Milestone != "" {
		meta = append(meta, "**milestone:** "+issue.Milestone)
	}
	if issue.Assignee != "" {
		meta = append(meta, "**assignee:** @"+issue.Assignee)
	}
	b.WriteString(strings.Join(meta, " · "))
	b.WriteString("\n\n")
	if !issue.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "_created %s_\n\n", humanize.Time(issue.CreatedAt))
	}

	b.WriteString(previewBody(issue.Body, opts))
	b.WriteString("\n")

	if len(p.Notes) > 0 {
		fmt.Fprintf(&b, "\n### %s\n", humanize.Comma(int64(len(p.Notes)))+" "+plural(len(p.Notes), "note", "notes"))
		for _, n := range p.Notes {
			b.WriteString("\n---\n\n")
			b.WriteString(previewBody(n, opts))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func previewBody(body string, opts PreviewOptions) string {
	if opts.Full || !ShouldTruncate(body, DefaultMaxLines, 0) {
		return body
	}
	return TruncateLines(body, DefaultMaxLines, DefaultContextLines)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
