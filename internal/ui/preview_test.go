package ui

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/bbmigrate/internal/convert"
	"github.com/steveyegge/bbmigrate/internal/migrate"
	"github.com/steveyegge/bbmigrate/internal/types"
)

func TestFormatPreview(t *testing.T) {
	labels := types.NewLabelSet()
	labels.Add("bug")
	labels.Add("wontfix")
	p := &migrate.Preview{
		Position: 7,
		Issue: &convert.RenderedIssue{
			Title:     "Crash on save",
			Body:      "It crashes.",
			Labels:    labels,
			Milestone: "1.0",
			Assignee:  "octocat",
			Closed:    true,
			CreatedAt: time.Now().Add(-48 * time.Hour),
		},
		Notes: []string{"first note", "second note"},
	}

	got := FormatPreview(p, PreviewOptions{})
	assert.True(t, strings.HasPrefix(got, "## #7 Crash on save\n"))
	assert.Contains(t, got, "**state:** closed")
	assert.Contains(t, got, "**labels:** bug, wontfix")
	assert.Contains(t, got, "**milestone:** 1.0")
	assert.Contains(t, got, "**assignee:** @octocat")
	assert.Contains(t, got, "_created 2 days ago_")
	assert.Contains(t, got, "### 2 notes")
	assert.Less(t, strings.Index(got, "first note"), strings.Index(got, "second note"))
}

func TestFormatPreviewTruncatesLongBodies(t *testing.T) {
	lines := make([]string, 40)
	for i := range lines {
		lines[i] = "line " + strconv.Itoa(i+1)
	}
	p := &migrate.Preview{
		Position: 1,
		Issue:    &convert.RenderedIssue{Title: "Long", Body: strings.Join(lines, "\n"), Labels: types.NewLabelSet()},
	}

	short := FormatPreview(p, PreviewOptions{})
	assert.Contains(t, short, "lines hidden")
	assert.NotContains(t, short, "line 20\n")

	full := FormatPreview(p, PreviewOptions{Full: true})
	assert.Contains(t, full, "line 20\n")
	assert.NotContains(t, full, "hidden")
}

func TestFormatSummary(t *testing.T) {
	stats := &migrate.Stats{Start: 10, Created: 1500, Placeholders: 1, Notes: 2, NoteFailures: 3}
	got := FormatSummary(stats, 90*time.Second, false)
	assert.Contains(t, got, "Migrated 1,500 issues (1 placeholder) in 1m30s")
	assert.Contains(t, got, "resumed after issue 10")
	assert.Contains(t, got, "2 notes posted")
	assert.Contains(t, got, "3 notes could not be posted")

	dry := FormatSummary(&migrate.Stats{Created: 1, Notes: 1}, 0, true)
	assert.Contains(t, dry, "Previewed 1 issue\n")
	assert.Contains(t, dry, "1 note rendered")
}

func TestFormatAbort(t *testing.T) {
	got := FormatAbort(&migrate.AbortError{LastMigrated: 41, Partial: 42, Err: errors.New("boom")})
	assert.Contains(t, got, "Migration aborted: boom")
	assert.Contains(t, got, "last fully migrated issue: 41")
	assert.Contains(t, got, "issue 42 exists on GitHub")

	got = FormatAbort(&migrate.AbortError{LastMigrated: 3, Err: errors.New("x")})
	assert.NotContains(t, got, "exists on GitHub")
}

func TestPromptsRequireTerminal(t *testing.T) {
	if IsTerminal() {
		t.Skip("stdout is a terminal")
	}
	_, err := Confirm("go?", "")
	assert.ErrorIs(t, err, ErrNotInteractive)
	_, err = PromptSecret("token")
	assert.ErrorIs(t, err, ErrNotInteractive)
}
