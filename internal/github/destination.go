package github

import (
	"context"
	"strings"

	"github.com/steveyegge/bbmigrate/internal/debug"
)

// Destination adapts a Client to the migration engine. It caches the
// repository's labels and milestones so each is created at most once.
type Destination struct {
	client *Client

	labels     map[string]bool // lower-cased names; nil until loaded
	milestones map[string]int  // title -> number; nil until loaded
}

// NewDestination wraps c.
func NewDestination(c *Client) *Destination {
	return &Destination{client: c}
}

// HighestIssueNumber returns the highest issue or pull request number.
func (d *Destination) HighestIssueNumber(ctx context.Context) (int, error) {
	return d.client.HighestIssueNumber(ctx)
}

// EnsureLabels creates every label in names that the repository lacks.
// GitHub compares label names case-insensitively.
func (d *Destination) EnsureLabels(ctx context.Context, names []string) error {
	if d.labels == nil {
		existing, err := d.client.ListLabels(ctx)
		if err != nil {
			return err
		}
		d.labels = make(map[string]bool, len(existing))
		for _, l := range existing {
			d.labels[strings.ToLower(l.Name)] = true
		}
	}
	for _, name := range names {
		key := strings.ToLower(name)
		if d.labels[key] {
			continue
		}
		if _, err := d.client.CreateLabel(ctx, name); err != nil {
			return err
		}
		debug.Logf("created label %q\n", name)
		d.labels[key] = true
	}
	return nil
}

// EnsureMilestone returns the number of the milestone titled title,
// creating it when missing. An empty title yields 0.
func (d *Destination) EnsureMilestone(ctx context.Context, title string) (int, error) {
	if title == "" {
		return 0, nil
	}
	if d.milestones == nil {
		existing, err := d.client.ListMilestones(ctx)
		if err != nil {
			return 0, err
		}
		d.milestones = make(map[string]int, len(existing))
		for _, m := range existing {
			d.milestones[m.Title] = m.Number
		}
	}
	if n, ok := d.milestones[title]; ok {
		return n, nil
	}
	m, err := d.client.CreateMilestone(ctx, title)
	if err != nil {
		return 0, err
	}
	debug.Logf("created milestone %q (#%d)\n", title, m.Number)
	d.milestones[title] = m.Number
	return m.Number, nil
}

// StartImport submits an import request.
func (d *Destination) StartImport(ctx context.Context, req *ImportRequest) (*ImportStatus, error) {
	return d.client.StartImport(ctx, req)
}

// ImportStatus polls an import handle.
func (d *Destination) ImportStatus(ctx context.Context, statusURL string) (*ImportStatus, error) {
	return d.client.ImportStatus(ctx, statusURL)
}

// AddComment posts body on issue number.
func (d *Destination) AddComment(ctx context.Context, number int, body string) error {
	_, err := d.client.AddComment(ctx, number, body)
	return err
}

// CloseIssue closes issue number.
func (d *Destination) CloseIssue(ctx context.Context, number int) error {
	return d.client.CloseIssue(ctx, number)
}
