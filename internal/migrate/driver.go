package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/steveyegge/bbmigrate/internal/attachments"
	"github.com/steveyegge/bbmigrate/internal/convert"
	"github.com/steveyegge/bbmigrate/internal/debug"
	"github.com/steveyegge/bbmigrate/internal/github"
	"github.com/steveyegge/bbmigrate/internal/ratelimit"
	"github.com/steveyegge/bbmigrate/internal/telemetry"
	"github.com/steveyegge/bbmigrate/internal/types"
)

// Polling defaults.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultPollTimeout  = 5 * time.Minute
)

// State is the driver's position in its state machine.
type State int

const (
	StateIdle State = iota
	StateResuming
	StateMigrating
	StateReconciling
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResuming:
		return "resuming"
	case StateMigrating:
		return "migrating"
	case StateReconciling:
		return "reconciling"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ReconcileMode selects how comments and change notes reach the
// destination.
type ReconcileMode string

const (
	// ReconcileSeparate posts each note after the import completes and
	// closes the issue last.
	ReconcileSeparate ReconcileMode = "separate"
	// ReconcileEmbed sends notes inside the import payload with their
	// original timestamps and imports closed issues closed.
	ReconcileEmbed ReconcileMode = "embed"
)

// ParseReconcileMode validates a mode name. "" selects separate.
func ParseReconcileMode(s string) (ReconcileMode, error) {
	switch ReconcileMode(s) {
	case "", ReconcileSeparate:
		return ReconcileSeparate, nil
	case ReconcileEmbed:
		return ReconcileEmbed, nil
	}
	return "", fmt.Errorf("invalid comments mode %q (valid: separate, embed)", s)
}

// CommentPolicy decides what a permanent failure on one note does.
type CommentPolicy string

const (
	CommentsSkip  CommentPolicy = "skip"
	CommentsAbort CommentPolicy = "abort"
)

// ParseCommentPolicy validates a policy name. "" selects skip.
func ParseCommentPolicy(s string) (CommentPolicy, error) {
	switch CommentPolicy(s) {
	case "", CommentsSkip:
		return CommentsSkip, nil
	case CommentsAbort:
		return CommentsAbort, nil
	}
	return "", fmt.Errorf("invalid comment error policy %q (valid: skip, abort)", s)
}

// Options configures a run.
type Options struct {
	Reconcile      ReconcileMode
	OnCommentError CommentPolicy
	MentionChanges bool // render change logs as notes
	DryRun         bool // render only, submit nothing
	Skip           int  // minimum start position
	PollInterval   time.Duration
	PollTimeout    time.Duration
}

// Preview is one rendered item of a dry run.
type Preview struct {
	Position int
	Issue    *convert.RenderedIssue
	Notes    []string
}

// Stats summarizes a run.
type Stats struct {
	Start           int `json:"start"`
	Created         int `json:"created"`
	Placeholders    int `json:"placeholders"`
	Notes           int `json:"notes"`
	NoteFailures    int `json:"note_failures"`
	LastMigrated    int `json:"last_migrated"`
	SkippedNotes    int `json:"skipped_notes,omitempty"`
	AttachmentLinks int `json:"attachment_links,omitempty"`
}

// Driver migrates a Source into a Destination.
type Driver struct {
	Source    Source
	Dest      Destination // may be nil in dry runs
	Renderer  *convert.Renderer
	Relocator Relocator    // nil lists attachments by name
	Users     UserResolver // optional
	Clock     ratelimit.Clock
	Options   Options

	// Callbacks for UI feedback (optional).
	OnMessage func(msg string)
	OnWarning func(msg string)
	OnPreview func(p *Preview)
	OnState   func(s State, position int)

	metrics *telemetry.MigrationMetrics
	state   State
}

// NewDriver creates a driver with default polling and policies.
func NewDriver(src Source, dest Destination, renderer *convert.Renderer, opts Options) *Driver {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.Reconcile == "" {
		opts.Reconcile = ReconcileSeparate
	}
	if opts.OnCommentError == "" {
		opts.OnCommentError = CommentsSkip
	}
	return &Driver{
		Source:   src,
		Dest:     dest,
		Renderer: renderer,
		Clock:    ratelimit.RealClock(),
		Options:  opts,
		metrics:  telemetry.NewMigrationMetrics(),
	}
}

// State returns the current state.
func (d *Driver) State() State { return d.state }

// note is a rendered comment or change, in timeline order.
type note struct {
	kind string // "comment" or "change"
	body string
	at   time.Time
}

// Run migrates every source item after the resume position. On failure
// the returned error is an *AbortError.
func (d *Driver) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if d.Dest == nil && !d.Options.DryRun {
		return stats, errors.New("no destination configured")
	}

	d.setState(StateResuming, 0)
	var numberer HighestNumberer
	if d.Dest != nil {
		numberer = d.Dest
	}
	start, err := NewResumer(numberer, d.Options.Skip).DetermineStartPosition(ctx)
	if err != nil {
		d.setState(StateAborted, 0)
		return stats, &AbortError{Err: err}
	}
	stats.Start = start
	stats.LastMigrated = start
	if start > 0 {
		d.msg("Destination holds %d issue(s); resuming at %d", start, start+1)
	}

	src := FillGaps(d.Source, start)
	for {
		if err := ctx.Err(); err != nil {
			d.setState(StateAborted, stats.LastMigrated)
			return stats, &AbortError{LastMigrated: stats.LastMigrated, Err: err}
		}
		issue, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			d.setState(StateAborted, stats.LastMigrated)
			return stats, &AbortError{LastMigrated: stats.LastMigrated, Err: fmt.Errorf("failed to read source: %w", err)}
		}

		partial, err := d.migrateOne(ctx, issue, stats)
		if err != nil {
			d.setState(StateAborted, issue.ID)
			return stats, &AbortError{LastMigrated: stats.LastMigrated, Partial: partial, Err: err}
		}
		stats.LastMigrated = issue.ID
	}

	d.setState(StateDone, stats.LastMigrated)
	return stats, nil
}

// migrateOne takes one item through Migrating and Reconciling. partial is
// the created number when reconciliation failed after creation.
func (d *Driver) migrateOne(ctx context.Context, issue *types.SourceIssue, stats *Stats) (partial int, err error) {
	ctx, span, began := d.metrics.StartItem(ctx, issue.ID, issue.Placeholder)
	defer func() { d.metrics.EndItem(ctx, span, began, err) }()

	d.setState(StateMigrating, issue.ID)

	if d.Users != nil && !issue.Placeholder {
		if err := d.Users.Resolve(ctx, userNames(issue)...); err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			d.warn("issue %d: user lookup failed, rendering without GitHub badges: %v", issue.ID, err)
		}
	}

	links := d.attachmentLinks(ctx, issue)
	for _, l := range links {
		if l.Link != "" {
			stats.AttachmentLinks++
		}
	}
	rendered := d.Renderer.RenderIssue(issue, links)
	notes := d.renderNotes(issue, stats)

	if d.Options.DryRun {
		d.preview(issue.ID, rendered, notes)
		d.count(issue, stats)
		return 0, nil
	}

	if names := rendered.Labels.Names(); len(names) > 0 {
		if err := d.Dest.EnsureLabels(ctx, names); err != nil {
			return 0, fmt.Errorf("issue %d: %w", issue.ID, err)
		}
	}
	milestone, err := d.Dest.EnsureMilestone(ctx, rendered.Milestone)
	if err != nil {
		return 0, fmt.Errorf("issue %d: %w", issue.ID, err)
	}

	var req *github.ImportRequest
	if d.Options.Reconcile == ReconcileEmbed {
		comments := make([]github.ImportComment, len(notes))
		for i, n := range notes {
			comments[i] = github.NewImportComment(n.body, n.at)
		}
		req = github.NewImportRequest(rendered, milestone, comments)
	} else {
		open := *rendered
		open.Closed = false
		req = github.NewImportRequest(&open, milestone, nil)
	}

	number, err := d.submitImport(ctx, issue.ID, req)
	if err != nil {
		return 0, err
	}
	d.count(issue, stats)
	if issue.Placeholder {
		d.msg("Imported placeholder for missing issue %d", issue.ID)
	} else {
		d.msg("Imported issue %d as #%d", issue.ID, number)
	}

	if d.Options.Reconcile == ReconcileEmbed {
		stats.Notes += len(notes)
		return 0, nil
	}

	d.setState(StateReconciling, issue.ID)
	for _, n := range notes {
		if err := d.postNote(ctx, number, n, stats); err != nil {
			return number, err
		}
	}
	if rendered.Closed {
		if err := d.Dest.CloseIssue(ctx, number); err != nil {
			if !d.skippable(ctx, err) {
				return number, err
			}
			d.warn("issue %d: could not close #%d: %v", issue.ID, number, err)
		}
	}
	return 0, nil
}

// submit imports one item and polls until the destination reports the
// outcome. The created number must equal pos.
// submitImport submits req and, when GitHub rejects nothing but the
// assignee, imports the issue again unassigned. A failed import creates no
// issue, so the retry keeps the numbering intact.
func (d *Driver) submitImport(ctx context.Context, pos int, req *github.ImportRequest) (int, error) {
	n, err := d.submit(ctx, pos, req)
	var failed *ImportFailedError
	if err == nil || req.Issue.Assignee == "" || !errors.As(err, &failed) || !failed.assigneeOnly() {
		return n, err
	}
	d.warn("issue %d: GitHub rejected assignee %q, importing it unassigned", pos, req.Issue.Assignee)
	unassigned := *req
	unassigned.Issue.Assignee = ""
	return d.submit(ctx, pos, &unassigned)
}

func (d *Driver) submit(ctx context.Context, pos int, req *github.ImportRequest) (int, error) {
	st, err := d.Dest.StartImport(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("failed to import issue %d: %w", pos, err)
	}
	statusURL := st.URL
	deadline := d.Clock.Now().Add(d.Options.PollTimeout)

	for {
		switch st.Status {
		case github.ImportImported:
			n := st.IssueNumber()
			if n != pos {
				return 0, &OutOfSyncError{Position: pos, Number: n}
			}
			return n, nil
		case github.ImportFailed:
			return 0, &ImportFailedError{Position: pos, Errors: st.Errors}
		}

		if !d.Clock.Now().Before(deadline) {
			return 0, fmt.Errorf("issue %d: %w after %s", pos, ErrPollTimeout, d.Options.PollTimeout)
		}
		if err := d.Clock.Sleep(ctx, d.Options.PollInterval); err != nil {
			return 0, err
		}
		st, err = d.Dest.ImportStatus(ctx, statusURL)
		if err != nil {
			return 0, fmt.Errorf("issue %d: %w", pos, err)
		}
		debug.Logf("issue %d import status: %s\n", pos, st.Status)
	}
}

func (d *Driver) postNote(ctx context.Context, number int, n note, stats *Stats) error {
	err := d.Dest.AddComment(ctx, number, n.body)
	if err == nil {
		stats.Notes++
		d.metrics.CommentPosted(ctx, n.kind)
		return nil
	}
	if !d.skippable(ctx, err) {
		return fmt.Errorf("failed to add %s to #%d: %w", n.kind, number, err)
	}
	stats.NoteFailures++
	d.metrics.CommentFailed(ctx, n.kind)
	d.warn("#%d: %s skipped: %v", number, n.kind, err)
	return nil
}

// skippable reports whether a failed sub-submission may be skipped. Only
// permanent failures are, and only under the skip policy.
func (d *Driver) skippable(ctx context.Context, err error) bool {
	return ctx.Err() == nil && d.Options.OnCommentError == CommentsSkip && ratelimit.IsPermanent(err)
}

func (d *Driver) attachmentLinks(ctx context.Context, issue *types.SourceIssue) []convert.AttachmentLink {
	if issue.Placeholder {
		return nil
	}
	if d.Relocator == nil {
		return attachments.Names(issue)
	}
	return d.Relocator.Relocate(ctx, issue)
}

// renderNotes renders the issue timeline. Changes that render to nothing
// are dropped.
func (d *Driver) renderNotes(issue *types.SourceIssue, stats *Stats) []note {
	timeline := issue.Timeline(d.Options.MentionChanges)
	lastChange := -1
	for i, e := range timeline {
		if e.Change != nil {
			lastChange = i
		}
	}
	notes := make([]note, 0, len(timeline))
	for i, e := range timeline {
		switch {
		case e.Comment != nil:
			notes = append(notes, note{kind: "comment", body: d.Renderer.RenderComment(e.Comment), at: e.At})
		case e.Change != nil:
			body := d.Renderer.RenderChange(e.Change, i == lastChange)
			if body == "" {
				stats.SkippedNotes++
				continue
			}
			notes = append(notes, note{kind: "change", body: body, at: e.At})
		}
	}
	return notes
}

func (d *Driver) preview(pos int, rendered *convert.RenderedIssue, notes []note) {
	if d.OnPreview == nil {
		return
	}
	p := &Preview{Position: pos, Issue: rendered, Notes: make([]string, len(notes))}
	for i, n := range notes {
		p.Notes[i] = n.body
	}
	d.OnPreview(p)
}

func (d *Driver) count(issue *types.SourceIssue, stats *Stats) {
	if issue.Placeholder {
		stats.Placeholders++
	}
	stats.Created++
}

// userNames lists the distinct usernames an issue refers to.
func userNames(issue *types.SourceIssue) []string {
	seen := map[string]bool{}
	var names []string
	add := func(u *types.SourceUser) {
		if u == nil || u.Username == "" || seen[u.Username] {
			return
		}
		seen[u.Username] = true
		names = append(names, u.Username)
	}
	add(issue.Reporter)
	add(issue.Assignee)
	for i := range issue.Comments {
		add(issue.Comments[i].User)
	}
	for i := range issue.Changes {
		add(issue.Changes[i].User)
	}
	return names
}

func (d *Driver) setState(s State, pos int) {
	d.state = s
	debug.Logf("driver: %s (%d)\n", s, pos)
	if d.OnState != nil {
		d.OnState(s, pos)
	}
}

func (d *Driver) msg(format string, args ...interface{}) {
	if d.OnMessage != nil {
		d.OnMessage(fmt.Sprintf(format, args...))
	}
}

func (d *Driver) warn(format string, args ...interface{}) {
	if d.OnWarning != nil {
		d.OnWarning(fmt.Sprintf(format, args...))
	}
}
