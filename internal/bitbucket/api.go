package bitbucket

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/bbmigrate/internal/debug"
	"github.com/steveyegge/bbmigrate/internal/types"
)

// APIReader streams issues from the 2.0 REST API.
type APIReader struct {
	client *Client
	opts   Options

	after   int // only issues with id > after
	next    string
	started bool
	buf     []apiIssue
}

// NewAPIReader creates a reader over client's repository.
func NewAPIReader(client *Client, opts Options) *APIReader {
	return &APIReader{client: client, opts: opts}
}

// SkipTo makes the reader start after issue id. It must be called before
// the first Next.
func (r *APIReader) SkipTo(id int) {
	r.after = id
}

// LookupUser resolves a username through the API.
func (r *APIReader) LookupUser(ctx context.Context, username string) (*types.SourceUser, error) {
	return r.client.LookupUser(ctx, username)
}

// Next returns the next issue, or io.EOF after the last one.
func (r *APIReader) Next(ctx context.Context) (*types.SourceIssue, error) {
	for len(r.buf) == 0 {
		if r.started && r.next == "" {
			return nil, io.EOF
		}
		if err := r.fetchPage(ctx); err != nil {
			return nil, err
		}
	}
	raw := r.buf[0]
	r.buf = r.buf[1:]
	return r.complete(ctx, raw)
}

func (r *APIReader) fetchPage(ctx context.Context) error {
	urlStr := r.next
	if !r.started {
		params := url.Values{"sort": {"id"}}
		if r.after > 0 {
			params.Set("q", "id > "+strconv.Itoa(r.after))
		}
		urlStr = withQuery(r.client.issuesURL(), params)
		r.started = true
	}
	var p page[apiIssue]
	if err := r.client.getJSON(ctx, urlStr, &p); err != nil {
		return fmt.Errorf("failed to fetch issues: %w", err)
	}
	if p.PageLen > 0 && len(p.Values) > 0 {
		first := (p.Page-1)*p.PageLen + 1
		debug.Logf("retrieved issues %d to %d of %d\n", first, first+len(p.Values)-1, p.Size)
	}
	r.buf = p.Values
	r.next = p.Next
	if len(p.Values) == 0 {
		r.next = ""
	}
	return nil
}

// complete converts raw and fetches its comments, changes and attachments
// concurrently.
func (r *APIReader) complete(ctx context.Context, raw apiIssue) (*types.SourceIssue, error) {
	issue, err := convertAPIIssue(raw)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		comments, err := r.client.Comments(gctx, raw.ID)
		issue.Comments = comments
		return err
	})
	g.Go(func() error {
		changes, err := r.client.Changes(gctx, raw.ID)
		if err != nil && StatusCode(err) == http.StatusInternalServerError {
			// The changes endpoint fails for some issues while the rest
			// of the API works.
			r.opts.warn("issue %d: change log unavailable, continuing without it: %v", raw.ID, err)
			return nil
		}
		issue.Changes = changes
		return err
	})
	g.Go(func() error {
		atts, err := r.client.Attachments(gctx, raw.ID, r.opts.AttachmentData)
		issue.Attachments = atts
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, a := range issue.Attachments {
		if a.Err != nil {
			r.opts.warn("issue %d: attachment %q could not be downloaded: %v", raw.ID, a.Name, a.Err)
		}
	}
	return issue, nil
}

func convertAPIIssue(raw apiIssue) (*types.SourceIssue, error) {
	created, err := parseTime(raw.CreatedOn)
	if err != nil {
		return nil, fmt.Errorf("issue %d: %w", raw.ID, err)
	}
	updated, err := parseTime(raw.UpdatedOn)
	if err != nil {
		return nil, fmt.Errorf("issue %d: %w", raw.ID, err)
	}
	issue := &types.SourceIssue{
		ID:        raw.ID,
		Title:     raw.Title,
		Reporter:  raw.Reporter.toSource(),
		Assignee:  raw.Assignee.toSource(),
		State:     raw.State,
		Priority:  raw.Priority,
		Kind:      raw.Kind,
		Component: raw.Component.value(),
		Version:   raw.Version.value(),
		Milestone: raw.Milestone.value(),
		CreatedOn: created,
		UpdatedOn: updated,
	}
	if raw.Content != nil {
		issue.Content = raw.Content.Raw
	}
	return issue, nil
}
