package migrate

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/steveyegge/bbmigrate/internal/config"
	"github.com/steveyegge/bbmigrate/internal/convert"
	"github.com/steveyegge/bbmigrate/internal/github"
	"github.com/steveyegge/bbmigrate/internal/ratelimit"
	"github.com/steveyegge/bbmigrate/internal/types"
)

// sliceSource yields fixed issues.
type sliceSource struct {
	issues  []*types.SourceIssue
	pos     int
	skipped int
}

func (s *sliceSource) Next(context.Context) (*types.SourceIssue, error) {
	if s.pos >= len(s.issues) {
		return nil, io.EOF
	}
	issue := s.issues[s.pos]
	s.pos++
	return issue, nil
}

func sourceOf(ids ...int) *sliceSource {
	s := &sliceSource{}
	for _, id := range ids {
		s.issues = append(s.issues, &types.SourceIssue{
			ID:        id,
			Title:     "Issue " + strconv.Itoa(id),
			Content:   "body " + strconv.Itoa(id),
			State:     types.StateNew,
			CreatedOn: time.Date(2012, 1, id, 0, 0, 0, 0, time.UTC),
			UpdatedOn: time.Date(2012, 1, id, 1, 0, 0, 0, time.UTC),
		})
	}
	return s
}

// fakeItem is one issue on the fake destination.
type fakeItem struct {
	req      *github.ImportRequest
	comments []string
	closed   bool
}

// fakeDest is an in-memory destination with GitHub's dense numbering.
type fakeDest struct {
	items []*fakeItem // number n at index n-1

	calls         []string
	pendingPolls  int // ImportStatus answers pending this many times
	polls         map[string]int
	failImport    bool
	badAssignee   string // imports assigned to this login fail validation
	outOfBandOnce bool // create an extra item before the next import
	commentErr    func(body string) error
	closeErr      error
	labels        map[string]bool
	milestones    map[string]int
}

func newFakeDest(existing int) *fakeDest {
	d := &fakeDest{polls: map[string]int{}, labels: map[string]bool{}, milestones: map[string]int{}}
	for i := 0; i < existing; i++ {
		d.items = append(d.items, &fakeItem{req: &github.ImportRequest{Issue: github.ImportIssue{Title: "seed"}}})
	}
	return d
}

func (d *fakeDest) HighestIssueNumber(context.Context) (int, error) {
	d.calls = append(d.calls, "highest")
	return len(d.items), nil
}

func (d *fakeDest) EnsureLabels(_ context.Context, names []string) error {
	for _, n := range names {
		if !d.labels[n] {
			d.labels[n] = true
			d.calls = append(d.calls, "label:"+n)
		}
	}
	return nil
}

func (d *fakeDest) EnsureMilestone(_ context.Context, title string) (int, error) {
	if title == "" {
		return 0, nil
	}
	if n, ok := d.milestones[title]; ok {
		return n, nil
	}
	n := len(d.milestones) + 1
	d.milestones[title] = n
	d.calls = append(d.calls, "milestone:"+title)
	return n, nil
}

func (d *fakeDest) StartImport(_ context.Context, req *github.ImportRequest) (*github.ImportStatus, error) {
	if d.outOfBandOnce {
		d.outOfBandOnce = false
		d.items = append(d.items, &fakeItem{req: &github.ImportRequest{Issue: github.ImportIssue{Title: "intruder"}}})
	}
	d.calls = append(d.calls, "import:"+req.Issue.Title)
	if d.failImport || (d.badAssignee != "" && req.Issue.Assignee == d.badAssignee) {
		return &github.ImportStatus{Status: github.ImportFailed, URL: "status/x", Errors: []github.ImportError{
			{Resource: "Issue", Field: "assignee", Code: "invalid", Value: "ghost"},
		}}, nil
	}
	d.items = append(d.items, &fakeItem{req: req, closed: req.Issue.Closed})
	return &github.ImportStatus{Status: github.ImportPending, URL: "status/" + strconv.Itoa(len(d.items))}, nil
}

func (d *fakeDest) ImportStatus(_ context.Context, statusURL string) (*github.ImportStatus, error) {
	d.polls[statusURL]++
	if d.polls[statusURL] <= d.pendingPolls {
		return &github.ImportStatus{Status: github.ImportPending}, nil
	}
	n := strings.TrimPrefix(statusURL, "status/")
	return &github.ImportStatus{
		Status:   github.ImportImported,
		IssueURL: "https://api.github.com/repos/o/r/issues/" + n,
	}, nil
}

func (d *fakeDest) AddComment(_ context.Context, number int, body string) error {
	if d.commentErr != nil {
		if err := d.commentErr(body); err != nil {
			return err
		}
	}
	d.calls = append(d.calls, fmt.Sprintf("comment:#%d", number))
	d.items[number-1].comments = append(d.items[number-1].comments, body)
	return nil
}

func (d *fakeDest) CloseIssue(_ context.Context, number int) error {
	if d.closeErr != nil {
		return d.closeErr
	}
	d.calls = append(d.calls, fmt.Sprintf("close:#%d", number))
	d.items[number-1].closed = true
	return nil
}

// imports returns the titles of every import call, in order.
func (d *fakeDest) imports() []string {
	var out []string
	for _, c := range d.calls {
		if strings.HasPrefix(c, "import:") {
			out = append(out, strings.TrimPrefix(c, "import:"))
		}
	}
	return out
}

func permanent(status int) error {
	return &ratelimit.Error{Kind: ratelimit.Permanent, Method: "POST", URL: "x", StatusCode: status, Body: []byte("nope")}
}

func newTestRenderer(t *testing.T) *convert.Renderer {
	t.Helper()
	return newModeRenderer(t, convert.AttachmentsNames)
}

func newModeRenderer(t *testing.T, mode convert.AttachmentMode) *convert.Renderer {
	t.Helper()
	tmpl, err := convert.CompileTemplates(config.DefaultTemplates())
	if err != nil {
		t.Fatalf("CompileTemplates: %v", err)
	}
	labels := convert.NewLabelTranslator(map[string]*string{"major": nil}, config.DefaultMigrationConfig().StatesAsLabels)
	return convert.NewRenderer(tmpl, labels, convert.MapDirectory{}, convert.Options{Repo: "team/repo", Attachments: mode})
}

func newTestDriver(t *testing.T, src Source, dest Destination, opts Options) (*Driver, *ratelimit.FakeClock) {
	t.Helper()
	d := NewDriver(src, dest, newTestRenderer(t), opts)
	clock := ratelimit.NewFakeClock(time.Unix(1_700_000_000, 0))
	d.Clock = clock
	return d, clock
}
