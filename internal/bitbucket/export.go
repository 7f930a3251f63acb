package bitbucket

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/steveyegge/bbmigrate/internal/types"
)

// exportDB is the subset of db-1.0.json the reader uses.
type exportDB struct {
	Issues      []exportIssue      `json:"issues"`
	Comments    []exportComment    `json:"comments"`
	Logs        []exportLog        `json:"logs"`
	Attachments []exportAttachment `json:"attachments"`
}

type exportIssue struct {
	ID        int     `json:"id"`
	Title     string  `json:"title"`
	Content   *string `json:"content"`
	Reporter  *string `json:"reporter"`
	Assignee  *string `json:"assignee"`
	Status    string  `json:"status"`
	Priority  string  `json:"priority"`
	Kind      string  `json:"kind"`
	Component *string `json:"component"`
	Version   *string `json:"version"`
	Milestone *string `json:"milestone"`
	CreatedOn string  `json:"created_on"`
	UpdatedOn string  `json:"updated_on"`
}

type exportComment struct {
	ID        int     `json:"id"`
	Issue     int     `json:"issue"`
	User      *string `json:"user"`
	Content   *string `json:"content"`
	CreatedOn string  `json:"created_on"`
	UpdatedOn string  `json:"updated_on"`
}

type exportLog struct {
	Issue       int     `json:"issue"`
	User        *string `json:"user"`
	Field       string  `json:"field"`
	ChangedFrom *string `json:"changed_from"`
	ChangedTo   *string `json:"changed_to"`
	CreatedOn   string  `json:"created_on"`
}

type exportAttachment struct {
	Issue    int    `json:"issue"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// exportFieldNames renames export log fields to their API names.
var exportFieldNames = map[string]string{"status": "state"}

// UserLookup resolves a username to a user with a display name.
type UserLookup interface {
	LookupUser(ctx context.Context, username string) (*types.SourceUser, error)
}

// ExportReader reads issues from a Bitbucket export archive.
type ExportReader struct {
	zr    *zip.ReadCloser
	files map[string]*zip.File
	db    *exportDB
	opts  Options

	// Users resolves display names. When nil the username is used.
	Users UserLookup

	issues      []exportIssue // sorted by id
	pos         int
	comments    map[int][]exportComment
	logs        map[int][]exportLog
	attachments map[int][]exportAttachment
}

// OpenExport opens an export archive and indexes its database.
func OpenExport(archive string, opts Options) (*ExportReader, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("failed to open export %s: %w", archive, err)
	}
	r := &ExportReader{zr: zr, opts: opts, files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		r.files[path.Clean(f.Name)] = f
	}
	if err := r.load(); err != nil {
		_ = zr.Close()
		return nil, err
	}
	return r, nil
}

func (r *ExportReader) load() error {
	f, ok := r.files[exportDBName]
	if !ok {
		return fmt.Errorf("export has no %s", exportDBName)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", exportDBName, err)
	}
	defer func() { _ = rc.Close() }()

	var db exportDB
	if err := json.NewDecoder(rc).Decode(&db); err != nil {
		return fmt.Errorf("failed to parse %s: %w", exportDBName, err)
	}
	r.db = &db

	r.issues = append([]exportIssue(nil), db.Issues...)
	sort.Slice(r.issues, func(a, b int) bool { return r.issues[a].ID < r.issues[b].ID })

	r.comments = make(map[int][]exportComment)
	for _, c := range db.Comments {
		if deref(c.Content) == "" {
			continue
		}
		r.comments[c.Issue] = append(r.comments[c.Issue], c)
	}
	r.logs = make(map[int][]exportLog)
	for _, l := range db.Logs {
		if deref(l.ChangedFrom) == "" && deref(l.ChangedTo) == "" {
			continue
		}
		r.logs[l.Issue] = append(r.logs[l.Issue], l)
	}
	r.attachments = make(map[int][]exportAttachment)
	for _, a := range db.Attachments {
		r.attachments[a.Issue] = append(r.attachments[a.Issue], a)
	}
	return nil
}

// Close releases the archive.
func (r *ExportReader) Close() error {
	return r.zr.Close()
}

// SkipTo makes the reader start after issue id.
func (r *ExportReader) SkipTo(id int) {
	r.pos = sort.Search(len(r.issues), func(i int) bool { return r.issues[i].ID > id })
}

// LookupUser resolves a username through Users, or returns it unchanged.
func (r *ExportReader) LookupUser(ctx context.Context, username string) (*types.SourceUser, error) {
	if username == "" {
		return nil, nil
	}
	if r.Users == nil {
		return &types.SourceUser{Username: username, DisplayName: username}, nil
	}
	return r.Users.LookupUser(ctx, username)
}

// Next returns the next issue, or io.EOF after the last one.
func (r *ExportReader) Next(ctx context.Context) (*types.SourceIssue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.pos >= len(r.issues) {
		return nil, io.EOF
	}
	raw := r.issues[r.pos]
	r.pos++

	issue, err := r.convertIssue(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("issue %d: %w", raw.ID, err)
	}
	return issue, nil
}

func (r *ExportReader) convertIssue(ctx context.Context, raw exportIssue) (*types.SourceIssue, error) {
	created, err := parseTime(raw.CreatedOn)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(raw.UpdatedOn)
	if err != nil {
		return nil, err
	}
	issue := &types.SourceIssue{
		ID:        raw.ID,
		Title:     raw.Title,
		Content:   deref(raw.Content),
		State:     raw.Status,
		Priority:  raw.Priority,
		Kind:      raw.Kind,
		Component: deref(raw.Component),
		Version:   deref(raw.Version),
		Milestone: deref(raw.Milestone),
		CreatedOn: created,
		UpdatedOn: updated,
	}
	if issue.Reporter, err = r.user(ctx, raw.Reporter); err != nil {
		return nil, err
	}
	if issue.Assignee, err = r.user(ctx, raw.Assignee); err != nil {
		return nil, err
	}
	if issue.Comments, err = r.issueComments(ctx, raw.ID); err != nil {
		return nil, err
	}
	if issue.Changes, err = r.issueChanges(ctx, raw.ID); err != nil {
		return nil, err
	}
	issue.Attachments = r.issueAttachments(raw.ID)
	return issue, nil
}

func (r *ExportReader) user(ctx context.Context, name *string) (*types.SourceUser, error) {
	if deref(name) == "" {
		return nil, nil
	}
	return r.LookupUser(ctx, *name)
}

// issueComments returns non-empty comments ordered by creation time.
func (r *ExportReader) issueComments(ctx context.Context, issueID int) ([]types.SourceComment, error) {
	recs := r.comments[issueID]
	out := make([]types.SourceComment, 0, len(recs))
	for _, c := range recs {
		created, err := parseTime(c.CreatedOn)
		if err != nil {
			return nil, fmt.Errorf("comment %d: %w", c.ID, err)
		}
		updated, err := parseTime(c.UpdatedOn)
		if err != nil {
			return nil, fmt.Errorf("comment %d: %w", c.ID, err)
		}
		user, err := r.user(ctx, c.User)
		if err != nil {
			return nil, err
		}
		out = append(out, types.SourceComment{
			ID:        c.ID,
			User:      user,
			Content:   deref(c.Content),
			CreatedOn: created,
			UpdatedOn: updated,
		})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedOn.Before(out[b].CreatedOn) })
	return out, nil
}

// issueChanges groups log entries made by one user at one instant into a
// single change.
func (r *ExportReader) issueChanges(ctx context.Context, issueID int) ([]types.SourceChange, error) {
	type entry struct {
		log exportLog
		at  int64
	}
	recs := r.logs[issueID]
	entries := make([]entry, 0, len(recs))
	for _, l := range recs {
		t, err := parseTime(l.CreatedOn)
		if err != nil {
			return nil, fmt.Errorf("log entry: %w", err)
		}
		entries = append(entries, entry{log: l, at: t.UnixNano()})
	}
	sort.SliceStable(entries, func(a, b int) bool { return entries[a].at < entries[b].at })

	var out []types.SourceChange
	for i := 0; i < len(entries); {
		first := entries[i]
		j := i
		ch := types.SourceChange{Changes: map[string]types.FieldChange{}}
		for j < len(entries) && entries[j].at == first.at && deref(entries[j].log.User) == deref(first.log.User) {
			l := entries[j].log
			field := l.Field
			if renamed, ok := exportFieldNames[field]; ok {
				field = renamed
			}
			ch.Changes[field] = types.FieldChange{Old: deref(l.ChangedFrom), New: deref(l.ChangedTo)}
			j++
		}
		created, _ := parseTime(first.log.CreatedOn)
		ch.CreatedOn = created
		user, err := r.user(ctx, first.log.User)
		if err != nil {
			return nil, err
		}
		ch.User = user
		out = append(out, ch)
		i = j
	}
	return out, nil
}

// issueAttachments renames duplicate file names to "name.N.ext" in export
// order, then orders attachments by archive path.
func (r *ExportReader) issueAttachments(issueID int) []types.SourceAttachment {
	recs := append([]exportAttachment(nil), r.attachments[issueID]...)
	if len(recs) == 0 {
		return nil
	}
	seen := make(map[string]int)
	for i := range recs {
		name := recs[i].Filename
		if n := seen[name]; n > 0 {
			ext := path.Ext(name)
			recs[i].Filename = strings.TrimSuffix(name, ext) + "." + strconv.Itoa(n) + ext
		}
		seen[name]++
	}
	sort.SliceStable(recs, func(a, b int) bool { return recs[a].Path < recs[b].Path })

	out := make([]types.SourceAttachment, 0, len(recs))
	for _, rec := range recs {
		a := types.SourceAttachment{Name: rec.Filename, IssueID: issueID}
		if r.opts.AttachmentData {
			a.Data, a.Err = r.readFile(rec.Path)
			if a.Err != nil {
				r.opts.warn("issue %d: attachment %q unreadable: %v", issueID, rec.Filename, a.Err)
			}
		}
		out = append(out, a)
	}
	return out
}

func (r *ExportReader) readFile(name string) ([]byte, error) {
	f, ok := r.files[path.Clean(name)]
	if !ok {
		return nil, fmt.Errorf("%s missing from export", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
