// Package convert turns Bitbucket issues, comments and change sets into
// GitHub issue bodies and label sets. Nothing in this package performs I/O;
// user lookups go through a UserDirectory that callers resolve ahead of
// rendering.
package convert

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/steveyegge/bbmigrate/internal/types"
)

// Sep is the separator substituted for {sep}.
var Sep = strings.Repeat("-", 40)

// Placeholder issue text, used to keep destination numbering aligned.
const (
	PlaceholderTitle = "dummy issue"
	PlaceholderBody  = "filler issue created by bbmigrate"
)

// UserDirectory resolves a Bitbucket username to a GitHub login.
type UserDirectory interface {
	Lookup(bbUsername string) (ghLogin string, ok bool)
}

// MapDirectory is a UserDirectory backed by an explicit map.
type MapDirectory map[string]string

// Lookup implements UserDirectory.
func (m MapDirectory) Lookup(name string) (string, bool) {
	gh, ok := m[name]
	return gh, ok && gh != ""
}

// AttachmentMode selects how attachments are listed in an issue body.
type AttachmentMode string

const (
	AttachmentsNone   AttachmentMode = "none"
	AttachmentsNames  AttachmentMode = "names"
	AttachmentsLinked AttachmentMode = "relocate"
)

// ParseAttachmentMode validates a mode from configuration.
func ParseAttachmentMode(s string) (AttachmentMode, error) {
	switch m := AttachmentMode(s); m {
	case AttachmentsNone, AttachmentsNames, AttachmentsLinked:
		return m, nil
	case "":
		return AttachmentsNames, nil
	}
	return "", fmt.Errorf("invalid attachments mode %q (want none, names or relocate)", s)
}

// AttachmentLink is an attachment name with the link it was relocated to.
// An empty Link means relocation failed or was not attempted.
type AttachmentLink struct {
	Name string
	Link string
}

// Options control rendering.
type Options struct {
	// Repo is the Bitbucket repository, owner/name.
	Repo string
	// SkipUser is the Bitbucket username whose own items render with the
	// *_skip_user templates.
	SkipUser       string
	LinkChangesets bool
	Attachments    AttachmentMode
	// Mentions maps @mentions to GitHub logins; only explicit mappings are
	// rewritten.
	Mentions map[string]string
}

// Renderer renders source records with a compiled template set.
type Renderer struct {
	tmpl   *Templates
	labels *LabelTranslator
	users  UserDirectory
	links  *LinkRewriter
	opts   Options
}

// NewRenderer creates a renderer. users may be nil, in which case no GitHub
// badges are produced.
func NewRenderer(tmpl *Templates, labels *LabelTranslator, users UserDirectory, opts Options) *Renderer {
	if users == nil {
		users = MapDirectory(nil)
	}
	if opts.Attachments == "" {
		opts.Attachments = AttachmentsNames
	}
	return &Renderer{tmpl: tmpl, labels: labels, users: users, links: NewLinkRewriter(opts.Repo), opts: opts}
}

// RenderedIssue is the destination-ready form of a source issue.
type RenderedIssue struct {
	Title     string
	Body      string
	Labels    *types.LabelSet
	Milestone string
	Assignee  string
	Closed    bool
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  time.Time
}

// RenderIssue renders issue with the given attachment links.
func (r *Renderer) RenderIssue(issue *types.SourceIssue, attachments []AttachmentLink) *RenderedIssue {
	if issue.Placeholder {
		return &RenderedIssue{
			Title:  PlaceholderTitle,
			Body:   PlaceholderBody,
			Labels: types.NewLabelSet(),
			Closed: true,
		}
	}

	tmpl := r.tmpl.Issue
	if r.isSkipUser(issue.Reporter) {
		tmpl = r.tmpl.IssueSkipUser
	}
	body := tmpl.Execute(map[string]string{
		"reporter":    r.FormatUser(issue.Reporter),
		"content":     r.convertText(issue.Content),
		"attachments": r.attachmentBlock(attachments),
		"id":          strconv.Itoa(issue.ID),
		"repo":        r.opts.Repo,
		"sep":         Sep,
	})

	out := &RenderedIssue{
		Title:     issue.Title,
		Body:      body,
		Labels:    r.labels.IssueLabels(issue),
		Milestone: issue.Milestone,
		Closed:    issue.IsClosed(),
		CreatedAt: issue.CreatedOn,
		UpdatedAt: issue.UpdatedOn,
	}
	if issue.Assignee != nil {
		if gh, ok := r.opts.Mentions[issue.Assignee.Username]; ok {
			out.Assignee = gh
		}
	}
	if out.Closed {
		out.ClosedAt = issue.ClosedOn()
	}
	return out
}

// RenderComment renders a comment body.
func (r *Renderer) RenderComment(c *types.SourceComment) string {
	tmpl := r.tmpl.Comment
	if r.isSkipUser(c.User) {
		tmpl = r.tmpl.CommentSkipUser
	}
	return tmpl.Execute(map[string]string{
		"author":  r.FormatUser(c.User),
		"content": r.convertText(c.Content),
		"sep":     Sep,
	})
}

// RenderChange renders a change set as a comment body. It returns "" when
// nothing in the change is worth reporting. last marks the issue's final
// change; its close transition is left out because the migrated issue is
// closed by the import itself.
func (r *Renderer) RenderChange(c *types.SourceChange, last bool) string {
	lines := r.changeLines(c, last)
	if len(lines) == 0 {
		return ""
	}
	return r.tmpl.Change.Execute(map[string]string{
		"author":  r.FormatUser(c.User),
		"changes": strings.Join(lines, "\n"),
		"sep":     Sep,
	})
}

// FormatUser renders a user reference with its Bitbucket and GitHub badges.
// A nil user renders as "Anonymous".
func (r *Renderer) FormatUser(u *types.SourceUser) string {
	if u == nil {
		return "Anonymous"
	}
	if u.Username == "" {
		return u.Name()
	}
	gh, ok := r.users.Lookup(u.Username)
	ghBadge := ""
	if ok {
		ghBadge = r.githubBadge(gh)
	}
	return strings.TrimSpace(r.tmpl.User.Execute(map[string]string{
		"display_name":  u.Name(),
		"bb_username":   u.Username,
		"gh_username":   gh,
		"bb_user_badge": r.bitbucketBadge(u.Username),
		"gh_user_badge": ghBadge,
	}))
}

func (r *Renderer) bitbucketBadge(name string) string {
	return strings.TrimSpace(r.tmpl.BitbucketUsername.Execute(map[string]string{"bb_user": name}))
}

func (r *Renderer) githubBadge(login string) string {
	return strings.TrimSpace(r.tmpl.GitHubUsername.Execute(map[string]string{"gh_user": login}))
}

func (r *Renderer) isSkipUser(u *types.SourceUser) bool {
	return u != nil && r.opts.SkipUser != "" && u.Username == r.opts.SkipUser
}

func (r *Renderer) convertText(content string) string {
	content = ConvertChangesets(content, r.opts.Repo, r.opts.LinkChangesets)
	content = ConvertCreoleBraces(content)
	content = r.links.Rewrite(content)
	return ConvertMentions(content, r.opts.Mentions, r.bitbucketBadge)
}

func (r *Renderer) attachmentBlock(links []AttachmentLink) string {
	if len(links) == 0 || r.opts.Attachments == AttachmentsNone {
		return ""
	}

	names := make([]string, len(links))
	linked := make([]string, len(links))
	anyLinked := false
	for i, a := range links {
		names[i] = a.Name
		if a.Link == "" {
			linked[i] = a.Name
			continue
		}
		anyLinked = true
		linked[i] = fmt.Sprintf("[%s](%s)", a.Name, a.Link)
	}

	if r.opts.Attachments == AttachmentsLinked && anyLinked {
		return r.tmpl.LinkedAttachments.Execute(map[string]string{
			"attachment_links": strings.Join(linked, " | "),
			"sep":              Sep,
		})
	}
	return r.tmpl.NamesOnlyAttachments.Execute(map[string]string{
		"attachment_names": strings.Join(names, ", "),
		"sep":              Sep,
	})
}

// changeFields are the Bitbucket fields a change may report on.
var changeFields = map[string]bool{
	"assignee": true, "state": true, "title": true, "kind": true, "milestone": true,
	"component": true, "priority": true, "version": true, "content": true, "attachment": true,
}

func (r *Renderer) changeLines(c *types.SourceChange, last bool) []string {
	added := types.NewLabelSet()
	removed := types.NewLabelSet()
	var fieldLines, statusLines, miscLines []string

	for _, field := range c.Fields() {
		if !changeFields[field] {
			continue
		}
		fc := c.Changes[field]

		switch field {
		case "attachment":
			miscLines = append(miscLines, "attached file "+fc.New)
			continue
		case "content":
			miscLines = append(miscLines, "edited description")
			continue
		}

		oldIsLabel := isLabelField(field) || (field == "state" && r.labels.IsStateLabel(fc.Old))
		newIsLabel := isLabelField(field) || (field == "state" && r.labels.IsStateLabel(fc.New))

		var oldVal, newVal string
		if oldIsLabel {
			if name, ok := r.labels.Translate(fc.Old); ok {
				removed.Add(name)
			}
		} else {
			oldVal = fc.Old
		}
		if newIsLabel {
			if name, ok := r.labels.Translate(fc.New); ok {
				added.Add(name)
			}
		} else {
			newVal = fc.New
		}

		if field == "state" {
			switch {
			case types.IsReopenTransition(fc.Old, fc.New):
				statusLines = append(statusLines, "changed **status** to reopened")
			case !last && types.IsCloseTransition(fc.Old, fc.New):
				statusLines = append(statusLines, "changed **status** to closed")
			}
			continue
		}
		if oldIsLabel && newIsLabel {
			continue
		}
		if line := formatFieldChange(field, oldVal, newVal); line != "" {
			fieldLines = append(fieldLines, line)
		}
	}

	// A label that is both removed and added did not change.
	for _, name := range removed.Names() {
		if added.Has(name) {
			removed.Remove(name)
			added.Remove(name)
		}
	}

	var lines []string
	if removed.Len() > 0 {
		lines = append(lines, "* removed labels: "+boldList(removed.Names()))
	}
	if added.Len() > 0 {
		lines = append(lines, "* added labels: "+boldList(added.Names()))
	}
	for _, group := range [][]string{fieldLines, statusLines, miscLines} {
		for _, l := range group {
			lines = append(lines, "* "+l)
		}
	}
	return lines
}

func formatFieldChange(field, from, to string) string {
	switch {
	case from != "" && to != "":
		return fmt.Sprintf(`changed **%s** from "%s" to "%s"`, field, from, to)
	case from != "":
		return fmt.Sprintf(`removed **%s** (was: "%s")`, field, from)
	case to != "":
		return fmt.Sprintf(`set **%s** to "%s"`, field, to)
	}
	return ""
}

func boldList(names []string) string {
	sort.Strings(names)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "**" + n + "**"
	}
	return strings.Join(out, ", ")
}

// FormatDate renders t the way the GitHub import API expects.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
