package convert

import (
	"fmt"
	"strings"

	"github.com/steveyegge/bbmigrate/internal/config"
)

// TemplateError reports a malformed template. It is returned by
// CompileTemplates before any item is migrated.
type TemplateError struct {
	Template string // config key, e.g. "issue_template"
	Offset   int    // byte offset of the problem
	Msg      string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s: %s at offset %d", e.Template, e.Msg, e.Offset)
}

// part is either a literal run or a placeholder reference.
type part struct {
	literal string
	key     string
}

// Template is a parsed placeholder template. Placeholders are written
// {name}; {{ and }} produce literal braces.
type Template struct {
	name  string
	parts []part
}

// ParseTemplate parses text, accepting only the allowed placeholder names.
func ParseTemplate(name, text string, allowed ...string) (*Template, error) {
	keys := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		keys[k] = true
	}

	t := &Template{name: name}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return nil, &TemplateError{Template: name, Offset: i, Msg: "unterminated placeholder"}
			}
			key := text[i+1 : i+1+end]
			if strings.ContainsAny(key, "{\n") {
				return nil, &TemplateError{Template: name, Offset: i, Msg: "unterminated placeholder"}
			}
			if !keys[key] {
				return nil, &TemplateError{
					Template: name,
					Offset:   i,
					Msg:      fmt.Sprintf("unknown placeholder {%s} (allowed: %s)", key, strings.Join(allowed, ", ")),
				}
			}
			flush()
			t.parts = append(t.parts, part{key: key})
			i += end + 1
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, &TemplateError{Template: name, Offset: i, Msg: "single '}' (use '}}' for a literal brace)"}
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return t, nil
}

// Execute substitutes values. Every placeholder was validated at parse
// time, so a missing value simply renders empty.
func (t *Template) Execute(values map[string]string) string {
	var b strings.Builder
	for _, p := range t.parts {
		if p.key == "" {
			b.WriteString(p.literal)
			continue
		}
		b.WriteString(values[p.key])
	}
	return b.String()
}

// Name returns the config key the template was parsed from.
func (t *Template) Name() string { return t.name }

// Templates is the compiled set of body and badge templates.
type Templates struct {
	Issue                *Template
	IssueSkipUser        *Template
	Comment              *Template
	CommentSkipUser      *Template
	Change               *Template
	User                 *Template
	BitbucketUsername    *Template
	GitHubUsername       *Template
	LinkedAttachments    *Template
	NamesOnlyAttachments *Template
}

var (
	issueKeys      = []string{"reporter", "content", "attachments", "id", "repo", "sep"}
	commentKeys    = []string{"author", "content", "sep"}
	changeKeys     = []string{"author", "changes", "sep"}
	userKeys       = []string{"display_name", "bb_username", "gh_username", "bb_user_badge", "gh_user_badge"}
	linkedKeys     = []string{"attachment_links", "sep"}
	namesOnlyKeys  = []string{"attachment_names", "sep"}
	bbUsernameKeys = []string{"bb_user"}
	ghUsernameKeys = []string{"gh_user"}
)

// CompileTemplates parses every configured template. The first malformed
// template is returned as a *TemplateError.
func CompileTemplates(cfg config.Templates) (*Templates, error) {
	out := &Templates{}
	specs := []struct {
		name string
		text string
		keys []string
		dst  **Template
	}{
		{"issue_template", cfg.Issue, issueKeys, &out.Issue},
		{"issue_template_skip_user", cfg.IssueSkipUser, issueKeys, &out.IssueSkipUser},
		{"comment_template", cfg.Comment, commentKeys, &out.Comment},
		{"comment_template_skip_user", cfg.CommentSkipUser, commentKeys, &out.CommentSkipUser},
		{"change_template", cfg.Change, changeKeys, &out.Change},
		{"user_template", cfg.User, userKeys, &out.User},
		{"bitbucket_username_template", cfg.BitbucketUsername, bbUsernameKeys, &out.BitbucketUsername},
		{"github_username_template", cfg.GitHubUsername, ghUsernameKeys, &out.GitHubUsername},
		{"linked_attachments_template", cfg.LinkedAttachments, linkedKeys, &out.LinkedAttachments},
		{"names_only_attachments_template", cfg.NamesOnlyAttachments, namesOnlyKeys, &out.NamesOnlyAttachments},
	}
	for _, s := range specs {
		tmpl, err := ParseTemplate(s.name, s.text, s.keys...)
		if err != nil {
			return nil, err
		}
		*s.dst = tmpl
	}
	return out, nil
}
