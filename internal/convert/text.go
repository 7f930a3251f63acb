package convert

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	changesetRE = regexp.MustCompile(`<<(?:cset|changeset) (.+?)>>`)
	mentionRE   = regexp.MustCompile(`(^|[^\w])@([a-zA-Z0-9_-]+)\b`)
	shaRE       = regexp.MustCompile(`^[0-9a-f]{6,40}$`)
)

// ConvertChangesets replaces <<cset X>> and <<changeset X>> markers with the
// bare hash, or with a link to the commit on Bitbucket when link is set and
// X looks like a hash.
func ConvertChangesets(content, repo string, link bool) string {
	return changesetRE.ReplaceAllStringFunc(content, func(m string) string {
		sha := changesetRE.FindStringSubmatch(m)[1]
		if !link || !shaRE.MatchString(sha) {
			return sha
		}
		return fmt.Sprintf("[%s (bb)](https://bitbucket.org/%s/commits/%s)", sha, repo, sha)
	})
}

// ConvertCreoleBraces turns Creole {{{ }}} markup into Markdown. Inline
// braces become backticks; blocks that open or close at the start of a line
// become four-space indented code.
func ConvertCreoleBraces(content string) string {
	var out []string
	inBlock := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(line, "{{{") || strings.HasPrefix(line, "}}}") {
			if _, after, ok := strings.Cut(line, "{{{"); ok {
				out = append(out, "    "+after)
				inBlock = true
			}
			if before, _, ok := strings.Cut(line, "}}}"); ok {
				out = append(out, "    "+before)
				inBlock = false
			}
			continue
		}
		if inBlock {
			out = append(out, "    "+line)
			continue
		}
		line = strings.ReplaceAll(line, "{{{", "`")
		out = append(out, strings.ReplaceAll(line, "}}}", "`"))
	}
	return strings.Join(out, "\n")
}

// LinkRewriter rewrites absolute links to issues of one repository into
// #N references. A nil LinkRewriter leaves content unchanged.
type LinkRewriter struct {
	re *regexp.Regexp
}

// NewLinkRewriter compiles the issue link pattern for repo. It returns nil
// for an empty repo.
func NewLinkRewriter(repo string) *LinkRewriter {
	if repo == "" {
		return nil
	}
	return &LinkRewriter{
		re: regexp.MustCompile(`https://bitbucket\.org/` + regexp.QuoteMeta(repo) + `/issues?/(\d+)(?:/[\w\-%]+)?`),
	}
}

// Rewrite replaces every issue link in content.
func (l *LinkRewriter) Rewrite(content string) string {
	if l == nil {
		return content
	}
	return l.re.ReplaceAllString(content, "#$1")
}

// ConvertMentions rewrites @name references. Mapped names become the
// GitHub login; others keep the literal mention followed by badge(name).
func ConvertMentions(content string, users map[string]string, badge func(string) string) string {
	return mentionRE.ReplaceAllStringFunc(content, func(m string) string {
		sub := mentionRE.FindStringSubmatch(m)
		prefix, name := sub[1], sub[2]
		if gh, ok := users[name]; ok && gh != "" {
			return prefix + "@" + gh
		}
		if badge == nil {
			return m
		}
		if b := badge(name); b != "" {
			return fmt.Sprintf("%s@%s (%s)", prefix, name, b)
		}
		return m
	})
}
