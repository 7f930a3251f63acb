// Package attachments relocates source issue attachments to durable
// storage on the destination side and produces the links the rendered
// issue body points at.
package attachments

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/steveyegge/bbmigrate/internal/convert"
	"github.com/steveyegge/bbmigrate/internal/debug"
	"github.com/steveyegge/bbmigrate/internal/types"
)

// Store persists attachment bytes and returns a link to them. Commit makes
// everything stored for one issue durable.
type Store interface {
	Store(ctx context.Context, issueID int, filename string, data []byte) (link string, err error)
	Commit(ctx context.Context, issueID int) error
}

// Relocator moves an issue's attachments into a Store.
type Relocator struct {
	store Store

	// OnWarning receives one message per attachment that could not be
	// relocated.
	OnWarning func(msg string)
}

// NewRelocator creates a Relocator. A nil store lists attachments by name.
func NewRelocator(store Store) *Relocator {
	return &Relocator{store: store}
}

// Relocate stores every attachment of issue and returns one link per
// attachment, in source order. It never fails as a whole: an attachment
// that cannot be stored is returned without a link, and if the final
// commit fails every link of the issue is dropped.
func (r *Relocator) Relocate(ctx context.Context, issue *types.SourceIssue) []convert.AttachmentLink {
	if len(issue.Attachments) == 0 {
		return nil
	}
	links := make([]convert.AttachmentLink, len(issue.Attachments))
	stored := 0
	for i, a := range issue.Attachments {
		links[i].Name = a.Name
		if r.store == nil {
			continue
		}
		if a.Err != nil {
			r.warn("issue %d: attachment %q not relocated: %v", issue.ID, a.Name, a.Err)
			continue
		}
		link, err := r.store.Store(ctx, issue.ID, a.Name, a.Data)
		if err != nil {
			r.warn("issue %d: attachment %q not relocated: %v", issue.ID, a.Name, err)
			continue
		}
		links[i].Link = link
		stored++
	}
	if stored == 0 {
		return links
	}
	if err := r.store.Commit(ctx, issue.ID); err != nil {
		r.warn("issue %d: attachments not committed, listing names only: %v", issue.ID, err)
		for i := range links {
			links[i].Link = ""
		}
	}
	return links
}

func (r *Relocator) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	debug.Logf("%s\n", msg)
	if r.OnWarning != nil {
		r.OnWarning(msg)
	}
}

// Names returns name-only links for issue's attachments.
func Names(issue *types.SourceIssue) []convert.AttachmentLink {
	if len(issue.Attachments) == 0 {
		return nil
	}
	links := make([]convert.AttachmentLink, len(issue.Attachments))
	for i, a := range issue.Attachments {
		links[i].Name = a.Name
	}
	return links
}

// safeName reduces an attachment name to a single path element.
func safeName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch base {
	case "", ".", "..", "/":
		return "", fmt.Errorf("unusable attachment name %q", name)
	}
	return base, nil
}

// joinLink appends the issue directory and escaped file name to prefix.
func joinLink(prefix string, issueID int, name string) string {
	return fmt.Sprintf("%s/%d/%s", strings.TrimSuffix(prefix, "/"), issueID, url.PathEscape(name))
}
