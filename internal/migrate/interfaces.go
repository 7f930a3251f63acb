// Package migrate drives a migration from a Bitbucket issue source into
// the GitHub issue import API.
//
// The Driver submits items strictly in source order, one at a time. Every
// imported issue must receive the destination number equal to its source
// position; any mismatch aborts the run. Because the destination is the
// only record of progress, an interrupted run resumes where the previous
// one stopped without local state.
package migrate

import (
	"context"

	"github.com/steveyegge/bbmigrate/internal/convert"
	"github.com/steveyegge/bbmigrate/internal/github"
	"github.com/steveyegge/bbmigrate/internal/types"
)

// Source yields source issues in strictly increasing id order and returns
// io.EOF after the last one.
type Source interface {
	Next(ctx context.Context) (*types.SourceIssue, error)
}

// Skipper is implemented by sources that can start after a given id
// without reading the issues before it.
type Skipper interface {
	SkipTo(id int)
}

// Destination is the import side of a migration.
type Destination interface {
	HighestIssueNumber(ctx context.Context) (int, error)
	EnsureLabels(ctx context.Context, names []string) error
	EnsureMilestone(ctx context.Context, title string) (int, error)
	StartImport(ctx context.Context, req *github.ImportRequest) (*github.ImportStatus, error)
	ImportStatus(ctx context.Context, statusURL string) (*github.ImportStatus, error)
	AddComment(ctx context.Context, number int, body string) error
	CloseIssue(ctx context.Context, number int) error
}

// Relocator turns an issue's attachments into links. It never fails as a
// whole.
type Relocator interface {
	Relocate(ctx context.Context, issue *types.SourceIssue) []convert.AttachmentLink
}

// UserResolver prepares user lookups for the issues about to be rendered.
type UserResolver interface {
	Resolve(ctx context.Context, names ...string) error
}
