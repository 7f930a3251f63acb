package github

import (
	"time"

	"github.com/steveyegge/bbmigrate/internal/convert"
)

// NewImportRequest maps a rendered issue onto an import payload. milestone
// is the destination milestone number, 0 for none. Zero timestamps are
// left out so GitHub fills in the import time.
func NewImportRequest(issue *convert.RenderedIssue, milestone int, comments []ImportComment) *ImportRequest {
	req := &ImportRequest{
		Issue: ImportIssue{
			Title:     issue.Title,
			Body:      issue.Body,
			CreatedAt: timePtr(issue.CreatedAt),
			UpdatedAt: timePtr(issue.UpdatedAt),
			Closed:    issue.Closed,
			Labels:    issue.Labels.Names(),
			Milestone: milestone,
			Assignee:  issue.Assignee,
		},
		Comments: comments,
	}
	if issue.Closed {
		req.Issue.ClosedAt = timePtr(issue.ClosedAt)
	}
	return req
}

// NewImportComment builds a comment carried inside an import request.
func NewImportComment(body string, createdAt time.Time) ImportComment {
	return ImportComment{Body: body, CreatedAt: timePtr(createdAt)}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
