// Package github provides client and data types for the GitHub REST API.
//
// This package handles every interaction with the destination repository:
// the issue import API, comments, labels, milestones and user probes. All
// calls go through one rate-governed transport.
package github

import (
	"path"
	"strconv"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxPageSize is the maximum number of items to fetch per page.
	MaxPageSize = 100

	// MaxPages is the maximum number of pages to fetch before stopping.
	// This prevents infinite loops from malformed Link headers.
	MaxPages = 1000

	// importAccept is the media type required by the issue import API.
	importAccept = "application/vnd.github.golden-comet-preview+json"
)

// Issue represents an issue (or pull request) from the GitHub API.
type Issue struct {
	ID          int        `json:"id"`     // Global unique ID
	Number      int        `json:"number"` // Repository-scoped issue number
	Title       string     `json:"title"`
	State       string     `json:"state"` // "open" or "closed"
	CreatedAt   *time.Time `json:"created_at"`
	HTMLURL     string     `json:"html_url"`
	PullRequest *PullRef   `json:"pull_request,omitempty"` // Non-nil if this is a PR
}

// PullRef indicates an issue is actually a pull request.
// The GitHub Issues API returns PRs alongside issues; both share one
// number sequence.
type PullRef struct {
	URL string `json:"url,omitempty"`
}

// User represents a GitHub user.
type User struct {
	ID      int    `json:"id"`
	Login   string `json:"login"`
	Name    string `json:"name,omitempty"`
	HTMLURL string `json:"html_url,omitempty"`
}

// Label represents a GitHub label.
type Label struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Milestone represents a GitHub milestone.
type Milestone struct {
	ID     int    `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"` // "open" or "closed"
}

// Repository represents a GitHub repository.
type Repository struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	HTMLURL     string `json:"html_url"`
	HasIssues   bool   `json:"has_issues"`
	HasWiki     bool   `json:"has_wiki"`
	Private     bool   `json:"private"`
	Permissions *struct {
		Admin bool `json:"admin"`
		Push  bool `json:"push"`
	} `json:"permissions,omitempty"`
}

// Comment is a regular issue comment.
type Comment struct {
	ID      int    `json:"id"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
}

// ImportIssue is the issue half of an import request.
type ImportIssue struct {
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Closed    bool       `json:"closed"`
	Labels    []string   `json:"labels,omitempty"`
	Milestone int        `json:"milestone,omitempty"`
	Assignee  string     `json:"assignee,omitempty"`
}

// ImportComment is a comment carried inside an import request. Comments
// sent this way keep their original timestamps.
type ImportComment struct {
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Body      string     `json:"body"`
}

// ImportRequest is the payload of POST /repos/{owner}/{repo}/import/issues.
type ImportRequest struct {
	Issue    ImportIssue     `json:"issue"`
	Comments []ImportComment `json:"comments,omitempty"`
}

// Import statuses reported by the import API.
const (
	ImportPending  = "pending"
	ImportImported = "imported"
	ImportFailed   = "failed"
)

// ImportStatus is the state of one import handle.
type ImportStatus struct {
	ID        int           `json:"id"`
	Status    string        `json:"status"`
	URL       string        `json:"url"`
	ImportURL string        `json:"import_issues_url,omitempty"`
	IssueURL  string        `json:"issue_url,omitempty"`
	Errors    []ImportError `json:"errors,omitempty"`
}

// ImportError is one validation error of a failed import.
type ImportError struct {
	Location string `json:"location"`
	Resource string `json:"resource"`
	Field    string `json:"field"`
	Value    any    `json:"value"`
	Code     string `json:"code"`
}

// IssueNumber extracts the created issue number from IssueURL, whose last
// path segment is the number. It returns 0 when the URL is missing or
// malformed.
func (s *ImportStatus) IssueNumber() int {
	if s.IssueURL == "" {
		return 0
	}
	n, err := strconv.Atoi(path.Base(s.IssueURL))
	if err != nil {
		return 0
	}
	return n
}

// LabelNames extracts label name strings from a slice of Label structs.
func LabelNames(labels []Label) []string {
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
	}
	return names
}
