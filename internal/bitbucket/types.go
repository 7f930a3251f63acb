// Package bitbucket reads issues from a Bitbucket issue tracker, either
// through the 2.0 REST API or from a repository export archive.
//
// Both readers return issues in strictly increasing id order with their
// comments, change logs and attachments attached.
package bitbucket

import (
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/bbmigrate/internal/types"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the Bitbucket 2.0 REST API base URL.
	DefaultAPIEndpoint = "https://api.bitbucket.org/2.0"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxPages bounds every paginated listing.
	MaxPages = 1000

	// exportDBName is the JSON document inside an export archive.
	exportDBName = "db-1.0.json"
)

// Options controls what the readers fetch.
type Options struct {
	// AttachmentData loads attachment bytes. Without it attachments carry
	// names only.
	AttachmentData bool

	// OnWarning receives non-fatal problems such as a change log that
	// could not be read.
	OnWarning func(msg string)
}

func (o Options) warn(format string, args ...interface{}) {
	if o.OnWarning != nil {
		o.OnWarning(fmt.Sprintf(format, args...))
	}
}

// apiUser is a user object as the 2.0 API returns it. Accounts migrated
// to Atlassian ids have no username, only a nickname.
type apiUser struct {
	Username    string `json:"username"`
	Nickname    string `json:"nickname"`
	DisplayName string `json:"display_name"`
}

func (u *apiUser) toSource() *types.SourceUser {
	if u == nil {
		return nil
	}
	name := u.Username
	if name == "" {
		name = u.Nickname
	}
	if name == "" && u.DisplayName == "" {
		return nil
	}
	return &types.SourceUser{Username: name, DisplayName: u.DisplayName}
}

type apiNamed struct {
	Name string `json:"name"`
}

func (n *apiNamed) value() string {
	if n == nil {
		return ""
	}
	return n.Name
}

type apiContent struct {
	Raw string `json:"raw"`
}

type apiIssue struct {
	ID        int         `json:"id"`
	Title     string      `json:"title"`
	Content   *apiContent `json:"content"`
	Reporter  *apiUser    `json:"reporter"`
	Assignee  *apiUser    `json:"assignee"`
	State     string      `json:"state"`
	Priority  string      `json:"priority"`
	Kind      string      `json:"kind"`
	Component *apiNamed   `json:"component"`
	Version   *apiNamed   `json:"version"`
	Milestone *apiNamed   `json:"milestone"`
	CreatedOn string      `json:"created_on"`
	UpdatedOn string      `json:"updated_on"`
}

type apiComment struct {
	ID        int         `json:"id"`
	Content   *apiContent `json:"content"`
	User      *apiUser    `json:"user"`
	CreatedOn string      `json:"created_on"`
	UpdatedOn string      `json:"updated_on"`
}

type apiChange struct {
	User      *apiUser `json:"user"`
	CreatedOn string   `json:"created_on"`
	Changes   map[string]struct {
		Old *string `json:"old"`
		New *string `json:"new"`
	} `json:"changes"`
}

type apiAttachment struct {
	Name  string `json:"name"`
	Links struct {
		Self struct {
			Href string `json:"href"`
		} `json:"self"`
	} `json:"links"`
}

// page is one page of a 2.0 listing.
type page[T any] struct {
	Size    int    `json:"size"`
	Page    int    `json:"page"`
	PageLen int    `json:"pagelen"`
	Next    string `json:"next"`
	Values  []T    `json:"values"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05",
}

// parseTime parses the timestamp formats found in API responses and
// exports. Timestamps without a zone are UTC. An empty string is the zero
// time.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
