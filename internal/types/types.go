// Package types defines the source-side data model read from a Bitbucket
// issue tracker and consumed by the migration engine.
//
// Every value here is produced once by a source reader and treated as
// read-only afterwards.
package types

import (
	"sort"
	"time"
)

// Bitbucket issue states. Only "new" and "open" count as open on GitHub;
// every other state closes the imported issue.
const (
	StateNew       = "new"
	StateOpen      = "open"
	StateOnHold    = "on hold"
	StateResolved  = "resolved"
	StateInvalid   = "invalid"
	StateDuplicate = "duplicate"
	StateWontfix   = "wontfix"
	StateClosed    = "closed"
)

// IsOpenState reports whether a Bitbucket state maps to an open GitHub issue.
func IsOpenState(state string) bool {
	return state == "" || state == StateOpen || state == StateNew
}

// reopenStates and closeStates drive the "changed status to ..." lines
// rendered for state transitions.
var (
	reopenStates = map[string]bool{"": true, StateOpen: true, StateNew: true, StateOnHold: true}
	closeStates  = map[string]bool{StateResolved: true, StateDuplicate: true, StateWontfix: true, StateClosed: true}
)

// IsReopenTransition reports whether old -> new reopens an issue.
func IsReopenTransition(old, new string) bool {
	return closeStates[old] && reopenStates[new]
}

// IsCloseTransition reports whether old -> new closes an issue.
func IsCloseTransition(old, new string) bool {
	return reopenStates[old] && closeStates[new]
}

// SourceUser identifies an actor on the source tracker.
type SourceUser struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Name returns the display name, falling back to the username.
func (u *SourceUser) Name() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// SourceIssue is one issue of the source tracker.
type SourceIssue struct {
	ID        int
	Title     string
	Content   string
	Reporter  *SourceUser // nil for anonymous issues
	Assignee  *SourceUser
	State     string
	Priority  string
	Kind      string
	Component string
	Version   string
	Milestone string
	CreatedOn time.Time
	UpdatedOn time.Time

	Comments    []SourceComment
	Changes     []SourceChange
	Attachments []SourceAttachment

	// Placeholder marks a filler issue created for a gap in the source id
	// sequence. Placeholders keep destination numbering aligned.
	Placeholder bool
}

// IsClosed reports whether the issue should be closed on the destination.
func (i *SourceIssue) IsClosed() bool {
	return i.Placeholder || !IsOpenState(i.State)
}

// ClosedOn returns the time of the last transition into a closed state,
// or UpdatedOn when the change history does not record one.
func (i *SourceIssue) ClosedOn() time.Time {
	var last time.Time
	for _, ch := range i.Changes {
		fc, ok := ch.Changes["state"]
		if !ok {
			continue
		}
		if IsOpenState(fc.Old) && !IsOpenState(fc.New) && ch.CreatedOn.After(last) {
			last = ch.CreatedOn
		}
	}
	if last.IsZero() {
		return i.UpdatedOn
	}
	return last
}

// NewPlaceholder returns the filler issue used for a missing source id.
func NewPlaceholder(id int) *SourceIssue {
	return &SourceIssue{ID: id, Placeholder: true, State: StateClosed}
}

// SourceComment is a free-text comment on an issue.
type SourceComment struct {
	ID        int
	User      *SourceUser
	Content   string
	CreatedOn time.Time
	UpdatedOn time.Time
}

// FieldChange is one old -> new transition of a single field.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// SourceChange is a set of field transitions made by one user at one time.
type SourceChange struct {
	User      *SourceUser
	CreatedOn time.Time
	Changes   map[string]FieldChange
}

// Fields returns the changed field names in a stable order.
func (c *SourceChange) Fields() []string {
	fields := make([]string, 0, len(c.Changes))
	for f := range c.Changes {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// SourceAttachment is a file attached to an issue. Data is consumed at most
// once by relocation.
type SourceAttachment struct {
	Name    string
	Data    []byte
	IssueID int

	// Err records why Data could not be read. Such an attachment is
	// listed by name only.
	Err error
}
