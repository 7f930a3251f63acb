package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/bbmigrate/internal/github"
)

// ErrPollTimeout means an import stayed pending longer than the poll
// timeout. The run can be resumed.
var ErrPollTimeout = errors.New("import did not complete in time")

// ErrSourceOrder means the source yielded an id that is not greater than
// the previous one.
var ErrSourceOrder = errors.New("source issues out of order")

// OutOfSyncError means an import created a different destination number
// than the source position it was submitted for. The destination was
// changed by someone else; continuing would mis-number every later item.
type OutOfSyncError struct {
	Position int
	Number   int
}

func (e *OutOfSyncError) Error() string {
	return fmt.Sprintf("destination out of sync: issue %d was imported as #%d", e.Position, e.Number)
}

// ImportFailedError is an import the destination rejected.
type ImportFailedError struct {
	Position int
	Errors   []github.ImportError
}

func (e *ImportFailedError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("import of issue %d failed", e.Position)
	}
	parts := make([]string, len(e.Errors))
	for i, ie := range e.Errors {
		parts[i] = fmt.Sprintf("%s.%s: %s (%v)", ie.Resource, ie.Field, ie.Code, ie.Value)
	}
	return fmt.Sprintf("import of issue %d failed: %s", e.Position, strings.Join(parts, "; "))
}

// assigneeOnly reports whether every validation error concerns the
// assignee, meaning the issue would import without one.
func (e *ImportFailedError) assigneeOnly() bool {
	if len(e.Errors) == 0 {
		return false
	}
	for _, ie := range e.Errors {
		if ie.Field != "assignee" {
			return false
		}
	}
	return true
}

// AbortError stops a run. LastMigrated is the last source position that
// was fully migrated. Partial, when non-zero, is a position whose issue
// exists on the destination but whose comments or state were not all
// applied.
type AbortError struct {
	LastMigrated int
	Partial      int
	Err          error
}

func (e *AbortError) Error() string {
	msg := fmt.Sprintf("migration aborted after issue %d: %v", e.LastMigrated, e.Err)
	if e.Partial > 0 {
		msg += fmt.Sprintf(" (issue %d was created but not fully reconciled)", e.Partial)
	}
	return msg
}

func (e *AbortError) Unwrap() error { return e.Err }
