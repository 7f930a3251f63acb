package migrate

import (
	"context"
	"fmt"
	"io"

	"github.com/steveyegge/bbmigrate/internal/types"
)

// GapFiller wraps a Source and inserts placeholder issues for missing ids,
// so that source position and source id coincide. Issues with id <= after
// are dropped.
type GapFiller struct {
	src     Source
	next    int // id expected next
	last    int // last id read from src
	pending *types.SourceIssue
	done    bool
}

// FillGaps returns a Source that yields every id from after+1 to the
// highest source id. If src implements Skipper it is told to skip ahead.
func FillGaps(src Source, after int) *GapFiller {
	if s, ok := src.(Skipper); ok {
		s.SkipTo(after)
	}
	return &GapFiller{src: src, next: after + 1}
}

// Next implements Source.
func (g *GapFiller) Next(ctx context.Context) (*types.SourceIssue, error) {
	for g.pending == nil && !g.done {
		issue, err := g.src.Next(ctx)
		if err == io.EOF {
			g.done = true
			break
		}
		if err != nil {
			return nil, err
		}
		if issue.ID <= g.last {
			return nil, fmt.Errorf("%w: got %d after %d", ErrSourceOrder, issue.ID, g.last)
		}
		g.last = issue.ID
		if issue.ID < g.next {
			continue
		}
		g.pending = issue
	}
	if g.pending == nil {
		return nil, io.EOF
	}
	if g.pending.ID > g.next {
		p := types.NewPlaceholder(g.next)
		g.next++
		return p, nil
	}
	issue := g.pending
	g.pending = nil
	g.next = issue.ID + 1
	return issue, nil
}
