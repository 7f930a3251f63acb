package types

import (
	"sort"
	"time"
)

// TimelineEntry is either a comment or a change, positioned by its timestamp.
type TimelineEntry struct {
	At      time.Time
	Comment *SourceComment
	Change  *SourceChange
}

// Timeline merges the issue's comments and changes into one slice sorted by
// timestamp. Ties keep comments before changes and otherwise preserve the
// order produced by the source.
func (i *SourceIssue) Timeline(includeChanges bool) []TimelineEntry {
	entries := make([]TimelineEntry, 0, len(i.Comments)+len(i.Changes))
	for idx := range i.Comments {
		entries = append(entries, TimelineEntry{At: i.Comments[idx].CreatedOn, Comment: &i.Comments[idx]})
	}
	if includeChanges {
		for idx := range i.Changes {
			entries = append(entries, TimelineEntry{At: i.Changes[idx].CreatedOn, Change: &i.Changes[idx]})
		}
	}
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].At.Before(entries[b].At)
	})
	return entries
}
