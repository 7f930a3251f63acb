package convert

import (
	"strings"

	"github.com/steveyegge/bbmigrate/internal/types"
)

// MaxLabelLength is GitHub's limit on label names.
const MaxLabelLength = 50

// LabelTranslator maps Bitbucket classification tokens to GitHub labels.
type LabelTranslator struct {
	translations   map[string]*string
	statesAsLabels map[string]bool
}

// NewLabelTranslator builds a translator. A nil translation value drops the
// token; a missing key passes the token through unchanged.
func NewLabelTranslator(translations map[string]*string, statesAsLabels []string) *LabelTranslator {
	lt := &LabelTranslator{
		translations:   translations,
		statesAsLabels: make(map[string]bool, len(statesAsLabels)),
	}
	for _, s := range statesAsLabels {
		lt.statesAsLabels[s] = true
	}
	return lt
}

// Translate returns the label for token and false when the token is dropped.
// Commas are stripped and names are cut to MaxLabelLength runes.
func (lt *LabelTranslator) Translate(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	name := token
	if mapped, ok := lt.translations[token]; ok {
		if mapped == nil {
			return "", false
		}
		name = *mapped
	}
	if name == "(none)" || name == "None" {
		return "", false
	}
	name = strings.ReplaceAll(name, ",", "")
	if r := []rune(name); len(r) > MaxLabelLength {
		name = string(r[:MaxLabelLength])
	}
	if strings.TrimSpace(name) == "" {
		return "", false
	}
	return name, true
}

// IsStateLabel reports whether state is listed in states_as_labels.
func (lt *LabelTranslator) IsStateLabel(state string) bool {
	return lt.statesAsLabels[state]
}

// IssueLabels derives the label set of an issue from its priority,
// component, kind and version tokens, plus its state when configured.
func (lt *LabelTranslator) IssueLabels(issue *types.SourceIssue) *types.LabelSet {
	set := types.NewLabelSet()
	tokens := []string{issue.Priority, issue.Component, issue.Kind, issue.Version}
	if lt.IsStateLabel(issue.State) {
		tokens = append(tokens, issue.State)
	}
	for _, tok := range tokens {
		if name, ok := lt.Translate(tok); ok {
			set.Add(name)
		}
	}
	return set
}

// isLabelField reports whether a change to field moves a label.
func isLabelField(field string) bool {
	switch field {
	case "priority", "component", "kind", "version":
		return true
	}
	return false
}
