package convert

import (
	"reflect"
	"strings"
	"testing"

	"github.com/steveyegge/bbmigrate/internal/types"
)

func strPtr(s string) *string { return &s }

func TestLabelTranslatorTranslate(t *testing.T) {
	lt := NewLabelTranslator(map[string]*string{
		"major":    nil,
		"minor":    strPtr("low priority"),
		"trivial":  strPtr("(none)"),
		"proposal": strPtr("enhancement, maybe"),
	}, nil)

	tests := []struct {
		token  string
		want   string
		wantOK bool
	}{
		{"major", "", false},
		{"minor", "low priority", true},
		{"trivial", "", false},
		{"None", "", false},
		{"", "", false},
		{"bug", "bug", true},
		{"proposal", "enhancement maybe", true},
		{"a,b", "ab", true},
		{strings.Repeat("x", 60), strings.Repeat("x", MaxLabelLength), true},
	}
	for _, tt := range tests {
		got, ok := lt.Translate(tt.token)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Translate(%q) = (%q, %v), want (%q, %v)", tt.token, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestIssueLabelsTranslationTable(t *testing.T) {
	lt := NewLabelTranslator(map[string]*string{
		"major": nil,
		"minor": strPtr("low priority"),
	}, []string{"on hold", "wontfix"})

	major := lt.IssueLabels(&types.SourceIssue{Priority: "major", Kind: "bug"})
	if major.Has("major") {
		t.Errorf("labels %v contain dropped label major", major.Names())
	}
	if !reflect.DeepEqual(major.Names(), []string{"bug"}) {
		t.Errorf("labels = %v, want [bug]", major.Names())
	}

	// "minor" and a kind that also translates to "low priority" must
	// collapse into one label.
	lt.translations["task"] = strPtr("low priority")
	minor := lt.IssueLabels(&types.SourceIssue{Priority: "minor", Kind: "task", State: "wontfix"})
	if !reflect.DeepEqual(minor.Names(), []string{"low priority", "wontfix"}) {
		t.Errorf("labels = %v, want [low priority wontfix]", minor.Names())
	}
}

func TestIssueLabelsStateNotListed(t *testing.T) {
	lt := NewLabelTranslator(nil, []string{"on hold"})
	got := lt.IssueLabels(&types.SourceIssue{State: "resolved", Component: "core", Version: "1.0"})
	if !reflect.DeepEqual(got.Names(), []string{"1.0", "core"}) {
		t.Errorf("labels = %v, want [1.0 core]", got.Names())
	}
}
