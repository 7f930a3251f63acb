package convert

import "testing"

func TestConvertChangesets(t *testing.T) {
	tests := []struct {
		name string
		in   string
		link bool
		want string
	}{
		{"bare cset", "fixed by <<cset 22f3981d50c8>>", false, "fixed by 22f3981d50c8"},
		{"changeset keyword", "<<changeset abc123>> done", false, "abc123 done"},
		{"linked", "<<cset 22f3981d50c8>>", true, "[22f3981d50c8 (bb)](https://bitbucket.org/acme/widgets/commits/22f3981d50c8)"},
		{"linked non hash", "<<cset tip>>", true, "tip"},
		{"untouched", "no markers here", true, "no markers here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConvertChangesets(tt.in, "acme/widgets", tt.link); got != tt.want {
				t.Errorf("ConvertChangesets(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestConvertCreoleBraces(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"inline", "run {{{make}}} now", "run `make` now"},
		{"block", "before\n{{{\nline1\nline2\n}}}\nafter", "before\n    \n    line1\n    line2\n    \nafter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConvertCreoleBraces(tt.in); got != tt.want {
				t.Errorf("ConvertCreoleBraces(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLinkRewriter(t *testing.T) {
	links := NewLinkRewriter("acme/widgets")
	tests := []struct {
		in   string
		want string
	}{
		{"see https://bitbucket.org/acme/widgets/issue/12", "see #12"},
		{"see https://bitbucket.org/acme/widgets/issues/12/crash-on-start.", "see #12."},
		{"other https://bitbucket.org/acme/gadgets/issues/12", "other https://bitbucket.org/acme/gadgets/issues/12"},
	}
	for _, tt := range tests {
		if got := links.Rewrite(tt.in); got != tt.want {
			t.Errorf("Rewrite(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	none := NewLinkRewriter("")
	if none != nil {
		t.Fatal("NewLinkRewriter(\"\") should be nil")
	}
	in := "https://bitbucket.org/acme/widgets/issue/1"
	if got := none.Rewrite(in); got != in {
		t.Errorf("nil Rewrite() = %q, want input unchanged", got)
	}
}

func TestConvertMentions(t *testing.T) {
	users := map[string]string{"jdoe": "janedoe"}
	badge := func(name string) string { return "bb:" + name }

	tests := []struct {
		in   string
		want string
	}{
		{"@jdoe please look", "@janedoe please look"},
		{"thanks @bob!", "thanks @bob (bb:bob)!"},
		{"mail me at bob@example.com", "mail me at bob@example.com"},
		{"(@jdoe)", "(@janedoe)"},
	}
	for _, tt := range tests {
		if got := ConvertMentions(tt.in, users, badge); got != tt.want {
			t.Errorf("ConvertMentions(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
