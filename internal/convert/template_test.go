package convert

import (
	"errors"
	"strings"
	"testing"

	"github.com/steveyegge/bbmigrate/internal/config"
)

func TestParseTemplate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		values  map[string]string
		want    string
		wantErr string
	}{
		{"plain", "hello", nil, "hello", ""},
		{"substitution", "{content} by {author}", map[string]string{"content": "x", "author": "y"}, "x by y", ""},
		{"escaped braces", "{{literal}} {content}", map[string]string{"content": "x"}, "{literal} x", ""},
		{"missing value renders empty", "[{sep}]", nil, "[]", ""},
		{"unknown placeholder", "{reporter}", nil, "", "unknown placeholder {reporter}"},
		{"empty placeholder", "{}", nil, "", "unknown placeholder {}"},
		{"unterminated", "abc {content", nil, "", "unterminated placeholder"},
		{"unterminated across line", "{content\n}", nil, "", "unterminated placeholder"},
		{"stray close brace", "a } b", nil, "", "single '}'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := ParseTemplate("comment_template", tt.text, "content", "author", "sep")
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("ParseTemplate(%q) succeeded, want error containing %q", tt.text, tt.wantErr)
				}
				var te *TemplateError
				if !errors.As(err, &te) {
					t.Fatalf("error %v is not a *TemplateError", err)
				}
				if te.Template != "comment_template" {
					t.Errorf("TemplateError.Template = %q, want comment_template", te.Template)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTemplate(%q) error = %v", tt.text, err)
			}
			if got := tmpl.Execute(tt.values); got != tt.want {
				t.Errorf("Execute() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompileTemplatesDefaults(t *testing.T) {
	tmpl, err := CompileTemplates(config.DefaultTemplates())
	if err != nil {
		t.Fatalf("CompileTemplates(defaults) error = %v", err)
	}
	if tmpl.Issue == nil || tmpl.NamesOnlyAttachments == nil {
		t.Fatal("CompileTemplates left templates unset")
	}
	if tmpl.Issue.Name() != "issue_template" {
		t.Errorf("Issue.Name() = %q", tmpl.Issue.Name())
	}
}

func TestCompileTemplatesRejectsWrongKeys(t *testing.T) {
	cfg := config.DefaultTemplates()
	// {reporter} is only valid in issue templates.
	cfg.Comment = "{reporter}: {content}"

	_, err := CompileTemplates(cfg)
	var te *TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("CompileTemplates error = %v, want *TemplateError", err)
	}
	if te.Template != "comment_template" {
		t.Errorf("TemplateError.Template = %q, want comment_template", te.Template)
	}
}
