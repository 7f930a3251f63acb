package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Templates are the text templates used to assemble destination bodies.
// Placeholders use {name} syntax; the allowed names per template are
// enforced by convert.CompileTemplates.
type Templates struct {
	Issue                string `yaml:"issue_template"`
	IssueSkipUser        string `yaml:"issue_template_skip_user"`
	Comment              string `yaml:"comment_template"`
	CommentSkipUser      string `yaml:"comment_template_skip_user"`
	Change               string `yaml:"change_template"`
	User                 string `yaml:"user_template"`
	BitbucketUsername    string `yaml:"bitbucket_username_template"`
	GitHubUsername       string `yaml:"github_username_template"`
	LinkedAttachments    string `yaml:"linked_attachments_template"`
	NamesOnlyAttachments string `yaml:"names_only_attachments_template"`
}

// MigrationConfig is the content configuration of a migration.
//
// A label translation mapped to null drops the label; the map value is a
// pointer so that yaml null and a missing key stay distinguishable.
type MigrationConfig struct {
	LabelTranslations map[string]*string `yaml:"label_translations"`
	StatesAsLabels    []string           `yaml:"states_as_labels"`
	Templates         `yaml:",inline"`
}

// DefaultTemplates returns the built-in templates.
func DefaultTemplates() Templates {
	return Templates{
		Issue: "**[Original report](https://bitbucket.org/{repo}/issue/{id}) by {reporter}.**\n\n" +
			"{sep}\n\n{content}\n{attachments}",
		IssueSkipUser: "{content}\n{attachments}\n\n{sep}\n" +
			"[Original report](https://bitbucket.org/{repo}/issue/{id})",
		Comment:              "**Original comment by {author}.**\n\n{sep}\n\n{content}",
		CommentSkipUser:      "{content}",
		Change:               "{changes}\n\n{sep}\nOriginal changes by {author}.",
		User:                 "{display_name} ({bb_user_badge}) {gh_user_badge}",
		BitbucketUsername:    "[{bb_user}](https://bitbucket.org/{bb_user})",
		GitHubUsername:       "@{gh_user}",
		LinkedAttachments:    "\n{sep}\n\nAttachments: {attachment_links}",
		NamesOnlyAttachments: "\n{sep}\n\nAttachments: {attachment_names}",
	}
}

// DefaultMigrationConfig returns the configuration used when no templates
// file is given.
func DefaultMigrationConfig() *MigrationConfig {
	return &MigrationConfig{
		LabelTranslations: map[string]*string{},
		StatesAsLabels:    []string{"on hold", "invalid", "duplicate", "wontfix"},
		Templates:         DefaultTemplates(),
	}
}

// LoadMigrationConfig reads a templates file over the defaults. Keys that
// the file omits keep their default value; unknown keys are rejected.
func LoadMigrationConfig(path string) (*MigrationConfig, error) {
	cfg := DefaultMigrationConfig()
	if path == "" {
		return cfg, nil
	}
	// #nosec G304 -- path comes from the operator's --templates flag
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates %s: %w", path, err)
	}
	if err := decodeMigrationConfig(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func decodeMigrationConfig(data []byte, cfg *MigrationConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid migration config: %w", err)
	}
	return cfg.Validate()
}

// Validate checks the translation table and the state label list.
func (c *MigrationConfig) Validate() error {
	for token, name := range c.LabelTranslations {
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("label_translations: empty source token")
		}
		if name != nil && strings.TrimSpace(*name) == "" {
			return fmt.Errorf("label_translations[%q]: empty label name (use null to drop the label)", token)
		}
	}
	for i, s := range c.StatesAsLabels {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("states_as_labels[%d]: empty state", i)
		}
	}
	return nil
}

// Marshal renders the config as YAML, for `bbmigrate config init`.
func (c *MigrationConfig) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
