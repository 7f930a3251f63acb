package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestInitialize(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if v == nil {
		t.Fatal("viper instance is nil after Initialize()")
	}
	if ConfigFileUsed() != "" {
		t.Errorf("ConfigFileUsed() = %q, want none", ConfigFileUsed())
	}
}

func TestDefaults(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	tests := []struct {
		key      string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"json", false, func(k string) interface{} { return GetBool(k) }},
		{"github.api-url", "https://api.github.com", func(k string) interface{} { return GetString(k) }},
		{"rate.threshold", 10, func(k string) interface{} { return GetInt(k) }},
		{"rate.max-wait", time.Hour, func(k string) interface{} { return GetDuration(k) }},
		{"retry.max-attempts", 5, func(k string) interface{} { return GetInt(k) }},
		{"poll.interval", 500 * time.Millisecond, func(k string) interface{} { return GetDuration(k) }},
		{"comments.mode", "separate", func(k string) interface{} { return GetString(k) }},
		{"comments.on-error", "skip", func(k string) interface{} { return GetString(k) }},
		{"attachments.mode", "names", func(k string) interface{} { return GetString(k) }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := tt.getter(tt.key)
			if got != tt.expected {
				t.Errorf("GetXXX(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestEnvironmentBinding(t *testing.T) {
	tests := []struct {
		envVar   string
		key      string
		value    string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"BBMIGRATE_GITHUB_REPO", "github.repo", "acme/widgets", "acme/widgets", func(k string) interface{} { return GetString(k) }},
		{"BBMIGRATE_RATE_MAX_WAIT", "rate.max-wait", "90s", 90 * time.Second, func(k string) interface{} { return GetDuration(k) }},
		{"BBMIGRATE_RETRY_MAX_ATTEMPTS", "retry.max-attempts", "2", 2, func(k string) interface{} { return GetInt(k) }},
		{"BBMIGRATE_JSON", "json", "true", true, func(k string) interface{} { return GetBool(k) }},
	}

	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			got := tt.getter(tt.key)
			if got != tt.expected {
				t.Errorf("GetXXX(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestConfigFileDiscovery(t *testing.T) {
	dir := t.TempDir()
	oldWD, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	content := "github:\n  repo: acme/widgets\npoll:\n  timeout: 30s\n"
	if err := os.WriteFile(filepath.Join(dir, "bbmigrate.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetString("github.repo"); got != "acme/widgets" {
		t.Errorf("github.repo = %q, want acme/widgets", got)
	}
	if got := GetDuration("poll.timeout"); got != 30*time.Second {
		t.Errorf("poll.timeout = %v, want 30s", got)
	}
	if got := GetInt("rate.threshold"); got != 10 {
		t.Errorf("rate.threshold = %d, want default 10", got)
	}
}

func TestInitializeWithFileMissing(t *testing.T) {
	if err := InitializeWithFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestSetOverridesDefault(t *testing.T) {
	ResetForTesting()
	Set("comments.mode", "embed")
	if got := GetString("comments.mode"); got != "embed" {
		t.Errorf("comments.mode = %q, want embed", got)
	}
	if !IsSet("comments.mode") {
		t.Error("IsSet(comments.mode) = false after Set")
	}
	if _, ok := AllSettings()["comments"]; !ok {
		t.Error("AllSettings() is missing the comments section")
	}
}
