// Package config holds bbmigrate's runtime settings (viper: config file,
// BBMIGRATE_* environment, defaults) and the migration content config
// (templates and label translations).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the base name searched for in the working directory and
// the user config directory.
const ConfigFileName = "bbmigrate"

var v *viper.Viper

// Initialize (re)creates the viper instance, registers defaults and binds
// BBMIGRATE_* environment variables. The first bbmigrate.yaml found in the
// working directory or $XDG_CONFIG_HOME/bbmigrate is loaded.
func Initialize() error {
	return initialize("")
}

// InitializeWithFile is like Initialize but loads an explicit config file.
func InitializeWithFile(path string) error {
	return initialize(path)
}

func initialize(explicit string) error {
	v = viper.New()
	v.SetEnvPrefix("BBMIGRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", explicit, err)
		}
		return nil
	}

	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, dir := range userConfigDirs() {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("json", false)
	v.SetDefault("github.token", "")
	v.SetDefault("github.repo", "")
	v.SetDefault("github.user", "")
	v.SetDefault("github.api-url", "https://api.github.com")
	v.SetDefault("bitbucket.user", "")
	v.SetDefault("bitbucket.password", "")
	v.SetDefault("bitbucket.api-url", "https://api.bitbucket.org/2.0")
	v.SetDefault("bitbucket.repo", "")
	v.SetDefault("bitbucket.export", "")
	v.SetDefault("bitbucket.lookup-users", true)
	v.SetDefault("templates", "")
	v.SetDefault("users-file", "")

	v.SetDefault("rate.threshold", 10)
	v.SetDefault("rate.max-wait", time.Hour)
	v.SetDefault("rate.min-interval", time.Second)
	v.SetDefault("retry.max-attempts", 5)
	v.SetDefault("poll.interval", 500*time.Millisecond)
	v.SetDefault("poll.timeout", 5*time.Minute)

	v.SetDefault("comments.mode", "separate")
	v.SetDefault("comments.on-error", "skip")
	v.SetDefault("attachments.mode", "names")
}

func userConfigDirs() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, ConfigFileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", ConfigFileName))
	}
	return dirs
}

// ResetForTesting drops the current viper instance and starts from defaults.
func ResetForTesting() {
	v = viper.New()
	setDefaults(v)
}

func ensure() *viper.Viper {
	if v == nil {
		ResetForTesting()
	}
	return v
}

// GetString returns a string setting.
func GetString(key string) string { return ensure().GetString(key) }

// GetBool returns a bool setting.
func GetBool(key string) bool { return ensure().GetBool(key) }

// GetInt returns an int setting.
func GetInt(key string) int { return ensure().GetInt(key) }

// GetDuration returns a duration setting.
func GetDuration(key string) time.Duration { return ensure().GetDuration(key) }

// Set overrides a setting for the rest of the process.
func Set(key string, value interface{}) { ensure().Set(key, value) }

// IsSet reports whether a key has a value other than its default.
func IsSet(key string) bool { return ensure().IsSet(key) }

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string { return ensure().ConfigFileUsed() }

// AllSettings returns every known setting, for `bbmigrate config show`.
func AllSettings() map[string]interface{} { return ensure().AllSettings() }
