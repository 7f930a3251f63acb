package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/steveyegge/bbmigrate/internal/config"
	"github.com/steveyegge/bbmigrate/internal/debug"
	"github.com/steveyegge/bbmigrate/internal/migrate"
	"github.com/steveyegge/bbmigrate/internal/telemetry"
	"github.com/steveyegge/bbmigrate/internal/ui"
)

var (
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool
	configPath  string

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (default: ./bbmigrate.yaml, then $XDG_CONFIG_HOME/bbmigrate)")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")

	rootCmd.AddGroup(&cobra.Group{ID: "migrate", Title: "Migration:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup & Configuration:"})
}

var rootCmd = &cobra.Command{
	Use:   "bbmigrate",
	Short: "bbmigrate - move a Bitbucket issue tracker to GitHub",
	Long: `Migrate Bitbucket issues, comments, attachments and state changes into a
GitHub repository through the GitHub issue import API.

Issues keep their numbers: Bitbucket issue N becomes GitHub issue #N. Gaps in
the Bitbucket numbering are filled with closed placeholder issues. An
interrupted migration resumes where it stopped when run again.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("bbmigrate version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupSignalContext()
		applyVerbosityFlags()
		if err := initConfig(); err != nil {
			return err
		}
		applyViperOverrides(cmd)
		if jsonOutput {
			ui.SetPlain()
		}
		if err := telemetry.Init(rootCtx, "bbmigrate", Version); err != nil {
			debug.Logf("telemetry disabled: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// applyVerbosityFlags propagates --verbose and --quiet to the debug package.
func applyVerbosityFlags() {
	debug.SetVerbose(verboseFlag)
	debug.SetQuiet(quietFlag)
}

func initConfig() error {
	if configPath != "" {
		return config.InitializeWithFile(configPath)
	}
	return config.Initialize()
}

// flagConfigKeys maps command flags to the settings they override.
// Priority: flags > viper (config file + env vars) > defaults.
var flagConfigKeys = map[string]string{
	"json":               "json",
	"github-api-url":     "github.api-url",
	"bb-user":            "bitbucket.user",
	"bitbucket-api-url":  "bitbucket.api-url",
	"export":             "bitbucket.export",
	"use-config":         "templates",
	"users-file":         "users-file",
	"comments-mode":      "comments.mode",
	"on-comment-error":   "comments.on-error",
	"poll-interval":      "poll.interval",
	"poll-timeout":       "poll.timeout",
	"rate-threshold":     "rate.threshold",
	"rate-max-wait":      "rate.max-wait",
	"rate-min-interval":  "rate.min-interval",
	"retry-max-attempts": "retry.max-attempts",
}

// applyViperOverrides copies explicitly set flags into the settings, and
// settings into flag-bound globals that were not set on the command line.
func applyViperOverrides(cmd *cobra.Command) {
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if key, ok := flagConfigKeys[f.Name]; ok {
			config.Set(key, f.Value.String())
			debug.Logf("flag --%s overrides %s\n", f.Name, key)
		}
	})
	if !cmd.Flags().Changed("json") {
		jsonOutput = config.GetBool("json")
	}
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var abort *migrate.AbortError
	switch {
	case jsonOutput:
		outputJSONError(err, errorCode(err))
	case errors.As(err, &abort):
		fmt.Fprint(os.Stderr, ui.FormatAbort(abort))
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
