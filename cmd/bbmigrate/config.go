package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/bbmigrate/internal/config"
	"github.com/steveyegge/bbmigrate/internal/convert"
	"github.com/steveyegge/bbmigrate/internal/ui"
)

// defaultTemplatesFile is written by `config init` when no path is given.
const defaultTemplatesFile = "bbmigrate-templates.yaml"

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Inspect settings and manage templates files",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective settings (secrets masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := maskSecrets(config.AllSettings())
		if jsonOutput {
			outputJSON(settings)
			return nil
		}
		out := cmd.OutOrStdout()
		if used := config.ConfigFileUsed(); used != "" {
			_, _ = fmt.Fprintln(out, ui.RenderMuted("# from "+used))
		}
		data, err := yaml.Marshal(settings)
		if err != nil {
			return err
		}
		_, _ = out.Write(data)
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check [templates-file]",
	Short: "Validate a templates and label translations file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetString("templates")
		if len(args) > 0 {
			path = args[0]
		}
		if err := checkTemplates(path); err != nil {
			return err
		}
		if path == "" {
			path = "built-in defaults"
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"file": path, "valid": true})
			return nil
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid\n", ui.RenderPassIcon(), path)
		return nil
	},
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [templates-file]",
	Short: "Write the default templates and label translations to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := defaultTemplatesFile
		if len(args) > 0 {
			path = args[0]
		}
		if err := writeDefaultTemplates(path, configInitForce); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", ui.RenderPassIcon(), path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configCheckCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// checkTemplates loads path over the defaults and compiles every template.
func checkTemplates(path string) error {
	cfg, err := config.LoadMigrationConfig(path)
	if err != nil {
		return err
	}
	_, err = convert.CompileTemplates(cfg.Templates)
	return err
}

func writeDefaultTemplates(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := config.DefaultMigrationConfig().Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// secretKeys are masked by `config show`.
var secretKeys = map[string]bool{"token": true, "password": true}

// maskSecrets returns a copy of settings with secret leaves masked.
func maskSecrets(settings map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(settings))
	for k, val := range settings {
		switch v := val.(type) {
		case map[string]interface{}:
			out[k] = maskSecrets(v)
		case string:
			if secretKeys[strings.ToLower(k)] {
				out[k] = maskToken(v)
			} else {
				out[k] = v
			}
		default:
			out[k] = v
		}
	}
	return out
}
