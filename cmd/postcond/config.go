// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/postcond/postcond/internal/config"
	"github.com/postcond/postcond/internal/issue"
)

// newConfigCommand creates the `postcond config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage postcond configuration",
		Long: `Manage postcond configuration.

Configuration is read from:
  - Linux: $XDG_CONFIG_HOME/postcond/config.cue (default ~/.config)
  - macOS: ~/Library/Application Support/postcond/config.cue
  - Windows: %APPDATA%\postcond\config.cue

Every key can be overridden with a POSTCOND_* environment variable, e.g.
POSTCOND_STAGING_ROOT or POSTCOND_KEEP_REMOTE_FILES=1.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var format string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				renderIssue(app, issue.ConfigLoadFailedId)
				return err
			}
			return showConfig(app.stdout, cfg, format)
		},
	}
	showCmd.Flags().StringVar(&format, "format", "text", "output format: text, cue or json")
	cfgCmd.AddCommand(showCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefaultConfig()
			if err != nil {
				return fmt.Errorf("failed to create config: %w", err)
			}
			fmt.Fprintf(app.stdout, "%s Configuration at %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.cfgFile != "" {
				fmt.Fprintln(app.stdout, app.cfgFile)
				return nil
			}
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(w io.Writer, cfg *config.Config, format string) error {
	switch format {
	case "cue":
		_, err := fmt.Fprint(w, config.GenerateCUE(cfg))
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case "text":
	default:
		return fmt.Errorf("unknown format %q (want text, cue or json)", format)
	}

	source := SubtitleStyle.Render("(defaults and environment)")
	if cfg.Source != "" {
		source = cfg.Source
	}

	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render("Config file"), source)
	fmt.Fprintln(w)

	kv := func(indent, key string, value any) {
		fmt.Fprintf(w, "%s%s: %s\n", indent, KeyStyle.Render(key), SuccessStyle.Render(fmt.Sprint(value)))
	}
	kv("", "staging_root", cfg.StagingRoot)
	kv("", "staging_stem", cfg.StagingStem)
	kv("", "keep_remote_files", cfg.KeepRemoteFiles)
	kv("", "default_runner", cfg.DefaultRunner)
	kv("", "timeout", cfg.Timeout)
	kv("", "log.level", cfg.Log.Level)

	fmt.Fprintf(w, "\n%s:\n", KeyStyle.Render("python"))
	kv("  ", "interpreter", cfg.Python.Interpreter)
	kv("  ", "isolated", cfg.Python.Isolated)
	kv("  ", "sys_path", "["+strings.Join(cfg.Python.SysPath, ", ")+"]")
	kv("  ", "entry_point_import", cfg.Python.EntryPointImport)

	fmt.Fprintf(w, "\n%s:\n", KeyStyle.Render("django"))
	kv("  ", "project_dir", cfg.Django.ProjectDir)
	kv("  ", "manage_py", cfg.Django.ManagePy)
	kv("  ", "settings_module", cfg.Django.SettingsModule)
	kv("  ", "env_file", cfg.Django.EnvFile)

	fmt.Fprintf(w, "\n%s:\n", KeyStyle.Render("container"))
	kv("  ", "engine", cfg.Container.Engine)
	kv("  ", "name", cfg.Container.Name)
	kv("  ", "interpreter", cfg.Container.Interpreter)
	kv("  ", "inside_tmp", cfg.Container.InsideTmp)

	fmt.Fprintf(w, "\n%s:\n", KeyStyle.Render("snap"))
	kv("  ", "name", cfg.Snap.Name)
	kv("  ", "app", cfg.Snap.App)
	kv("  ", "interpreter", cfg.Snap.Interpreter)
	kv("  ", "inside_tmp", cfg.Snap.InsideTmp)

	return nil
}
