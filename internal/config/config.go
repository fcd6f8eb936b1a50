// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/postcond/postcond/internal/cueutil"
	"github.com/postcond/postcond/internal/issue"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "postcond"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes every environment override (POSTCOND_TIMEOUT, ...).
	EnvPrefix = "POSTCOND"
)

//go:embed config_schema.cue
var configSchema []byte

// ConfigDir returns the postcond configuration directory: $XDG_CONFIG_HOME
// (default ~/.config) on Linux, ~/Library/Application Support on macOS and
// %APPDATA% on Windows.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("staging_root", d.StagingRoot)
	v.SetDefault("staging_stem", d.StagingStem)
	v.SetDefault("keep_remote_files", d.KeepRemoteFiles)
	v.SetDefault("default_runner", d.DefaultRunner)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("python.interpreter", d.Python.Interpreter)
	v.SetDefault("python.isolated", d.Python.Isolated)
	v.SetDefault("python.sys_path", d.Python.SysPath)
	v.SetDefault("python.entry_point_import", d.Python.EntryPointImport)
	v.SetDefault("django.project_dir", d.Django.ProjectDir)
	v.SetDefault("django.manage_py", d.Django.ManagePy)
	v.SetDefault("django.settings_module", d.Django.SettingsModule)
	v.SetDefault("django.env_file", d.Django.EnvFile)
	v.SetDefault("container.engine", d.Container.Engine)
	v.SetDefault("container.name", d.Container.Name)
	v.SetDefault("container.interpreter", d.Container.Interpreter)
	v.SetDefault("container.inside_tmp", d.Container.InsideTmp)
	v.SetDefault("snap.name", d.Snap.Name)
	v.SetDefault("snap.app", d.Snap.App)
	v.SetDefault("snap.interpreter", d.Snap.Interpreter)
	v.SetDefault("snap.inside_tmp", d.Snap.InsideTmp)
}

// bindEnv enables POSTCOND_<KEY> overrides for every key (dots become
// underscores). Retention additionally honors the Ansible variable so an
// operator's existing keep-remote-files habit carries over.
func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v.BindEnv("keep_remote_files", EnvPrefix+"_KEEP_REMOTE_FILES", "ANSIBLE_KEEP_REMOTE_FILES")
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	resolvedPath := ""

	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'postcond config show' to see the default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, err
		}
		if cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt); fileExists(cuePath) {
			resolvedPath = cuePath
		}
		// No config file: defaults and environment only.
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Compare with the output of 'postcond config show --format cue'").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Source = resolvedPath

	if err := cfg.Validate(); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check POSTCOND_* environment variables for typos").
			Wrap(err).
			BuildError()
	}

	return &cfg, nil
}

func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

// loadCUEIntoViper validates a CUE file against #Config and merges it into v.
// Validation is non-concrete: every field is optional.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	configMap, err := cueutil.DecodeMap(configSchema, data, "#Config",
		cueutil.WithFilename(path),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default configuration to the config
// directory unless a config file already exists. It returns the file path.
func CreateDefaultConfig() (string, error) {
	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
	if fileExists(cfgPath) {
		return cfgPath, nil
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return cfgPath, nil
}

// GenerateCUE renders cfg as a config file accepted by the schema.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// postcond configuration\n\n")
	fmt.Fprintf(&sb, "staging_root: %q\n", cfg.StagingRoot)
	fmt.Fprintf(&sb, "staging_stem: %q\n", cfg.StagingStem)
	fmt.Fprintf(&sb, "keep_remote_files: %v\n", cfg.KeepRemoteFiles)
	fmt.Fprintf(&sb, "default_runner: %q\n", cfg.DefaultRunner)
	fmt.Fprintf(&sb, "timeout: %q\n", cfg.Timeout.String())

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel: %q\n", cfg.Log.Level)
	sb.WriteString("}\n")

	sb.WriteString("\npython: {\n")
	fmt.Fprintf(&sb, "\tinterpreter: %q\n", cfg.Python.Interpreter)
	fmt.Fprintf(&sb, "\tisolated: %v\n", cfg.Python.Isolated)
	sb.WriteString("\tsys_path: [")
	for i, p := range cfg.Python.SysPath {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", p)
	}
	sb.WriteString("]\n")
	fmt.Fprintf(&sb, "\tentry_point_import: %q\n", cfg.Python.EntryPointImport)
	sb.WriteString("}\n")

	sb.WriteString("\ndjango: {\n")
	fmt.Fprintf(&sb, "\tproject_dir: %q\n", cfg.Django.ProjectDir)
	fmt.Fprintf(&sb, "\tmanage_py: %q\n", cfg.Django.ManagePy)
	fmt.Fprintf(&sb, "\tsettings_module: %q\n", cfg.Django.SettingsModule)
	fmt.Fprintf(&sb, "\tenv_file: %q\n", cfg.Django.EnvFile)
	sb.WriteString("}\n")

	sb.WriteString("\ncontainer: {\n")
	fmt.Fprintf(&sb, "\tengine: %q\n", cfg.Container.Engine)
	fmt.Fprintf(&sb, "\tname: %q\n", cfg.Container.Name)
	fmt.Fprintf(&sb, "\tinterpreter: %q\n", cfg.Container.Interpreter)
	fmt.Fprintf(&sb, "\tinside_tmp: %q\n", cfg.Container.InsideTmp)
	sb.WriteString("}\n")

	sb.WriteString("\nsnap: {\n")
	fmt.Fprintf(&sb, "\tname: %q\n", cfg.Snap.Name)
	fmt.Fprintf(&sb, "\tapp: %q\n", cfg.Snap.App)
	fmt.Fprintf(&sb, "\tinterpreter: %q\n", cfg.Snap.Interpreter)
	fmt.Fprintf(&sb, "\tinside_tmp: %q\n", cfg.Snap.InsideTmp)
	sb.WriteString("}\n")

	return sb.String()
}
