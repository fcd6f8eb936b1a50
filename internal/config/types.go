// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// RunnerPython runs the composed script with a plain interpreter.
	RunnerPython RunnerName = "python"
	// RunnerDjango runs it inside `manage.py shell`.
	RunnerDjango RunnerName = "django"
	// RunnerContainer runs it inside a running container via docker/podman exec.
	RunnerContainer RunnerName = "container"
	// RunnerSnap runs it inside a snap's confinement via `snap run --shell`.
	RunnerSnap RunnerName = "snap"

	// ContainerEngineDocker uses Docker.
	ContainerEngineDocker ContainerEngine = "docker"
	// ContainerEnginePodman uses Podman.
	ContainerEnginePodman ContainerEngine = "podman"

	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"

	// DefaultStagingStem is the base name of per-invocation staging directories.
	DefaultStagingStem = ".postcond"
	// DefaultTimeout bounds how long the target runtime may run.
	DefaultTimeout = 10 * time.Minute
)

var (
	// ErrInvalidRunnerName is returned when a RunnerName value is not recognized.
	ErrInvalidRunnerName = errors.New("invalid runner")
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidStagingStem is returned for an empty stem or one containing a path separator.
	ErrInvalidStagingStem = errors.New("invalid staging stem")
	// ErrInvalidTimeout is returned for a negative timeout.
	ErrInvalidTimeout = errors.New("invalid timeout")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// RunnerName selects a runner. Defined here so config does not import
	// the runner package; the registry converts at the boundary.
	RunnerName string

	// InvalidRunnerNameError wraps ErrInvalidRunnerName.
	InvalidRunnerNameError struct {
		Value RunnerName
	}

	// ContainerEngine specifies which container CLI the container runner drives.
	ContainerEngine string

	// InvalidContainerEngineError wraps ErrInvalidContainerEngine.
	InvalidContainerEngineError struct {
		Value ContainerEngine
	}

	// LogLevel is the minimum level written to stderr.
	LogLevel string

	// InvalidLogLevelError wraps ErrInvalidLogLevel.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidConfigError collects field-level validation errors and wraps
	// ErrInvalidConfig.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// StagingRoot is the directory under which staging directories are
		// created (outside view).
		StagingRoot string `json:"staging_root" mapstructure:"staging_root"`
		// StagingStem is the staging directory base name (".postcond").
		StagingStem string `json:"staging_stem" mapstructure:"staging_stem"`
		// KeepRemoteFiles retains staged files after the run for inspection.
		KeepRemoteFiles bool `json:"keep_remote_files" mapstructure:"keep_remote_files"`
		// DefaultRunner is used when a request names none.
		DefaultRunner RunnerName `json:"default_runner" mapstructure:"default_runner"`
		// Timeout bounds the subprocess wait; 0 waits without limit.
		Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

		Log       LogConfig       `json:"log" mapstructure:"log"`
		Python    PythonConfig    `json:"python" mapstructure:"python"`
		Django    DjangoConfig    `json:"django" mapstructure:"django"`
		Container ContainerConfig `json:"container" mapstructure:"container"`
		Snap      SnapConfig      `json:"snap" mapstructure:"snap"`

		// Source is the config file the values were read from, if any.
		Source string `json:"-" mapstructure:"-"`
	}

	LogConfig struct {
		Level LogLevel `json:"level" mapstructure:"level"`
	}

	// PythonConfig configures the plain interpreter runner and the parts of
	// the composed script shared by every runner.
	PythonConfig struct {
		Interpreter string `json:"interpreter" mapstructure:"interpreter"`
		// Isolated passes -I so user site-packages and PYTHON* env are ignored.
		Isolated bool `json:"isolated" mapstructure:"isolated"`
		// SysPath entries are prepended to sys.path before the snippet runs.
		SysPath []string `json:"sys_path" mapstructure:"sys_path"`
		// EntryPointImport is the import statement that makes
		// PostconditionBase resolvable.
		EntryPointImport string `json:"entry_point_import" mapstructure:"entry_point_import"`
	}

	// DjangoConfig configures the Django shell runner.
	DjangoConfig struct {
		ProjectDir     string `json:"project_dir" mapstructure:"project_dir"`
		ManagePy       string `json:"manage_py" mapstructure:"manage_py"`
		SettingsModule string `json:"settings_module" mapstructure:"settings_module"`
		// EnvFile is a dotenv file loaded into the shell's environment.
		EnvFile string `json:"env_file" mapstructure:"env_file"`
	}

	// ContainerConfig configures the container exec runner.
	ContainerConfig struct {
		Engine      ContainerEngine `json:"engine" mapstructure:"engine"`
		Name        string          `json:"name" mapstructure:"name"`
		Interpreter string          `json:"interpreter" mapstructure:"interpreter"`
		// InsideTmp is the staging root as seen from inside the container.
		InsideTmp string `json:"inside_tmp" mapstructure:"inside_tmp"`
	}

	// SnapConfig configures the snap runner.
	SnapConfig struct {
		Name        string `json:"name" mapstructure:"name"`
		App         string `json:"app" mapstructure:"app"`
		Interpreter string `json:"interpreter" mapstructure:"interpreter"`
		InsideTmp   string `json:"inside_tmp" mapstructure:"inside_tmp"`
	}
)

func (e *InvalidRunnerNameError) Error() string {
	return fmt.Sprintf("invalid runner %q (valid: python, django, container, snap)", e.Value)
}

func (e *InvalidRunnerNameError) Unwrap() error { return ErrInvalidRunnerName }

func (r RunnerName) String() string { return string(r) }

// IsValid returns whether r names a known runner.
func (r RunnerName) IsValid() (bool, []error) {
	switch r {
	case RunnerPython, RunnerDjango, RunnerContainer, RunnerSnap:
		return true, nil
	default:
		return false, []error{&InvalidRunnerNameError{Value: r}}
	}
}

func (e *InvalidContainerEngineError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: docker, podman)", e.Value)
}

func (e *InvalidContainerEngineError) Unwrap() error { return ErrInvalidContainerEngine }

func (ce ContainerEngine) String() string { return string(ce) }

// IsValid returns whether ce is a supported engine.
func (ce ContainerEngine) IsValid() (bool, []error) {
	switch ce {
	case ContainerEngineDocker, ContainerEnginePodman:
		return true, nil
	default:
		return false, []error{&InvalidContainerEngineError{Value: ce}}
	}
}

func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

func (l LogLevel) String() string { return string(l) }

// IsValid returns whether l is a known level.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// IsValid checks the fields CUE cannot constrain on its own (values that
// may also arrive through environment overrides).
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.DefaultRunner.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Container.Engine.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Log.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if c.StagingStem == "" || strings.ContainsRune(c.StagingStem, os.PathSeparator) {
		errs = append(errs, fmt.Errorf("%w %q: must be a non-empty base name", ErrInvalidStagingStem, c.StagingStem))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w %s: must not be negative", ErrInvalidTimeout, c.Timeout))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Validate is IsValid folded into a single error.
func (c Config) Validate() error {
	if ok, errs := c.IsValid(); !ok {
		return errs[0]
	}
	return nil
}

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		msgs = append(msgs, fe.Error())
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns the sentinel and every field error, so errors.Is matches
// both ErrInvalidConfig and the field sentinels.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		StagingRoot:     os.TempDir(),
		StagingStem:     DefaultStagingStem,
		KeepRemoteFiles: false,
		DefaultRunner:   RunnerPython,
		Timeout:         DefaultTimeout,
		Log: LogConfig{
			Level: LogLevelWarn,
		},
		Python: PythonConfig{
			Interpreter: "python3",
			SysPath:     []string{},
		},
		Django: DjangoConfig{
			ManagePy: "manage.py",
		},
		Container: ContainerConfig{
			Engine:      ContainerEngineDocker,
			Interpreter: "python3",
			InsideTmp:   "/tmp",
		},
		Snap: SnapConfig{
			Interpreter: "python3",
			InsideTmp:   "/tmp",
		},
	}
}
