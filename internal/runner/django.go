// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/postcond/postcond/internal/staging"
)

// DefaultManagePy is the Django management script name.
const DefaultManagePy = "manage.py"

var (
	_ Launcher         = (*DjangoLauncher)(nil)
	_ EnvProvider      = (*DjangoLauncher)(nil)
	_ WorkDirProvider  = (*DjangoLauncher)(nil)
	_ PrologueProvider = (*DjangoLauncher)(nil)
)

// DjangoLauncher runs the script inside `manage.py shell`, so the project's
// settings are loaded and the app registry is ready before the snippet runs.
type DjangoLauncher struct {
	Python     string
	ProjectDir string
	// ManagePy is relative to ProjectDir unless absolute.
	ManagePy string
	// SettingsModule, when set, is exported as DJANGO_SETTINGS_MODULE.
	SettingsModule string
	// EnvFile is a dotenv file (relative to ProjectDir unless absolute)
	// loaded into the shell's environment.
	EnvFile          string
	EntryPointImport string
}

// Argv returns `<python> manage.py shell --command <loader>`. The loader
// compiles the staged file under its own name so tracebacks point at it.
func (d *DjangoLauncher) Argv(script staging.StagedFile) ([]string, error) {
	if script.InsidePath == "" {
		return nil, ErrNoInsidePath
	}
	return []string{
		interpreterOrDefault(d.Python),
		d.managePy(),
		"shell",
		"--command",
		execFileCommand(script.InsidePath),
	}, nil
}

// WorkDir returns the project directory.
func (d *DjangoLauncher) WorkDir() string {
	return d.ProjectDir
}

// Env returns the dotenv file's variables plus DJANGO_SETTINGS_MODULE.
func (d *DjangoLauncher) Env() (map[string]string, error) {
	env := map[string]string{}
	if d.EnvFile != "" {
		path := d.resolve(d.EnvFile)
		vars, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", path, err)
		}
		env = vars
	}
	if d.SettingsModule != "" {
		env["DJANGO_SETTINGS_MODULE"] = d.SettingsModule
	}
	return env, nil
}

// Prologue returns the configured entry-point import. manage.py shell has
// already called django.setup(), so there is no initialisation fragment.
func (d *DjangoLauncher) Prologue() (string, string) {
	return d.EntryPointImport, ""
}

// ManagePyPath returns the outside path of manage.py.
func (d *DjangoLauncher) ManagePyPath() string {
	return d.resolve(d.managePy())
}

func (d *DjangoLauncher) managePy() string {
	if d.ManagePy == "" {
		return DefaultManagePy
	}
	return d.ManagePy
}

func (d *DjangoLauncher) resolve(path string) string {
	if filepath.IsAbs(path) || d.ProjectDir == "" {
		return path
	}
	return filepath.Join(d.ProjectDir, path)
}

// execFileCommand is a Python statement that runs the file at path in the
// current namespace.
func execFileCommand(path string) string {
	quoted := strconv.Quote(path)
	return fmt.Sprintf("exec(compile(open(%[1]s).read(), %[1]s, 'exec'))", quoted)
}
