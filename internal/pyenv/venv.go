// Package pyenv manages the isolated Python environment the service is
// developed in. Instead of sourcing an activate script, every command is
// built against the venv's own interpreter and environment.
package pyenv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/rhasspy/larynx-setup/internal/subprocess"
)

// DefaultInstallMode is the pip subcommand used when none is configured.
const DefaultInstallMode = "install"

// Venv is a Python virtual environment rooted at Dir.
type Venv struct {
	Dir string
}

// New returns the venv at dir. Nothing is created.
func New(dir string) *Venv {
	return &Venv{Dir: dir}
}

// BinDir is where the venv keeps its executables.
func (v *Venv) BinDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(v.Dir, "Scripts")
	}
	return filepath.Join(v.Dir, "bin")
}

// Python is the venv's interpreter.
func (v *Venv) Python() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(v.BinDir(), "python.exe")
	}
	return filepath.Join(v.BinDir(), "python")
}

// Exists reports whether the venv interpreter is present.
func (v *Venv) Exists() bool {
	_, err := os.Stat(v.Python())
	return err == nil
}

// Create removes any previous environment at v.Dir and creates a fresh one
// with interpreter.
func (v *Venv) Create(ctx context.Context, r subprocess.Runner, interpreter string) error {
	if err := os.RemoveAll(v.Dir); err != nil {
		return fmt.Errorf("unable to remove old virtual environment: %w", err)
	}
	log.Info("Creating virtual environment", "dir", v.Dir, "python", interpreter)
	cmd := subprocess.Cmd{
		Name: interpreter,
		Args: []string{"-m", "venv", v.Dir},
	}
	if err := r.Run(ctx, cmd); err != nil {
		return fmt.Errorf("unable to create virtual environment: %w", err)
	}
	return nil
}

// Environ returns base with the venv activated: VIRTUAL_ENV set, the bin
// directory first on PATH and PYTHONHOME removed.
func (v *Venv) Environ(base []string) []string {
	env := make([]string, 0, len(base)+2)
	path := ""
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch {
		case strings.EqualFold(key, "PATH"):
			path = value
		case key == "VIRTUAL_ENV", key == "PYTHONHOME":
		default:
			env = append(env, kv)
		}
	}
	if path != "" {
		path = v.BinDir() + string(os.PathListSeparator) + path
	} else {
		path = v.BinDir()
	}
	return append(env, "VIRTUAL_ENV="+v.Dir, "PATH="+path)
}

// Command builds a command that runs the venv interpreter with args.
func (v *Venv) Command(dir string, args ...string) subprocess.Cmd {
	return subprocess.Cmd{
		Name: v.Python(),
		Args: args,
		Dir:  dir,
		Env:  v.Environ(os.Environ()),
	}
}

// Pip builds `python -m pip <mode...> <args...>`. The mode is split on
// whitespace so overrides like "install --dry-run" work.
func (v *Venv) Pip(dir, mode string, args ...string) subprocess.Cmd {
	fields := strings.Fields(mode)
	if len(fields) == 0 {
		fields = []string{DefaultInstallMode}
	}
	full := append([]string{"-m", "pip"}, fields...)
	return v.Command(dir, append(full, args...)...)
}
