// Package doctor reports whether the host can provision and run the
// service.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/rhasspy/larynx-setup/internal/pyenv"
	"github.com/rhasspy/larynx-setup/internal/subprocess"
	"golang.org/x/sync/errgroup"
)

// ErrMissingDependencies is returned by CheckAll when a required
// dependency is not installed.
var ErrMissingDependencies = errors.New("missing required dependencies")

// probeTimeout bounds a single probe command.
const probeTimeout = 30 * time.Second

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Name         string
	Required     bool
	Installed    bool
	Version      string
	Path         string
	Error        error
	Instructions string
}

// Checker checks a single dependency.
type Checker interface {
	Check(ctx context.Context) DependencyStatus
}

// Probe runs a short command and returns its combined output.
type Probe func(ctx context.Context, cmd subprocess.Cmd) ([]byte, error)

// Report runs checkers in registration order and keeps their results.
type Report struct {
	names    []string
	checkers map[string]Checker
	Results  []DependencyStatus
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{checkers: make(map[string]Checker)}
}

// Add registers a checker. Adding a name twice replaces the checker but
// keeps its original position.
func (r *Report) Add(name string, c Checker) {
	if _, ok := r.checkers[name]; !ok {
		r.names = append(r.names, name)
	}
	r.checkers[name] = c
}

// CheckAll runs every checker. The probes are independent and run
// concurrently; results keep registration order.
func (r *Report) CheckAll(ctx context.Context) error {
	r.Results = make([]DependencyStatus, len(r.names))

	var g errgroup.Group
	g.SetLimit(4)
	for i, name := range r.names {
		c := r.checkers[name]
		g.Go(func() error {
			r.Results[i] = c.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var missing []string
	for _, status := range r.Results {
		switch {
		case status.Required && !status.Installed:
			missing = append(missing, status.Name)
			log.Error("Missing required dependency",
				"name", status.Name,
				"instructions", status.Instructions)
		case status.Installed:
			log.Debug("Dependency found",
				"name", status.Name,
				"version", status.Version,
				"path", status.Path)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingDependencies, strings.Join(missing, ", "))
	}
	return nil
}

// Render formats the results.
func (r *Report) Render() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		MarginBottom(1)
	installedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	missingStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	optionalStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	b.WriteString(titleStyle.Render("Larynx Environment Check"))
	b.WriteString("\n\n")

	for _, s := range r.Results {
		switch {
		case s.Installed:
			b.WriteString(installedStyle.Render(fmt.Sprintf("  ✓ %s: ", s.Name)))
			b.WriteString(strings.TrimSpace(s.Path + " " + s.Version))
			b.WriteString("\n")
		case s.Required:
			b.WriteString(missingStyle.Render(fmt.Sprintf("  ✗ %s: ", s.Name)))
			b.WriteString("Not installed\n")
		default:
			b.WriteString(optionalStyle.Render(fmt.Sprintf("  ○ %s: ", s.Name)))
			b.WriteString("Not installed (optional)\n")
		}
		if !s.Installed && s.Instructions != "" {
			fmt.Fprintf(&b, "    %s\n", s.Instructions)
		}
	}
	return b.String()
}

// Standard registers the checks for provisioning with python into venv.
// Import checks run from root so the service package in the checkout is
// found.
func Standard(python, root string, venv *pyenv.Venv, probe Probe) *Report {
	if probe == nil {
		probe = subprocess.Output
	}
	r := NewReport()
	r.Add("python", &InterpreterChecker{Python: python, Probe: probe})
	r.Add("venv-module", &ModuleChecker{
		Name: "venv module", Python: python, Module: "venv", Required: true, Probe: probe,
		Instructions: venvModuleInstructions(),
	})
	r.Add("virtualenv", &VenvChecker{Venv: venv})
	for _, m := range []string{"rhasspytts_larynx_hermes", "larynx", "TTS"} {
		r.Add("import-"+m, &ModuleChecker{
			Name: m, Python: venv.Python(), Module: m, Dir: root, Probe: probe,
			Instructions: "Run: larynx-setup",
		})
	}
	return r
}

// InterpreterChecker checks the interpreter used to create the venv.
type InterpreterChecker struct {
	Python string
	Probe  Probe
}

func (c *InterpreterChecker) Check(ctx context.Context) DependencyStatus {
	status := DependencyStatus{Name: c.Python, Required: true}

	path, err := subprocess.CheckBinary(c.Python)
	if err != nil {
		status.Error = err
		status.Instructions = interpreterInstructions()
		return status
	}
	status.Path = path

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := c.Probe(ctx, subprocess.Cmd{Name: path, Args: []string{"--version"}})
	if err != nil {
		status.Error = err
		status.Instructions = interpreterInstructions()
		return status
	}
	status.Installed = true
	status.Version = parseVersion(string(out))
	return status
}

// ModuleChecker checks that Python can import Module. Modules run with
// -m when they are tools (such as venv) and are imported otherwise.
type ModuleChecker struct {
	Name         string
	Python       string
	Module       string
	Dir          string
	Required     bool
	Instructions string
	Probe        Probe
}

func (c *ModuleChecker) Check(ctx context.Context) DependencyStatus {
	status := DependencyStatus{Name: c.Name, Required: c.Required}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	cmd := subprocess.Cmd{Name: c.Python, Args: []string{"-c", "import " + c.Module}, Dir: c.Dir}
	if _, err := c.Probe(ctx, cmd); err != nil {
		status.Error = err
		status.Instructions = c.Instructions
		return status
	}
	status.Installed = true
	status.Path = c.Module
	return status
}

// VenvChecker checks that the environment has been provisioned.
type VenvChecker struct {
	Venv *pyenv.Venv
}

func (c *VenvChecker) Check(_ context.Context) DependencyStatus {
	status := DependencyStatus{Name: "virtual environment"}
	if !c.Venv.Exists() {
		status.Instructions = "Run: larynx-setup"
		return status
	}
	status.Installed = true
	status.Path = c.Venv.Dir
	return status
}

// parseVersion turns "Python 3.9.5" into "3.9.5".
func parseVersion(out string) string {
	fields := strings.Fields(out)
	if len(fields) >= 2 && strings.EqualFold(fields[0], "python") {
		return fields[1]
	}
	return strings.TrimSpace(out)
}

func interpreterInstructions() string {
	switch runtime.GOOS {
	case "darwin":
		return "Install with: brew install python3"
	case "windows":
		return "Download from: https://www.python.org/downloads/"
	default:
		return "Install python3 with your package manager, or set PYTHON"
	}
}

func venvModuleInstructions() string {
	if runtime.GOOS == "linux" {
		return "Install the venv module, e.g.: sudo apt-get install python3-venv"
	}
	return "Reinstall Python with the venv module"
}
