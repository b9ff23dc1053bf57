package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/rhasspy/larynx-setup/internal/fetch"
	"github.com/rhasspy/larynx-setup/internal/pyenv"
	"github.com/rhasspy/larynx-setup/internal/subprocess"
)

// SuccessMarker is printed once a run completes.
const SuccessMarker = "OK"

// Step names, in execution order.
const (
	StepCheckSources    = "check-sources"
	StepFetch           = "fetch"
	StepCreateVenv      = "create-venv"
	StepUpgradeTooling  = "upgrade-tooling"
	StepFirstParty      = "first-party"
	StepRequirements    = "requirements"
	StepVendor          = "vendor"
	StepSubProjects     = "subprojects"
	StepDevRequirements = "dev-requirements"
)

// ArchiveFetcher fetches source archives.
type ArchiveFetcher interface {
	Ensure(ctx context.Context, a fetch.Archive) (fetch.Outcome, error)
}

// StepStatus is the outcome of a single step.
type StepStatus int

const (
	StatusDone StepStatus = iota
	StatusSkipped
	StatusWarned
	StatusFailed
)

func (s StepStatus) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusSkipped:
		return "skipped"
	case StatusWarned:
		return "warned"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StepResult records what happened to a step.
type StepResult struct {
	Step    StepInfo
	Status  StepStatus
	Elapsed time.Duration
	Err     error
}

// Result summarises a run.
type Result struct {
	// RunID tells runs apart in a shared log file.
	RunID string
	Steps []StepResult
}

// Warnings returns the errors of tolerated step failures.
func (r *Result) Warnings() []error {
	var out []error
	for _, s := range r.Steps {
		if s.Status == StatusWarned {
			out = append(out, s.Err)
		}
	}
	return out
}

// Provisioner builds the development environment.
type Provisioner struct {
	cfg    Config
	layout Layout
	venv   *pyenv.Venv

	runner   subprocess.Runner
	fetcher  ArchiveFetcher
	observer Observer
	out      io.Writer
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithRunner sets the command runner.
func WithRunner(r subprocess.Runner) Option {
	return func(p *Provisioner) {
		p.runner = r
	}
}

// WithFetcher sets the archive fetcher.
func WithFetcher(f ArchiveFetcher) Option {
	return func(p *Provisioner) {
		p.fetcher = f
	}
}

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option {
	return func(p *Provisioner) {
		p.observer = o
	}
}

// WithOutput sets where the success marker is written.
func WithOutput(w io.Writer) Option {
	return func(p *Provisioner) {
		p.out = w
	}
}

// New creates a Provisioner for layout.
func New(cfg Config, layout Layout, opts ...Option) (*Provisioner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Provisioner{
		cfg:      cfg,
		layout:   layout,
		venv:     pyenv.New(layout.Venv),
		observer: LogObserver{},
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.runner == nil {
		p.runner = subprocess.NewManager(os.Stdout, os.Stderr, cfg.CommandTimeout)
	}
	if p.fetcher == nil {
		p.fetcher = fetch.New(cfg.HTTPTimeout)
	}
	return p, nil
}

// Layout returns the resolved paths.
func (p *Provisioner) Layout() Layout {
	return p.layout
}

// Venv returns the environment being provisioned.
func (p *Provisioner) Venv() *pyenv.Venv {
	return p.venv
}

type step struct {
	StepInfo
	run func(ctx context.Context) error
}

// steps returns the ordered step list for the configured source mode.
func (p *Provisioner) steps() []step {
	var steps []step
	switch p.cfg.Sources {
	case SourcesSubmodule:
		steps = append(steps, step{
			StepInfo: StepInfo{Name: StepCheckSources, Description: "Checking vendored sources"},
			run:      p.checkSources,
		})
	default:
		steps = append(steps, step{
			StepInfo: StepInfo{Name: StepFetch, Description: "Fetching source archives"},
			run:      p.fetchArchives,
		})
	}

	steps = append(steps,
		step{
			StepInfo: StepInfo{Name: StepCreateVenv, Description: "Creating virtual environment"},
			run:      p.createVenv,
		},
		step{
			StepInfo: StepInfo{Name: StepUpgradeTooling, Description: "Upgrading pip, wheel and setuptools"},
			run:      p.upgradeTooling,
		},
		step{
			StepInfo: StepInfo{Name: StepFirstParty, Description: "Installing first-party requirements"},
			run:      p.installFirstParty,
		},
		step{
			StepInfo: StepInfo{Name: StepRequirements, Description: "Installing requirements"},
			run:      p.installRequirements,
		},
		step{
			StepInfo: StepInfo{Name: StepVendor, Description: "Preparing vendored sources"},
			run:      p.prepareVendored,
		},
		step{
			StepInfo: StepInfo{Name: StepSubProjects, Description: "Installing vendored sub-projects"},
			run:      p.installSubProjects,
		},
		step{
			StepInfo: StepInfo{Name: StepDevRequirements, Description: "Installing development requirements", Optional: true},
			run:      p.installDevRequirements,
		},
	)
	return steps
}

// Plan lists the steps a run would execute, in order.
func (p *Provisioner) Plan() []StepInfo {
	steps := p.steps()
	out := make([]StepInfo, len(steps))
	for i, s := range steps {
		out[i] = s.StepInfo
	}
	return out
}

// Run executes every step in order. The first failure of a required step
// stops the run and is returned as a *StepError; failures of optional
// steps are recorded as warnings. On success the success marker is written.
func (p *Provisioner) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	log.Info("Provisioning", "run", res.RunID, "root", p.layout.Root, "sources", p.cfg.Sources, "python", p.cfg.Python)

	for _, s := range p.steps() {
		if err := ctx.Err(); err != nil {
			return res, &StepError{Step: s.Name, Severity: SeverityFatal, Err: err}
		}

		p.observer.StepStarted(s.StepInfo)
		start := time.Now()
		err := s.run(ctx)
		elapsed := time.Since(start)

		var skipped *skipError
		switch {
		case err == nil:
			p.observer.StepFinished(s.StepInfo, elapsed)
			res.Steps = append(res.Steps, StepResult{Step: s.StepInfo, Status: StatusDone, Elapsed: elapsed})

		case errors.As(err, &skipped):
			p.observer.StepSkipped(s.StepInfo, skipped.reason)
			res.Steps = append(res.Steps, StepResult{Step: s.StepInfo, Status: StatusSkipped, Elapsed: elapsed})

		case s.Optional:
			stepErr := &StepError{Step: s.Name, Severity: SeverityTolerated, Err: err}
			p.observer.StepWarned(s.StepInfo, stepErr)
			res.Steps = append(res.Steps, StepResult{Step: s.StepInfo, Status: StatusWarned, Elapsed: elapsed, Err: stepErr})

		default:
			stepErr := &StepError{Step: s.Name, Severity: SeverityFatal, Err: err}
			p.observer.StepFailed(s.StepInfo, stepErr)
			res.Steps = append(res.Steps, StepResult{Step: s.StepInfo, Status: StatusFailed, Elapsed: elapsed, Err: stepErr})
			return res, stepErr
		}
	}

	log.Debug("Provisioning finished", "run", res.RunID, "warnings", len(res.Warnings()))
	if _, err := fmt.Fprintln(p.out, SuccessMarker); err != nil {
		return res, fmt.Errorf("unable to write to writer: %w", err)
	}
	return res, nil
}

// Fetch downloads the source archives without touching anything else.
// Archives already on disk are not downloaded again.
func (p *Provisioner) Fetch(ctx context.Context) error {
	err := p.fetchArchives(ctx)
	var skipped *skipError
	if errors.As(err, &skipped) {
		log.Info("Nothing to fetch", "reason", skipped.reason)
		return nil
	}
	return err
}
