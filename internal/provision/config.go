package provision

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rhasspy/larynx-setup/internal/pyenv"
	"github.com/sahilm/fuzzy"
)

// SourceMode selects how the vendored sub-projects reach the source tree.
type SourceMode string

const (
	// SourcesDownload fetches pinned tarballs and unpacks them.
	SourcesDownload SourceMode = "download"
	// SourcesSubmodule expects the sources to be checked out already,
	// normally as git submodules.
	SourcesSubmodule SourceMode = "submodule"
)

// Valid reports whether m is a known mode.
func (m SourceMode) Valid() bool {
	return m == SourcesDownload || m == SourcesSubmodule
}

// SubProject is a vendored source tree built in place.
type SubProject struct {
	// Name is used in log lines and the plan.
	Name string
	// URL is the pinned source archive. Only used in download mode.
	URL string
	// Archive is the file name inside the download directory.
	Archive string
	// Dir is where the sources live, relative to the source root.
	Dir string
}

// Config holds the provisioner configuration.
type Config struct {
	// SourceRoot is the service checkout. Empty means auto-detect.
	SourceRoot string

	// Python is the interpreter used to create the venv.
	Python string
	// InstallMode is the pip subcommand, "install" unless overridden.
	InstallMode string

	Sources SourceMode

	VenvDir         string
	DownloadDir     string
	Requirements    string
	DevRequirements string

	// FirstPartyPrefix marks requirements that may be satisfied from the
	// download directory before the public index.
	FirstPartyPrefix string

	// SkipDev skips the development requirements entirely.
	SkipDev bool

	HTTPTimeout    time.Duration
	CommandTimeout time.Duration

	// Larynx is the TTS toolkit; TTS is its MozillaTTS dependency which
	// lives inside the Larynx tree.
	Larynx SubProject
	TTS    SubProject
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Python:           "python3",
		InstallMode:      pyenv.DefaultInstallMode,
		Sources:          SourcesDownload,
		VenvDir:          ".venv",
		DownloadDir:      "download",
		Requirements:     "requirements.txt",
		DevRequirements:  "requirements_dev.txt",
		FirstPartyPrefix: "rhasspy-",
		HTTPTimeout:      10 * time.Minute,
		Larynx: SubProject{
			Name:    "larynx",
			URL:     "https://github.com/rhasspy/larynx/archive/v0.3.1.tar.gz",
			Archive: "larynx-0.3.1.tar.gz",
			Dir:     "larynx",
		},
		TTS: SubProject{
			Name:    "TTS",
			URL:     "https://github.com/rhasspy/TTS/archive/larynx-v0.3.1.tar.gz",
			Archive: "TTS-larynx-v0.3.1.tar.gz",
			Dir:     "larynx/TTS",
		},
	}
}

// Validate checks that the configuration can drive a provisioning run.
func (c Config) Validate() error {
	if c.Python == "" {
		return fmt.Errorf("%w: python interpreter is empty", ErrInvalidConfig)
	}
	if !c.Sources.Valid() {
		return fmt.Errorf("%w: sources must be %q or %q, got %q%s",
			ErrInvalidConfig, SourcesDownload, SourcesSubmodule, c.Sources, suggestSources(c.Sources))
	}
	if c.VenvDir == "" || c.DownloadDir == "" {
		return fmt.Errorf("%w: venv and download directories are required", ErrInvalidConfig)
	}
	if c.Requirements == "" {
		return fmt.Errorf("%w: requirements manifest is required", ErrInvalidConfig)
	}
	if c.FirstPartyPrefix == "" {
		return fmt.Errorf("%w: first-party prefix is empty", ErrInvalidConfig)
	}
	if c.HTTPTimeout < 0 || c.CommandTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	for _, sp := range []SubProject{c.Larynx, c.TTS} {
		if sp.Dir == "" {
			return fmt.Errorf("%w: %s directory is required", ErrInvalidConfig, sp.Name)
		}
		if c.Sources == SourcesDownload && (sp.URL == "" || sp.Archive == "") {
			return fmt.Errorf("%w: %s needs a url and archive name in download mode", ErrInvalidConfig, sp.Name)
		}
	}
	return nil
}

// suggestSources returns a "did you mean" hint for a misspelt mode.
func suggestSources(m SourceMode) string {
	if m == "" {
		return ""
	}
	matches := fuzzy.Find(string(m), []string{string(SourcesDownload), string(SourcesSubmodule)})
	if len(matches) == 0 {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", matches[0].Str)
}

// EnvOverrides are the PYTHON and PIP_INSTALL variables existing callers
// already set.
type EnvOverrides struct {
	Python      string `env:"PYTHON"`
	InstallMode string `env:"PIP_INSTALL"`
}

// ParseEnvOverrides reads EnvOverrides from the process environment.
func ParseEnvOverrides() (EnvOverrides, error) {
	o, err := env.ParseAs[EnvOverrides]()
	if err != nil {
		return o, fmt.Errorf("error parsing environment: %w", err)
	}
	return o, nil
}

// Apply copies every non-empty override onto c.
func (o EnvOverrides) Apply(c *Config) {
	if o.Python != "" {
		c.Python = o.Python
	}
	if o.InstallMode != "" {
		c.InstallMode = o.InstallMode
	}
}
