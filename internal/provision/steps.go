package provision

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/rhasspy/larynx-setup/internal/archive"
	"github.com/rhasspy/larynx-setup/internal/fetch"
)

func (p *Provisioner) checkSources(_ context.Context) error {
	marker := p.layout.SubmoduleMarker()
	if _, err := os.Stat(marker); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s is missing. Run: git submodule update --init --recursive", ErrMissingSources, marker)
	} else if err != nil {
		return fmt.Errorf("unable to stat %s: %w", marker, err)
	}
	return nil
}

// fetchArchives downloads the missing archives one after the other. The
// first failure ends the step.
func (p *Provisioner) fetchArchives(ctx context.Context) error {
	cached := 0
	for _, v := range p.layout.Vendored() {
		out, err := p.fetcher.Ensure(ctx, fetch.Archive{Name: v.Name, URL: v.URL, Path: v.Archive})
		if err != nil {
			return err
		}
		if out.Cached {
			cached++
		}
	}
	if cached == len(p.layout.Vendored()) {
		return skip("all archives already downloaded")
	}
	return nil
}

func (p *Provisioner) createVenv(ctx context.Context) error {
	return p.venv.Create(ctx, p.runner, p.cfg.Python)
}

func (p *Provisioner) upgradeTooling(ctx context.Context) error {
	if err := p.pip(ctx, p.layout.Root, "--upgrade", "pip"); err != nil {
		return err
	}
	return p.pip(ctx, p.layout.Root, "--upgrade", "wheel", "setuptools")
}

// installFirstParty installs the first-party requirements with the download
// directory as an extra find-links source, so locally built packages win
// over the public index when both satisfy the requirement.
func (p *Provisioner) installFirstParty(ctx context.Context) error {
	reqs, err := ReadRequirements(p.layout.Requirements)
	if err != nil {
		return err
	}
	firstParty, _ := SplitFirstParty(reqs, p.cfg.FirstPartyPrefix)
	if len(firstParty) == 0 {
		return skip("no %s requirements", p.cfg.FirstPartyPrefix)
	}

	if err := os.MkdirAll(p.layout.Download, 0o755); err != nil { //nolint:gosec
		return fmt.Errorf("unable to create download directory: %w", err)
	}
	args := append([]string{"-f", p.layout.Download}, firstParty...)
	return p.pip(ctx, p.layout.Root, args...)
}

func (p *Provisioner) installRequirements(ctx context.Context) error {
	if _, err := os.Stat(p.layout.Requirements); err != nil {
		return fmt.Errorf("%w: %s", ErrMissingManifest, p.layout.Requirements)
	}
	return p.pip(ctx, p.layout.Root, "-r", p.layout.Requirements)
}

// prepareVendored recreates the vendored trees from their archives (in
// download mode) and marks the Larynx tree as a package.
func (p *Provisioner) prepareVendored(_ context.Context) error {
	if p.cfg.Sources == SourcesDownload {
		for _, v := range p.layout.Vendored() {
			if err := unpack(v); err != nil {
				return err
			}
		}
	}

	marker := p.layout.PackageMarker()
	f, err := os.OpenFile(marker, os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", marker, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("unable to close %s: %w", marker, err)
	}
	return nil
}

func unpack(v Vendored) error {
	if err := os.RemoveAll(v.Dir); err != nil {
		return fmt.Errorf("unable to remove %s: %w", v.Dir, err)
	}
	if err := os.MkdirAll(v.Dir, 0o755); err != nil { //nolint:gosec
		return fmt.Errorf("unable to create %s: %w", v.Dir, err)
	}
	stats, err := archive.Extract(v.Archive, v.Dir, archive.Options{StripComponents: 1})
	if err != nil {
		return err
	}
	log.Info("Extracted", "name", v.Name, "dir", v.Dir,
		"files", stats.Files, "size", humanize.Bytes(uint64(stats.Bytes))) //nolint:gosec
	return nil
}

// installSubProjects installs the nested MozillaTTS tree first, including
// its develop step, then the Larynx requirements.
func (p *Provisioner) installSubProjects(ctx context.Context) error {
	tts := p.layout.TTS
	if err := p.pip(ctx, tts.Dir, "-r", "requirements.txt"); err != nil {
		return fmt.Errorf("%s: %w", tts.Name, err)
	}
	if err := p.runner.Run(ctx, p.venv.Command(tts.Dir, "setup.py", "develop")); err != nil {
		return fmt.Errorf("%s: %w", tts.Name, err)
	}

	larynx := p.layout.Larynx
	if err := p.pip(ctx, larynx.Dir, "-r", "requirements.txt"); err != nil {
		return fmt.Errorf("%s: %w", larynx.Name, err)
	}
	return nil
}

func (p *Provisioner) installDevRequirements(ctx context.Context) error {
	if p.cfg.SkipDev {
		return skip("disabled by configuration")
	}
	if p.layout.DevRequirements == "" {
		return skip("no development manifest configured")
	}
	return p.pip(ctx, p.layout.Root, "-r", p.layout.DevRequirements)
}

func (p *Provisioner) pip(ctx context.Context, dir string, args ...string) error {
	return p.runner.Run(ctx, p.venv.Pip(dir, p.cfg.InstallMode, args...))
}
