package provision

import (
	"fmt"
	"os"
	"path/filepath"
)

// rootMarkers identify the service checkout when searching upwards.
var rootMarkers = []string{"requirements.txt", "setup.py"}

// Vendored is a sub-project with its paths resolved.
type Vendored struct {
	Name    string
	URL     string
	Archive string
	Dir     string
}

// Layout holds every absolute path a run touches.
type Layout struct {
	Root            string
	Venv            string
	Download        string
	Requirements    string
	DevRequirements string

	Larynx Vendored
	TTS    Vendored
}

// Vendored returns the sub-projects outermost first, the order they must
// be unpacked in.
func (l Layout) Vendored() []Vendored {
	return []Vendored{l.Larynx, l.TTS}
}

// SubmoduleMarker is the file whose absence means the nested sources were
// never checked out.
func (l Layout) SubmoduleMarker() string {
	return filepath.Join(l.TTS.Dir, "setup.py")
}

// PackageMarker makes the Larynx directory importable.
func (l Layout) PackageMarker() string {
	return filepath.Join(l.Larynx.Dir, "__init__.py")
}

// ResolveLayout derives the layout from cfg. When cfg.SourceRoot is empty
// the root is searched for upwards from start, which callers set to the
// program's own directory so the caller's working directory never matters.
func ResolveLayout(cfg Config, start string) (Layout, error) {
	root := cfg.SourceRoot
	if root == "" {
		found, err := FindSourceRoot(start)
		if err != nil {
			return Layout{}, err
		}
		root = found
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("unable to get absolute path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return Layout{}, fmt.Errorf("%w: %v", ErrNoSourceRoot, err)
	}
	if !info.IsDir() {
		return Layout{}, fmt.Errorf("%w: %s is not a directory", ErrNoSourceRoot, root)
	}

	download := under(root, cfg.DownloadDir)
	vendored := func(sp SubProject) Vendored {
		v := Vendored{Name: sp.Name, URL: sp.URL, Dir: under(root, sp.Dir)}
		if sp.Archive != "" {
			v.Archive = under(download, sp.Archive)
		}
		return v
	}

	l := Layout{
		Root:         root,
		Venv:         under(root, cfg.VenvDir),
		Download:     download,
		Requirements: under(root, cfg.Requirements),
		Larynx:       vendored(cfg.Larynx),
		TTS:          vendored(cfg.TTS),
	}
	if cfg.DevRequirements != "" {
		l.DevRequirements = under(root, cfg.DevRequirements)
	}
	return l, nil
}

// FindSourceRoot walks up from start to the first directory holding all
// root markers.
func FindSourceRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("unable to get absolute path: %w", err)
	}
	for {
		if hasMarkers(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no directory above %s contains %v", ErrNoSourceRoot, start, rootMarkers)
		}
		dir = parent
	}
}

// ExecutableDir is the directory of the running binary with symlinks
// resolved.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("unable to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

func hasMarkers(dir string) bool {
	for _, m := range rootMarkers {
		info, err := os.Stat(filepath.Join(dir, m))
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

func under(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
