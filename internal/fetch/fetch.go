package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single archive download.
const DefaultTimeout = 10 * time.Minute

// Archive names a remote tarball and where it is kept on disk.
type Archive struct {
	Name string
	URL  string
	Path string
}

// Outcome reports what Ensure did.
type Outcome struct {
	// Cached is true when the archive was already on disk and no request
	// was made.
	Cached bool
	Size   int64
}

// Doer is the subset of *http.Client used by the Fetcher.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads archives into a local cache directory.
type Fetcher struct {
	client Doer

	// progressEvery limits how often download progress is logged.
	progressEvery time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the HTTP client.
func WithClient(c Doer) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithProgressInterval changes how often progress lines are logged.
func WithProgressInterval(d time.Duration) Option {
	return func(f *Fetcher) {
		f.progressEvery = d
	}
}

// New creates a Fetcher. A zero timeout uses DefaultTimeout.
func New(timeout time.Duration, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &Fetcher{
		client:        &http.Client{Timeout: timeout},
		progressEvery: time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Cached reports whether path holds a non-empty file.
func Cached(path string) (bool, int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("unable to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return false, 0, fmt.Errorf("%s is a directory", path)
	}
	return info.Size() > 0, info.Size(), nil
}

// Ensure makes sure a.Path holds the archive, downloading it from a.URL
// when it is missing or empty. The download is attempted exactly once.
func (f *Fetcher) Ensure(ctx context.Context, a Archive) (Outcome, error) {
	ok, size, err := Cached(a.Path)
	if err != nil {
		return Outcome{}, err
	}
	if ok {
		log.Debug("Archive already downloaded", "name", a.Name, "path", a.Path, "size", humanize.Bytes(uint64(size))) //nolint:gosec
		return Outcome{Cached: true, Size: size}, nil
	}

	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil { //nolint:gosec
		return Outcome{}, fmt.Errorf("unable to create download directory: %w", err)
	}

	log.Info("Downloading", "name", a.Name, "url", a.URL)
	n, err := f.download(ctx, a)
	if err != nil {
		return Outcome{}, &DownloadError{URL: a.URL, Err: err}
	}
	log.Info("Downloaded", "name", a.Name, "path", a.Path, "size", humanize.Bytes(uint64(n))) //nolint:gosec
	return Outcome{Size: n}, nil
}

func (f *Fetcher) download(ctx context.Context, a Archive) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("unable to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}

	// Written next to the target and renamed so an interrupted download
	// never looks like a cached archive.
	tmp := a.Path + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("unable to create file: %w", err)
	}
	removeTmp := true
	defer func() {
		if removeTmp {
			_ = os.Remove(tmp)
		}
	}()

	pw := &progressWriter{
		name:    a.Name,
		total:   resp.ContentLength,
		limiter: rate.NewLimiter(rate.Every(f.progressEvery), 1),
	}
	// The first Allow would always fire; nothing has been read yet.
	pw.limiter.Allow()

	n, err := io.Copy(out, io.TeeReader(resp.Body, pw))
	if err != nil {
		_ = out.Close()
		return n, fmt.Errorf("unable to read response: %w", err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("unable to close file: %w", err)
	}
	if n == 0 {
		return 0, errors.New("empty response body")
	}
	if err := os.Rename(tmp, a.Path); err != nil {
		return n, fmt.Errorf("unable to move download into place: %w", err)
	}
	removeTmp = false
	return n, nil
}

// DownloadError is a fatal failure to fetch an archive.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// progressWriter logs download progress, throttled by limiter.
type progressWriter struct {
	name    string
	total   int64
	read    int64
	limiter *rate.Limiter
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.read += int64(len(b))
	if p.limiter.Allow() {
		if p.total > 0 {
			log.Info("Downloading", "name", p.name,
				"progress", fmt.Sprintf("%s / %s", humanize.Bytes(uint64(p.read)), humanize.Bytes(uint64(p.total)))) //nolint:gosec
		} else {
			log.Info("Downloading", "name", p.name, "progress", humanize.Bytes(uint64(p.read))) //nolint:gosec
		}
	}
	return len(b), nil
}
