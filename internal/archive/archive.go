package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Errors returned while unpacking.
var (
	ErrUnsafePath   = errors.New("archive entry escapes destination")
	ErrEmptyArchive = errors.New("archive contains no entries")
)

// Compression identifies how a tarball is compressed.
type Compression int

const (
	// None is a plain tar stream.
	None Compression = iota
	// Gzip is a .tar.gz / .tgz stream.
	Gzip
	// Zstd is a .tar.zst stream.
	Zstd
)

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return "none"
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Detect sniffs the compression from the first bytes of a stream.
func Detect(header []byte) Compression {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return Gzip
	case bytes.HasPrefix(header, zstdMagic):
		return Zstd
	default:
		return None
	}
}

// Options controls extraction.
type Options struct {
	// StripComponents drops this many leading path elements from every
	// entry, like tar --strip-components.
	StripComponents int
}

// Stats summarises an extraction.
type Stats struct {
	Files       int
	Dirs        int
	Symlinks    int
	Skipped     int
	Bytes       int64
	Compression Compression
}

// Extract unpacks the tarball at src into dest, which must already exist.
func Extract(src, dest string, opts Options) (Stats, error) {
	f, err := os.Open(src)
	if err != nil {
		return Stats{}, fmt.Errorf("unable to open archive: %w", err)
	}
	defer f.Close() //nolint:errcheck

	stats, err := ExtractReader(f, dest, opts)
	if err != nil {
		return stats, fmt.Errorf("extract %s: %w", filepath.Base(src), err)
	}
	return stats, nil
}

// ExtractReader unpacks a tar stream, compressed or not, into dest.
func ExtractReader(r io.Reader, dest string, opts Options) (Stats, error) {
	var stats Stats

	br := bufio.NewReader(r)
	header, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return stats, fmt.Errorf("unable to read archive header: %w", err)
	}

	stats.Compression = Detect(header)
	var stream io.Reader = br
	switch stats.Compression {
	case Gzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return stats, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close() //nolint:errcheck
		stream = gz
	case Zstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return stats, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		stream = zr
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return stats, fmt.Errorf("unable to get absolute path: %w", err)
	}

	tr := tar.NewReader(stream)
	entries := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("tar: %w", err)
		}
		entries++

		if hdr.Typeflag == tar.TypeXGlobalHeader {
			stats.Skipped++
			continue
		}

		if hasDotDot(hdr.Name) {
			return stats, fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
		}

		name, ok := stripComponents(hdr.Name, opts.StripComponents)
		if !ok {
			stats.Skipped++
			continue
		}

		target, err := safeJoin(root, name)
		if err != nil {
			return stats, err
		}
		if err := checkParents(root, target, name); err != nil {
			return stats, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(hdr)); err != nil {
				return stats, fmt.Errorf("unable to create directory: %w", err)
			}
			stats.Dirs++

		case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck
			n, err := writeFile(target, tr, hdr)
			if err != nil {
				return stats, err
			}
			stats.Files++
			stats.Bytes += n

		case tar.TypeSymlink:
			if err := writeSymlink(root, target, hdr.Linkname); err != nil {
				return stats, err
			}
			stats.Symlinks++

		default:
			log.Debug("Skipping unsupported archive entry", "name", hdr.Name, "type", string(hdr.Typeflag))
			stats.Skipped++
		}
	}

	if entries == 0 {
		return stats, ErrEmptyArchive
	}
	return stats, nil
}

// stripComponents removes the first n elements of an archive path. It
// reports false when nothing is left.
func stripComponents(name string, n int) (string, bool) {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" {
		return "", false
	}
	parts := strings.Split(name, "/")
	if n >= len(parts) {
		return "", false
	}
	return path.Join(parts[n:]...), true
}

func hasDotDot(name string) bool {
	for _, part := range strings.Split(strings.ReplaceAll(name, "\\", "/"), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// safeJoin joins an archive path onto root, refusing anything outside it.
func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

// checkParents refuses targets whose parent directories, between root and
// the target, include a symlink already on disk. Links created earlier in
// the same archive could otherwise redirect later entries out of root.
func checkParents(root, target, name string) error {
	rel, err := filepath.Rel(root, filepath.Dir(target))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	if rel == "." {
		return nil
	}

	cur := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		fi, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("unable to inspect %s: %w", cur, err)
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s passes through symlink", ErrUnsafePath, name)
		}
	}
	return nil
}

func writeFile(target string, r io.Reader, hdr *tar.Header) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("unable to create directory: %w", err)
	}
	// A previous symlink at the same path must not be written through.
	_ = os.Remove(target)

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode(hdr))
	if err != nil {
		return 0, fmt.Errorf("unable to create file: %w", err)
	}
	n, err := io.Copy(f, r) //nolint:gosec
	if err != nil {
		_ = f.Close()
		return n, fmt.Errorf("unable to write %s: %w", hdr.Name, err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("unable to close %s: %w", hdr.Name, err)
	}
	return n, nil
}

func writeSymlink(root, target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("%w: absolute symlink %s", ErrUnsafePath, linkname)
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname))
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return fmt.Errorf("%w: symlink %s", ErrUnsafePath, linkname)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("unable to create directory: %w", err)
	}
	_ = os.Remove(target)
	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("unable to create symlink: %w", err)
	}
	return nil
}

func fileMode(hdr *tar.Header) os.FileMode {
	mode := os.FileMode(hdr.Mode).Perm() //nolint:gosec
	if mode == 0 {
		mode = 0o644
	}
	return mode | 0o200
}

func dirMode(hdr *tar.Header) os.FileMode {
	mode := os.FileMode(hdr.Mode).Perm() //nolint:gosec
	if mode == 0 {
		mode = 0o755
	}
	return mode | 0o700
}
