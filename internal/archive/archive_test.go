package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type entry struct {
	name     string
	body     string
	typeflag byte
	linkname string
}

func buildTar(t *testing.T, entries []entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typeflag,
			Linkname: e.linkname,
			Mode:     0o644,
			Size:     int64(len(e.body)),
		}
		switch e.typeflag {
		case tar.TypeDir:
			hdr.Mode = 0o755
			hdr.Size = 0
		case tar.TypeSymlink, tar.TypeXGlobalHeader:
			hdr.Size = 0
		}
		if e.typeflag == tar.TypeXGlobalHeader {
			hdr.Mode = 0 // archive/tar rejects global headers with fields besides Name and PAXRecords
			hdr.PAXRecords = map[string]string{"comment": "deadbeef"}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader(%s) failed: %v", e.name, err)
		}
		if hdr.Size > 0 {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("Write(%s) failed: %v", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return buf.Bytes()
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		t.Fatalf("gzip write failed: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close failed: %v", err)
	}
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd encoder failed: %v", err)
	}
	defer enc.Close() //nolint:errcheck
	return enc.EncodeAll(data, nil)
}

// releaseTarball mimics a GitHub source archive: a pax global header and a
// single wrapper directory.
func releaseTarball(t *testing.T) []byte {
	return buildTar(t, []entry{
		{name: "pax_global_header", typeflag: tar.TypeXGlobalHeader},
		{name: "larynx-0.3.1/", typeflag: tar.TypeDir},
		{name: "larynx-0.3.1/setup.py", body: "import setuptools\n", typeflag: tar.TypeReg},
		{name: "larynx-0.3.1/larynx/", typeflag: tar.TypeDir},
		{name: "larynx-0.3.1/larynx/__init__.py", body: "", typeflag: tar.TypeReg},
		{name: "larynx-0.3.1/requirements.txt", body: "numpy\n", typeflag: tar.TypeReg},
		{name: "larynx-0.3.1/README", linkname: "requirements.txt", typeflag: tar.TypeSymlink},
	})
}

func TestExtractStripComponents(t *testing.T) {
	raw := releaseTarball(t)

	tests := []struct {
		name        string
		data        []byte
		compression Compression
	}{
		{"plain", raw, None},
		{"gzip", gzipBytes(t, raw), Gzip},
		{"zstd", zstdBytes(t, raw), Zstd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := t.TempDir()

			stats, err := ExtractReader(bytes.NewReader(tt.data), dest, Options{StripComponents: 1})
			if err != nil {
				t.Fatalf("ExtractReader failed: %v", err)
			}
			if stats.Compression != tt.compression {
				t.Errorf("Compression = %v, want %v", stats.Compression, tt.compression)
			}

			if _, err := os.Stat(filepath.Join(dest, "setup.py")); err != nil {
				t.Errorf("setup.py not extracted to destination root: %v", err)
			}
			if _, err := os.Stat(filepath.Join(dest, "larynx-0.3.1")); !os.IsNotExist(err) {
				t.Error("wrapper directory should have been stripped")
			}
			if _, err := os.Stat(filepath.Join(dest, "larynx", "__init__.py")); err != nil {
				t.Errorf("nested file missing: %v", err)
			}

			link, err := os.Readlink(filepath.Join(dest, "README"))
			if err != nil {
				t.Fatalf("symlink missing: %v", err)
			}
			if link != "requirements.txt" {
				t.Errorf("symlink target = %q", link)
			}

			if stats.Files != 3 || stats.Symlinks != 1 || stats.Dirs != 1 {
				t.Errorf("Unexpected stats: %+v", stats)
			}
			// pax header and the stripped wrapper dir
			if stats.Skipped != 2 {
				t.Errorf("Skipped = %d, want 2", stats.Skipped)
			}
		})
	}
}

func TestExtractWithoutStrip(t *testing.T) {
	dest := t.TempDir()

	if _, err := ExtractReader(bytes.NewReader(releaseTarball(t)), dest, Options{}); err != nil {
		t.Fatalf("ExtractReader failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "larynx-0.3.1", "setup.py")); err != nil {
		t.Errorf("setup.py should stay nested without strip: %v", err)
	}
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "larynx.tar.gz")
	if err := os.WriteFile(src, gzipBytes(t, releaseTarball(t)), 0o644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(dir, "out")
	if err := os.Mkdir(dest, 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := Extract(src, dest, Options{StripComponents: 1}); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "requirements.txt"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "numpy\n" {
		t.Errorf("requirements.txt = %q", data)
	}
}

func TestExtractMissingFile(t *testing.T) {
	if _, err := Extract(filepath.Join(t.TempDir(), "nope.tar.gz"), t.TempDir(), Options{}); err == nil {
		t.Error("Expected error for missing archive")
	}
}

func TestExtractRejectsUnsafeEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []entry
	}{
		{
			name: "parent traversal",
			entries: []entry{
				{name: "wrap/../../evil.txt", body: "x", typeflag: tar.TypeReg},
			},
		},
		{
			name: "absolute symlink",
			entries: []entry{
				{name: "wrap/link", linkname: "/etc/passwd", typeflag: tar.TypeSymlink},
			},
		},
		{
			name: "escaping symlink",
			entries: []entry{
				{name: "wrap/link", linkname: "../../outside", typeflag: tar.TypeSymlink},
			},
		},
		{
			name: "chained symlinks",
			entries: []entry{
				{name: "wrap/", typeflag: tar.TypeDir},
				{name: "wrap/d", linkname: ".", typeflag: tar.TypeSymlink},
				{name: "wrap/d/e", linkname: "..", typeflag: tar.TypeSymlink},
				{name: "wrap/d/e/evil.txt", body: "x", typeflag: tar.TypeReg},
			},
		},
		{
			name: "file through directory symlink",
			entries: []entry{
				{name: "wrap/sub/", typeflag: tar.TypeDir},
				{name: "wrap/up", linkname: "sub/..", typeflag: tar.TypeSymlink},
				{name: "wrap/up/evil.txt", body: "x", typeflag: tar.TypeReg},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := t.TempDir()
			dest := filepath.Join(parent, "dest")
			if err := os.Mkdir(dest, 0o755); err != nil {
				t.Fatal(err)
			}

			data := buildTar(t, tt.entries)
			_, err := ExtractReader(bytes.NewReader(data), dest, Options{StripComponents: 1})
			if !errors.Is(err, ErrUnsafePath) {
				t.Errorf("Expected ErrUnsafePath, got %v", err)
			}
			if _, err := os.Lstat(filepath.Join(parent, "evil.txt")); !os.IsNotExist(err) {
				t.Error("file was written outside the destination")
			}
		})
	}
}

func TestExtractEmptyArchive(t *testing.T) {
	data := buildTar(t, nil)
	_, err := ExtractReader(bytes.NewReader(data), t.TempDir(), Options{})
	if !errors.Is(err, ErrEmptyArchive) {
		t.Errorf("Expected ErrEmptyArchive, got %v", err)
	}
}

func TestExtractCorruptGzip(t *testing.T) {
	data := append([]byte{0x1f, 0x8b}, []byte("definitely not gzip")...)
	if _, err := ExtractReader(bytes.NewReader(data), t.TempDir(), Options{}); err == nil {
		t.Error("Expected error for corrupt gzip stream")
	}
}

func TestStripComponents(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		want   string
		wantOK bool
	}{
		{"wrap/setup.py", 1, "setup.py", true},
		{"wrap/", 1, "", false},
		{"./wrap/a/b", 1, "a/b", true},
		{"wrap/a/b", 2, "b", true},
		{"file", 0, "file", true},
		{"wrap/a", 3, "", false},
	}

	for _, tt := range tests {
		got, ok := stripComponents(tt.name, tt.n)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("stripComponents(%q, %d) = %q, %v; want %q, %v", tt.name, tt.n, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		header []byte
		want   Compression
	}{
		{[]byte{0x1f, 0x8b, 0x08, 0x00}, Gzip},
		{[]byte{0x28, 0xb5, 0x2f, 0xfd}, Zstd},
		{[]byte("ustar"), None},
		{nil, None},
	}

	for _, tt := range tests {
		if got := Detect(tt.header); got != tt.want {
			t.Errorf("Detect(%x) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
