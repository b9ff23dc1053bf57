package pyenv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/rhasspy/larynx-setup/internal/subprocess"
)

func TestCreateRemovesPreviousEnvironment(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".venv")
	stale := filepath.Join(dir, "lib", "stale.txt")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &subprocess.Recorder{}
	v := New(dir)
	if err := v.Create(context.Background(), rec, "python3.9"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("previous environment was not removed")
	}

	cmds := rec.Commands()
	if len(cmds) != 1 {
		t.Fatalf("Expected 1 command, got %d", len(cmds))
	}
	want := subprocess.Cmd{Name: "python3.9", Args: []string{"-m", "venv", dir}}
	if !reflect.DeepEqual(cmds[0], want) {
		t.Errorf("command = %+v, want %+v", cmds[0], want)
	}
}

func TestCreateFailure(t *testing.T) {
	rec := &subprocess.Recorder{Fail: func(subprocess.Cmd) error { return errors.New("no venv module") }}
	err := New(t.TempDir()).Create(context.Background(), rec, "python3")
	if err == nil || !strings.Contains(err.Error(), "no venv module") {
		t.Errorf("Expected wrapped error, got %v", err)
	}
}

func TestEnviron(t *testing.T) {
	v := New("/src/.venv")
	sep := string(os.PathListSeparator)

	env := v.Environ([]string{
		"HOME=/home/mike",
		"PATH=/usr/bin" + sep + "/bin",
		"PYTHONHOME=/opt/python",
		"VIRTUAL_ENV=/elsewhere",
	})

	got := map[string]string{}
	for _, kv := range env {
		k, val, _ := strings.Cut(kv, "=")
		got[k] = val
	}

	if got["HOME"] != "/home/mike" {
		t.Errorf("HOME = %q", got["HOME"])
	}
	if got["VIRTUAL_ENV"] != "/src/.venv" {
		t.Errorf("VIRTUAL_ENV = %q", got["VIRTUAL_ENV"])
	}
	if _, ok := got["PYTHONHOME"]; ok {
		t.Error("PYTHONHOME should be removed")
	}
	if !strings.HasPrefix(got["PATH"], v.BinDir()+sep) {
		t.Errorf("PATH = %q, want venv bin first", got["PATH"])
	}
	if !strings.HasSuffix(got["PATH"], "/usr/bin"+sep+"/bin") {
		t.Errorf("PATH lost original entries: %q", got["PATH"])
	}
}

func TestEnvironWithoutPath(t *testing.T) {
	v := New("/src/.venv")
	env := v.Environ(nil)
	want := []string{"VIRTUAL_ENV=/src/.venv", "PATH=" + v.BinDir()}
	if !reflect.DeepEqual(env, want) {
		t.Errorf("Environ(nil) = %v, want %v", env, want)
	}
}

func TestPip(t *testing.T) {
	v := New("/src/.venv")

	tests := []struct {
		name string
		mode string
		args []string
		want []string
	}{
		{"default mode", "", []string{"-r", "requirements.txt"}, []string{"-m", "pip", "install", "-r", "requirements.txt"}},
		{"install", "install", []string{"--upgrade", "pip"}, []string{"-m", "pip", "install", "--upgrade", "pip"}},
		{"dry run", "install  --dry-run", []string{"numpy"}, []string{"-m", "pip", "install", "--dry-run", "numpy"}},
		{"download", "download", nil, []string{"-m", "pip", "download"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := v.Pip("/src", tt.mode, tt.args...)
			if cmd.Name != v.Python() {
				t.Errorf("Name = %q, want venv python", cmd.Name)
			}
			if cmd.Dir != "/src" {
				t.Errorf("Dir = %q", cmd.Dir)
			}
			if !reflect.DeepEqual(cmd.Args, tt.want) {
				t.Errorf("Args = %v, want %v", cmd.Args, tt.want)
			}
		})
	}
}

func TestPythonPath(t *testing.T) {
	v := New("/src/.venv")
	if runtime.GOOS == "windows" {
		if !strings.HasSuffix(v.Python(), filepath.Join("Scripts", "python.exe")) {
			t.Errorf("Python() = %q", v.Python())
		}
		return
	}
	if v.Python() != "/src/.venv/bin/python" {
		t.Errorf("Python() = %q", v.Python())
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	v := New(dir)
	if v.Exists() {
		t.Error("empty dir should not count as a venv")
	}
	if err := os.MkdirAll(v.BinDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(v.Python(), nil, 0o755); err != nil {
		t.Fatal(err)
	}
	if !v.Exists() {
		t.Error("venv with interpreter should exist")
	}
}
