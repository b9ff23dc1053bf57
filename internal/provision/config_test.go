package provision

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"default", func(*Config) {}, true},
		{"empty python", func(c *Config) { c.Python = "" }, false},
		{"unknown sources", func(c *Config) { c.Sources = "svn" }, false},
		{"submodule", func(c *Config) { c.Sources = SourcesSubmodule }, true},
		{"missing url in download mode", func(c *Config) { c.TTS.URL = "" }, false},
		{"missing url in submodule mode", func(c *Config) {
			c.Sources = SourcesSubmodule
			c.TTS.URL = ""
		}, true},
		{"empty prefix", func(c *Config) { c.FirstPartyPrefix = "" }, false},
		{"negative timeout", func(c *Config) { c.HTTPTimeout = -time.Second }, false},
		{"missing dir", func(c *Config) { c.Larynx.Dir = "" }, false},
		{"missing requirements", func(c *Config) { c.Requirements = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid, got %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidateSuggestsSources(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sources = "submod"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), `did you mean "submodule"?`) {
		t.Errorf("Expected a suggestion, got %v", err)
	}

	cfg.Sources = "xyz"
	if err := cfg.Validate(); err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("Expected no suggestion, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PYTHON", "python3.8")
	t.Setenv("PIP_INSTALL", "download")

	o, err := ParseEnvOverrides()
	if err != nil {
		t.Fatalf("ParseEnvOverrides failed: %v", err)
	}

	cfg := DefaultConfig()
	o.Apply(&cfg)
	if cfg.Python != "python3.8" {
		t.Errorf("Python = %q", cfg.Python)
	}
	if cfg.InstallMode != "download" {
		t.Errorf("InstallMode = %q", cfg.InstallMode)
	}
}

func TestEnvOverridesEmptyKeepsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	EnvOverrides{}.Apply(&cfg)
	if cfg.Python != "python3" || cfg.InstallMode != "install" {
		t.Errorf("defaults changed: %+v", cfg)
	}
}

func TestLoadConfigFromViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	SetDefaults()
	viper.Set("sources", "submodule")
	viper.Set("python", "/usr/bin/python3.9")
	viper.Set("venv_dir", "~/venvs/larynx")
	viper.Set("http_timeout", "30s")
	viper.Set("tts.dir", "vendor/TTS")
	viper.Set("skip_dev", true)

	cfg, err := LoadConfigFromViper()
	if err != nil {
		t.Fatalf("LoadConfigFromViper failed: %v", err)
	}

	home, err := homedir.Dir()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Sources != SourcesSubmodule {
		t.Errorf("Sources = %q", cfg.Sources)
	}
	if cfg.Python != "/usr/bin/python3.9" {
		t.Errorf("Python = %q", cfg.Python)
	}
	if cfg.VenvDir != home+"/venvs/larynx" {
		t.Errorf("VenvDir = %q, want expanded home", cfg.VenvDir)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if cfg.TTS.Dir != "vendor/TTS" || cfg.TTS.Name != "TTS" {
		t.Errorf("TTS = %+v", cfg.TTS)
	}
	if cfg.Larynx != DefaultConfig().Larynx {
		t.Errorf("Larynx changed: %+v", cfg.Larynx)
	}
	if !cfg.SkipDev {
		t.Error("SkipDev not loaded")
	}
}

func TestLoadConfigFromViperInvalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("sources", "tarball")
	cfg, err := LoadConfigFromViper()
	if err != nil {
		t.Fatalf("LoadConfigFromViper failed: %v", err)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestStepErrorSeverity(t *testing.T) {
	inner := errors.New("pip failed")
	fatal := &StepError{Step: StepRequirements, Severity: SeverityFatal, Err: inner}
	tolerated := &StepError{Step: StepDevRequirements, Severity: SeverityTolerated, Err: inner}

	if !errors.Is(fatal, inner) {
		t.Error("StepError should unwrap")
	}
	if !IsFatal(fatal) || IsFatal(tolerated) {
		t.Error("IsFatal does not follow severity")
	}
	if !IsFatal(inner) {
		t.Error("plain errors are fatal")
	}
	if IsFatal(nil) {
		t.Error("nil is not fatal")
	}
	if fatal.Error() != "requirements: pip failed" {
		t.Errorf("Error() = %q", fatal.Error())
	}
	if SeverityTolerated.String() != "tolerated" {
		t.Errorf("String() = %q", SeverityTolerated.String())
	}
}
