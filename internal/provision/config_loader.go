package provision

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// LoadConfigFromViper loads the provisioner configuration from Viper. The
// result is not validated; callers apply environment overrides first and
// then call Validate.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("source_root") {
		cfg.SourceRoot = viper.GetString("source_root")
	}
	if viper.IsSet("python") {
		cfg.Python = viper.GetString("python")
	}
	if viper.IsSet("pip_install") {
		cfg.InstallMode = viper.GetString("pip_install")
	}
	if viper.IsSet("sources") {
		cfg.Sources = SourceMode(viper.GetString("sources"))
	}

	// Layout
	if viper.IsSet("venv_dir") {
		cfg.VenvDir = viper.GetString("venv_dir")
	}
	if viper.IsSet("download_dir") {
		cfg.DownloadDir = viper.GetString("download_dir")
	}
	if viper.IsSet("requirements") {
		cfg.Requirements = viper.GetString("requirements")
	}
	if viper.IsSet("dev_requirements") {
		cfg.DevRequirements = viper.GetString("dev_requirements")
	}
	if viper.IsSet("first_party_prefix") {
		cfg.FirstPartyPrefix = viper.GetString("first_party_prefix")
	}
	if viper.IsSet("skip_dev") {
		cfg.SkipDev = viper.GetBool("skip_dev")
	}

	// Timeouts
	if viper.IsSet("http_timeout") {
		if d, err := time.ParseDuration(viper.GetString("http_timeout")); err == nil {
			cfg.HTTPTimeout = d
		} else {
			log.Warn("Ignoring invalid http_timeout", "value", viper.GetString("http_timeout"))
		}
	}
	if viper.IsSet("command_timeout") {
		if d, err := time.ParseDuration(viper.GetString("command_timeout")); err == nil {
			cfg.CommandTimeout = d
		} else {
			log.Warn("Ignoring invalid command_timeout", "value", viper.GetString("command_timeout"))
		}
	}

	cfg.Larynx = loadSubProject("larynx", cfg.Larynx)
	cfg.TTS = loadSubProject("tts", cfg.TTS)

	var err error
	for _, p := range []*string{&cfg.SourceRoot, &cfg.VenvDir, &cfg.DownloadDir} {
		if *p, err = expandPath(*p); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// loadSubProject overlays the "<key>.*" settings on sp.
func loadSubProject(key string, sp SubProject) SubProject {
	if viper.IsSet(key + ".url") {
		sp.URL = viper.GetString(key + ".url")
	}
	if viper.IsSet(key + ".archive") {
		sp.Archive = viper.GetString(key + ".archive")
	}
	if viper.IsSet(key + ".dir") {
		sp.Dir = viper.GetString(key + ".dir")
	}
	return sp
}

// SetDefaults sets default values in Viper for the provisioner.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("python", defaults.Python)
	viper.SetDefault("pip_install", defaults.InstallMode)
	viper.SetDefault("sources", string(defaults.Sources))

	viper.SetDefault("venv_dir", defaults.VenvDir)
	viper.SetDefault("download_dir", defaults.DownloadDir)
	viper.SetDefault("requirements", defaults.Requirements)
	viper.SetDefault("dev_requirements", defaults.DevRequirements)
	viper.SetDefault("first_party_prefix", defaults.FirstPartyPrefix)
	viper.SetDefault("skip_dev", defaults.SkipDev)

	viper.SetDefault("http_timeout", defaults.HTTPTimeout.String())
	viper.SetDefault("command_timeout", defaults.CommandTimeout.String())

	viper.SetDefault("larynx.url", defaults.Larynx.URL)
	viper.SetDefault("larynx.archive", defaults.Larynx.Archive)
	viper.SetDefault("larynx.dir", defaults.Larynx.Dir)
	viper.SetDefault("tts.url", defaults.TTS.URL)
	viper.SetDefault("tts.archive", defaults.TTS.Archive)
	viper.SetDefault("tts.dir", defaults.TTS.Dir)
}

func expandPath(p string) (string, error) {
	if p == "" {
		return p, nil
	}
	out, err := homedir.Expand(p)
	if err != nil {
		return p, fmt.Errorf("unable to expand %q: %w", p, err)
	}
	return out, nil
}
