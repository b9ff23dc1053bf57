package main

import (
	"fmt"
	"os"

	"github.com/rhasspy/larynx-setup/internal/provision"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type subProjectView struct {
	URL     string `yaml:"url"`
	Archive string `yaml:"archive"`
	Dir     string `yaml:"dir"`
}

// configView is the YAML shape of provision.Config, matching the keys the
// config file accepts.
type configView struct {
	SourceRoot       string         `yaml:"source_root,omitempty"`
	Python           string         `yaml:"python"`
	PipInstall       string         `yaml:"pip_install"`
	Sources          string         `yaml:"sources"`
	VenvDir          string         `yaml:"venv_dir"`
	DownloadDir      string         `yaml:"download_dir"`
	Requirements     string         `yaml:"requirements"`
	DevRequirements  string         `yaml:"dev_requirements"`
	FirstPartyPrefix string         `yaml:"first_party_prefix"`
	SkipDev          bool           `yaml:"skip_dev"`
	HTTPTimeout      string         `yaml:"http_timeout"`
	CommandTimeout   string         `yaml:"command_timeout"`
	Larynx           subProjectView `yaml:"larynx"`
	TTS              subProjectView `yaml:"tts"`
}

func newConfigView(cfg provision.Config) configView {
	sp := func(p provision.SubProject) subProjectView {
		return subProjectView{URL: p.URL, Archive: p.Archive, Dir: p.Dir}
	}
	return configView{
		SourceRoot:       cfg.SourceRoot,
		Python:           cfg.Python,
		PipInstall:       cfg.InstallMode,
		Sources:          string(cfg.Sources),
		VenvDir:          cfg.VenvDir,
		DownloadDir:      cfg.DownloadDir,
		Requirements:     cfg.Requirements,
		DevRequirements:  cfg.DevRequirements,
		FirstPartyPrefix: cfg.FirstPartyPrefix,
		SkipDev:          cfg.SkipDev,
		HTTPTimeout:      cfg.HTTPTimeout.String(),
		CommandTimeout:   cfg.CommandTimeout.String(),
		Larynx:           sp(cfg.Larynx),
		TTS:              sp(cfg.TTS),
	}
}

var configShowCmd = &cobra.Command{
	Use:     "show",
	Short:   "Print the effective configuration",
	Long:    paragraph(fmt.Sprintf("\n%s the configuration after merging the config file, environment and flags.", keyword("Print"))),
	Example: paragraph(appName + " config show\nPYTHON=python3.8 " + appName + " config show"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintln(os.Stdout, faint("# "+used))
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(newConfigView(cfg)); err != nil {
			return fmt.Errorf("unable to encode configuration: %w", err)
		}
		return enc.Close()
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
