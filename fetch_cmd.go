package main

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/rhasspy/larynx-setup/internal/provision"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:     "fetch",
	Short:   "Download the vendored source archives",
	Long:    paragraph(fmt.Sprintf("\n%s the pinned Larynx and MozillaTTS archives into the download directory. Archives that are already there are kept.", keyword("Download"))),
	Example: paragraph(appName + " fetch"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Sources != provision.SourcesDownload {
			return fmt.Errorf("%w: fetch needs sources %q, configured %q",
				provision.ErrInvalidConfig, provision.SourcesDownload, cfg.Sources)
		}

		p, err := newProvisioner(cmd)
		if err != nil {
			return err
		}
		if err := p.Fetch(cmd.Context()); err != nil {
			return err
		}
		log.Info("Archives ready", "dir", p.Layout().Download)
		return nil
	},
}
