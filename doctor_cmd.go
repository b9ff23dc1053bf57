package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/rhasspy/larynx-setup/internal/doctor"
	"github.com/rhasspy/larynx-setup/internal/pyenv"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Short:   "Check the host and the provisioned environment",
	Long:    paragraph(fmt.Sprintf("\n%s that the configured Python can create virtual environments and that the service imports from the provisioned one.", keyword("Check"))),
	Example: paragraph(appName + " doctor\nPYTHON=python3.8 " + appName + " doctor"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		venvDir, root := cfg.VenvDir, ""
		if layout, err := resolveLayout(cfg); err == nil {
			venvDir, root = layout.Venv, layout.Root
		} else {
			log.Warn("Source root not found, checking venv relative to the working directory", "err", err)
		}

		report := doctor.Standard(cfg.Python, root, pyenv.New(venvDir), nil)
		checkErr := report.CheckAll(cmd.Context())
		fmt.Fprint(os.Stdout, report.Render())
		return checkErr
	},
}
