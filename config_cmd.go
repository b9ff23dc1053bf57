package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# Checkout of rhasspy-tts-larynx-hermes. Empty means the directory
# above this program that holds requirements.txt and setup.py.
# source_root: "~/src/rhasspy-tts-larynx-hermes"

# Interpreter used to create the virtual environment (env: PYTHON)
python: "python3"
# pip subcommand, e.g. "install" or "download" (env: PIP_INSTALL)
pip_install: "install"
# How the vendored sources arrive: "download" or "submodule"
sources: "download"

# Paths, relative to the source root
venv_dir: ".venv"
download_dir: "download"
requirements: "requirements.txt"
dev_requirements: "requirements_dev.txt"

# Requirements starting with this prefix may be installed from download_dir
first_party_prefix: "rhasspy-"
# Skip the development requirements
skip_dev: false

http_timeout: "10m"
# Per-command timeout, 0 for none
command_timeout: "0s"

larynx:
  url: "https://github.com/rhasspy/larynx/archive/v0.3.1.tar.gz"
  archive: "larynx-0.3.1.tar.gz"
  dir: "larynx"

tts:
  url: "https://github.com/rhasspy/TTS/archive/larynx-v0.3.1.tar.gz"
  archive: "TTS-larynx-v0.3.1.tar.gz"
  dir: "larynx/TTS"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the larynx-setup config file",
	Long:    paragraph(fmt.Sprintf("\n%s the larynx-setup config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("larynx-setup config\nlarynx-setup config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("larynx-setup", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
