// Package main provides the entry point for the larynx-setup CLI.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/rhasspy/larynx-setup/internal/provision"
	"github.com/rhasspy/larynx-setup/internal/subprocess"
	"github.com/rhasspy/larynx-setup/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

const appName = "larynx-setup"

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	sourceRoot  string
	python      string
	installMode string
	sources     string
	skipDev     bool
	tui         bool
	debug       bool

	// cmdOutput receives the output of pip and friends.
	cmdOutput io.Writer = os.Stdout
	logCloser           = func() error { return nil }

	rootCmd = &cobra.Command{
		Use:   appName,
		Short: "Rebuild the rhasspy-tts-larynx-hermes development environment",
		Long: paragraph(fmt.Sprintf("\n%s the virtual environment of rhasspy-tts-larynx-hermes: "+
			"fetch the vendored Larynx and MozillaTTS sources, recreate the venv and install every requirement. "+
			"Prints OK when done.", keyword("Rebuild"))),
		Example: paragraph(appName + "\n" +
			appName + " --sources submodule\n" +
			"PYTHON=python3.8 PIP_INSTALL=download " + appName),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		RunE:             execute,
	}
)

// setup reads the explicit config file and configures logging.
func setup(cmd *cobra.Command, _ []string) error {
	if flagChanged(cmd, "config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	debug = viper.GetBool("debug")
	w, closer, err := setupLog(cmd == rootCmd && useTUI(), debug)
	if err != nil {
		return err
	}
	cmdOutput = w
	logCloser = closer
	return nil
}

func useTUI() bool {
	return viper.GetBool("tui") && term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec
}

// loadConfig builds the provisioning configuration. Precedence, highest
// first: flags, PYTHON / PIP_INSTALL, LARYNX_SETUP_* variables, the config
// file, defaults.
func loadConfig(cmd *cobra.Command) (provision.Config, error) {
	cfg, err := provision.LoadConfigFromViper()
	if err != nil {
		return cfg, err
	}

	overrides, err := provision.ParseEnvOverrides()
	if err != nil {
		return cfg, err
	}
	if flagChanged(cmd, "python") {
		overrides.Python = ""
	}
	if flagChanged(cmd, "install-mode") {
		overrides.InstallMode = ""
	}
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid provisioning configuration: %w", err)
	}
	return cfg, nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

// resolveLayout locates the source tree. Without an explicit root the
// search starts at the program's own directory, never the working
// directory.
func resolveLayout(cfg provision.Config) (provision.Layout, error) {
	start := ""
	if cfg.SourceRoot == "" {
		dir, err := provision.ExecutableDir()
		if err != nil {
			return provision.Layout{}, err
		}
		start = dir
	}
	return provision.ResolveLayout(cfg, start)
}

func newProvisioner(cmd *cobra.Command, opts ...provision.Option) (*provision.Provisioner, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	layout, err := resolveLayout(cfg)
	if err != nil {
		return nil, err
	}
	log.Debug("Resolved layout", "root", layout.Root, "venv", layout.Venv, "download", layout.Download)

	runner := subprocess.NewManager(cmdOutput, cmdOutput, cfg.CommandTimeout)
	opts = append([]provision.Option{provision.WithRunner(runner)}, opts...)
	return provision.New(cfg, layout, opts...)
}

func execute(cmd *cobra.Command, _ []string) error {
	if !useTUI() {
		p, err := newProvisioner(cmd)
		if err != nil {
			return err
		}
		res, err := p.Run(cmd.Context())
		printWarnings(os.Stderr, res)
		return err
	}

	// The marker is held back until the view is gone.
	var out bytes.Buffer
	var res *provision.Result
	plan, err := newProvisioner(cmd)
	if err != nil {
		return err
	}
	err = ui.Run(cmd.Context(), "Provisioning "+plan.Layout().Root, plan.Plan(),
		func(ctx context.Context, obs provision.Observer) error {
			p, err := newProvisioner(cmd,
				provision.WithOutput(&out),
				provision.WithObserver(provision.Observers{provision.LogObserver{}, obs}),
			)
			if err != nil {
				return err
			}
			res, err = p.Run(ctx)
			return err
		})
	printWarnings(os.Stderr, res)
	if err != nil {
		return err
	}
	_, err = io.Copy(os.Stdout, &out)
	return err
}

// printWarnings lists tolerated step failures after a run.
func printWarnings(w io.Writer, res *provision.Result) {
	if res == nil {
		return
	}
	for _, err := range res.Warnings() {
		fmt.Fprintln(w, warnStyle("warning:"), err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logCloser()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Assigned here rather than in the literal: setup refers to rootCmd.
	rootCmd.PersistentPreRunE = setup
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.StringVar(&sourceRoot, "source-root", "", "service checkout (default: found above the executable)")
	flags.StringVar(&python, "python", "", "interpreter used to create the venv (env PYTHON)")
	flags.StringVar(&installMode, "install-mode", "", "pip subcommand (env PIP_INSTALL)")
	flags.StringVar(&sources, "sources", "", "where vendored sources come from: download or submodule")
	flags.BoolVar(&skipDev, "skip-dev", false, "skip the development requirements")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVarP(&tui, "tui", "t", false, "show progress in a terminal UI")

	// Config bindings
	_ = viper.BindPFlag("source_root", flags.Lookup("source-root"))
	_ = viper.BindPFlag("python", flags.Lookup("python"))
	_ = viper.BindPFlag("pip_install", flags.Lookup("install-mode"))
	_ = viper.BindPFlag("sources", flags.Lookup("sources"))
	_ = viper.BindPFlag("skip_dev", flags.Lookup("skip-dev"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("tui", rootCmd.Flags().Lookup("tui"))

	provision.SetDefaults()

	rootCmd.AddCommand(fetchCmd, planCmd, doctorCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, appName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, appName)}, dirs...)
	}

	if c := os.Getenv("LARYNX_SETUP_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(appName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("larynx_setup")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	// The config command creates it here on first use.
	configFile = filepath.Join(dirs[0], appName+".yml")
}
