package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, appName).CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find cache directory: %w", err)
	}
	return filepath.Join(dir, appName+".log"), nil
}

// setupLog configures the default logger. With toFile set, log lines and
// command output go to a file in the user cache directory so they do not
// tear the progress view; the returned writer is where command output
// should go.
func setupLog(toFile, debug bool) (io.Writer, func() error, error) {
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	if !toFile {
		log.SetOutput(os.Stderr)
		return os.Stdout, func() error { return nil }, nil
	}

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open log file: %w", err)
	}
	log.SetOutput(f)
	log.Debug("Logging to file", "path", logFile)
	return f, f.Close, nil
}
