package provision

import (
	"errors"
	"fmt"
)

// Common errors for the provisioner.
var (
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrNoSourceRoot    = errors.New("unable to locate source root")
	ErrMissingSources  = errors.New("vendored sources are missing")
	ErrMissingManifest = errors.New("requirements manifest not found")
)

// Severity tells whether a step failure ends the run.
type Severity int

const (
	// SeverityFatal aborts the run.
	SeverityFatal Severity = iota
	// SeverityTolerated is logged as a warning and the run continues.
	SeverityTolerated
)

func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "fatal"
	case SeverityTolerated:
		return "tolerated"
	default:
		return "unknown"
	}
}

// StepError is a failure of a single provisioning step.
type StepError struct {
	Step     string
	Severity Severity
	Err      error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err should stop provisioning. Errors that are not
// step errors are always fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var se *StepError
	if errors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return true
}

// skipError marks a step that had nothing to do.
type skipError struct {
	reason string
}

func (e *skipError) Error() string {
	return e.reason
}

func skip(format string, args ...any) error {
	return &skipError{reason: fmt.Sprintf(format, args...)}
}
