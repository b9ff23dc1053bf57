package provision

import (
	"time"

	"github.com/charmbracelet/log"
)

// StepInfo describes a provisioning step.
type StepInfo struct {
	Name        string
	Description string
	Optional    bool
}

// Observer is notified as steps progress. Implementations must not block.
type Observer interface {
	StepStarted(step StepInfo)
	StepFinished(step StepInfo, elapsed time.Duration)
	StepSkipped(step StepInfo, reason string)
	StepWarned(step StepInfo, err error)
	StepFailed(step StepInfo, err error)
}

// LogObserver reports progress as plain log lines.
type LogObserver struct {
	Logger *log.Logger
}

func (o LogObserver) logger() *log.Logger {
	if o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

func (o LogObserver) StepStarted(step StepInfo) {
	o.logger().Info(step.Description, "step", step.Name)
}

func (o LogObserver) StepFinished(step StepInfo, elapsed time.Duration) {
	o.logger().Debug("Step finished", "step", step.Name, "elapsed", elapsed.Round(time.Millisecond))
}

func (o LogObserver) StepSkipped(step StepInfo, reason string) {
	o.logger().Info("Skipped", "step", step.Name, "reason", reason)
}

func (o LogObserver) StepWarned(step StepInfo, err error) {
	o.logger().Warn("Step failed, continuing", "step", step.Name, "err", err)
}

func (o LogObserver) StepFailed(step StepInfo, err error) {
	o.logger().Error("Step failed", "step", step.Name, "err", err)
}

// Observers fans notifications out to several observers.
type Observers []Observer

func (obs Observers) StepStarted(step StepInfo) {
	for _, o := range obs {
		o.StepStarted(step)
	}
}

func (obs Observers) StepFinished(step StepInfo, elapsed time.Duration) {
	for _, o := range obs {
		o.StepFinished(step, elapsed)
	}
}

func (obs Observers) StepSkipped(step StepInfo, reason string) {
	for _, o := range obs {
		o.StepSkipped(step, reason)
	}
}

func (obs Observers) StepWarned(step StepInfo, err error) {
	for _, o := range obs {
		o.StepWarned(step, err)
	}
}

func (obs Observers) StepFailed(step StepInfo, err error) {
	for _, o := range obs {
		o.StepFailed(step, err)
	}
}
