package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rhasspy/larynx-setup/internal/provision"
)

// Observer forwards provisioning progress to a running program.
type Observer struct {
	send func(tea.Msg)
}

// NewObserver returns an Observer sending to p.
func NewObserver(p *tea.Program) *Observer {
	return &Observer{send: p.Send}
}

func (o *Observer) StepStarted(step provision.StepInfo) {
	o.send(stepStartedMsg{name: step.Name})
}

func (o *Observer) StepFinished(step provision.StepInfo, elapsed time.Duration) {
	o.send(stepFinishedMsg{name: step.Name, elapsed: elapsed})
}

func (o *Observer) StepSkipped(step provision.StepInfo, reason string) {
	o.send(stepSkippedMsg{name: step.Name, reason: reason})
}

func (o *Observer) StepWarned(step provision.StepInfo, err error) {
	o.send(stepWarnedMsg{name: step.Name, err: err})
}

func (o *Observer) StepFailed(step provision.StepInfo, err error) {
	o.send(stepFailedMsg{name: step.Name, err: err})
}
