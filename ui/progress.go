// Package ui renders provisioning progress as a terminal UI.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/truncate"
	"github.com/rhasspy/larynx-setup/internal/provision"
)

const ellipsis = "…"

var (
	green  = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	red    = lipgloss.Color("196")
	orange = lipgloss.Color("214")
	faint  = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}

	doneStyle    = lipgloss.NewStyle().Foreground(green).Render
	failedStyle  = lipgloss.NewStyle().Foreground(red).Render
	warnedStyle  = lipgloss.NewStyle().Foreground(orange).Render
	pendingStyle = lipgloss.NewStyle().Foreground(faint).Render
	titleStyle   = lipgloss.NewStyle().Bold(true).MarginBottom(1).Render
)

type stepState int

const (
	statePending stepState = iota
	stateRunning
	stateDone
	stateSkipped
	stateWarned
	stateFailed
)

type stepView struct {
	info    provision.StepInfo
	state   stepState
	elapsed time.Duration
	detail  string
}

// Messages sent by Observer.
type (
	stepStartedMsg  struct{ name string }
	stepFinishedMsg struct {
		name    string
		elapsed time.Duration
	}
	stepSkippedMsg struct{ name, reason string }
	stepWarnedMsg  struct {
		name string
		err  error
	}
	stepFailedMsg struct {
		name string
		err  error
	}
	doneMsg struct{ err error }
)

type model struct {
	title      string
	steps      []stepView
	spinner    spinner.Model
	width      int
	cancel     context.CancelFunc
	cancelling bool
	done       bool
	err        error
}

func newModel(title string, steps []provision.StepInfo, cancel context.CancelFunc) model {
	views := make([]stepView, len(steps))
	for i, s := range steps {
		views[i] = stepView{info: s}
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return model{
		title:   title,
		steps:   views,
		spinner: sp,
		cancel:  cancel,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// The run notices the cancelled context and reports back with
			// doneMsg; quitting here would leave pip running.
			if !m.cancelling && m.cancel != nil {
				log.Debug("Cancelling provisioning")
				m.cancel()
			}
			m.cancelling = true
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stepStartedMsg:
		m.set(msg.name, stateRunning, 0, "")
	case stepFinishedMsg:
		m.set(msg.name, stateDone, msg.elapsed, "")
	case stepSkippedMsg:
		m.set(msg.name, stateSkipped, 0, msg.reason)
	case stepWarnedMsg:
		m.set(msg.name, stateWarned, 0, msg.err.Error())
	case stepFailedMsg:
		m.set(msg.name, stateFailed, 0, msg.err.Error())

	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) set(name string, state stepState, elapsed time.Duration, detail string) {
	for i := range m.steps {
		if m.steps[i].info.Name == name {
			m.steps[i].state = state
			m.steps[i].elapsed = elapsed
			m.steps[i].detail = detail
			return
		}
	}
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle(m.title))
	b.WriteString("\n")

	for _, s := range m.steps {
		b.WriteString(m.stepLine(s))
		b.WriteString("\n")
	}

	switch {
	case m.done:
	case m.cancelling:
		b.WriteString("\n" + warnedStyle("Cancelling, waiting for the current command to stop…") + "\n")
	default:
		b.WriteString("\n" + pendingStyle("ctrl+c to cancel") + "\n")
	}
	return b.String()
}

// clip keeps a detail line within the terminal. Errors from pip carry the
// tail of stderr and would otherwise fill the screen.
func (m model) clip(detail string) string {
	if line, _, found := strings.Cut(detail, "\n"); found {
		detail = line + " " + ellipsis
	}
	if m.width > 8 {
		detail = truncate.StringWithTail(detail, uint(m.width-4), ellipsis) //nolint:gosec
	}
	return detail
}

func (m model) stepLine(s stepView) string {
	desc := s.info.Description
	if s.info.Optional {
		desc += " (optional)"
	}

	switch s.state {
	case stateRunning:
		return fmt.Sprintf("%s %s", m.spinner.View(), desc)
	case stateDone:
		return fmt.Sprintf("%s %s %s", doneStyle("✓"), desc, pendingStyle(s.elapsed.Round(time.Millisecond).String()))
	case stateSkipped:
		return fmt.Sprintf("%s %s %s", pendingStyle("-"), desc, pendingStyle("("+s.detail+")"))
	case stateWarned:
		return fmt.Sprintf("%s %s\n    %s", warnedStyle("!"), desc, warnedStyle(m.clip(s.detail)))
	case stateFailed:
		return fmt.Sprintf("%s %s\n    %s", failedStyle("✗"), desc, failedStyle(m.clip(s.detail)))
	default:
		return fmt.Sprintf("%s %s", pendingStyle("·"), pendingStyle(desc))
	}
}

// Run shows the progress view while work runs in the background and
// returns work's error. Cancelling from the keyboard cancels the context
// passed to work.
func Run(ctx context.Context, title string, steps []provision.StepInfo, work func(context.Context, provision.Observer) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	return run(ctx, cancel, tea.NewProgram(newModel(title, steps, cancel)), work)
}

// program is the part of *tea.Program that run drives.
type program interface {
	Run() (tea.Model, error)
	Send(msg tea.Msg)
}

// run returns only after work has returned, even when the view fails.
func run(ctx context.Context, cancel context.CancelFunc, p program, work func(context.Context, provision.Observer) error) error {
	done := make(chan error, 1)
	go func() {
		err := work(ctx, &Observer{send: p.Send})
		p.Send(doneMsg{err: err})
		done <- err
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("unable to run progress view: %w", err)
	}
	return <-done
}
