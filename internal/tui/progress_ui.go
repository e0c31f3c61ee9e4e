package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"stackit.dev/gitgate/internal/progress"
	"stackit.dev/gitgate/internal/scheduler"
)

const (
	stepStatusPending = "pending"
	stepStatusRunning = "running"
	stepStatusDone    = "done"
	stepStatusError   = "error"
)

// ProgressStep is one line of the progress view
type ProgressStep struct {
	Description string
	Status      string
	Error       error
}

type progressStyles struct {
	spinnerStyle lipgloss.Style
	doneStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	dimStyle     lipgloss.Style
}

// StepStartedMsg is sent when a step starts
type StepStartedMsg struct {
	Index       int
	Description string
}

// StepCompletedMsg is sent when a step completes
type StepCompletedMsg struct{ Index int }

// StepFailedMsg is sent when a step fails
type StepFailedMsg struct {
	Index int
	Err   error
}

// MessageMsg carries a free-form progress line
type MessageMsg struct{ Text string }

// FinishedMsg ends the view
type FinishedMsg struct{}

// ProgressModel is the bubbletea model for a compound operation
type ProgressModel struct {
	title     string
	steps     []ProgressStep
	message   string
	spinner   spinner.Model
	done      bool
	quitting  bool
	interrupt func()
	styles    progressStyles
}

// NewProgressModel creates a model with one pending line per description.
// interrupt, when set, runs on Ctrl+C.
func NewProgressModel(title string, descriptions []string, interrupt func()) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	steps := make([]ProgressStep, len(descriptions))
	for i, desc := range descriptions {
		steps[i] = ProgressStep{Description: desc, Status: stepStatusPending}
	}

	return ProgressModel{
		title:     title,
		steps:     steps,
		spinner:   s,
		interrupt: interrupt,
		styles: progressStyles{
			spinnerStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
			doneStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
			errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
			dimStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		},
	}
}

// Steps returns a copy of the current step states
func (m ProgressModel) Steps() []ProgressStep {
	return append([]ProgressStep(nil), m.steps...)
}

// Init starts the spinner
func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// step grows the step list when an index beyond it is reported
func (m *ProgressModel) step(index int) *ProgressStep {
	for index >= len(m.steps) {
		m.steps = append(m.steps, ProgressStep{Status: stepStatusPending})
	}
	return &m.steps[index]
}

// Update handles message updates for the bubbletea model
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			if m.interrupt != nil {
				m.interrupt()
			}
			m.quitting = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StepStartedMsg:
		if msg.Index < 0 {
			return m, nil
		}
		s := m.step(msg.Index)
		s.Status = stepStatusRunning
		if msg.Description != "" {
			s.Description = msg.Description
		}

	case StepCompletedMsg:
		if msg.Index >= 0 {
			m.step(msg.Index).Status = stepStatusDone
		}

	case StepFailedMsg:
		if msg.Index >= 0 {
			s := m.step(msg.Index)
			s.Status = stepStatusError
			s.Error = msg.Err
		}

	case MessageMsg:
		m.message = msg.Text

	case FinishedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// View renders the TUI
func (m ProgressModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(m.title + ":\n\n")

	for i, step := range m.steps {
		var icon, status string
		switch step.Status {
		case stepStatusRunning:
			icon = m.spinner.View()
			status = m.styles.spinnerStyle.Render("running...")
		case stepStatusDone:
			icon = m.styles.doneStyle.Render("✓")
			status = m.styles.doneStyle.Render("done")
		case stepStatusError:
			icon = m.styles.errorStyle.Render("✗")
			status = m.styles.errorStyle.Render("failed")
		default:
			icon = m.styles.dimStyle.Render("○")
			status = m.styles.dimStyle.Render("pending")
		}

		line := fmt.Sprintf("  %s %d. %s %s", icon, i+1, step.Description, status)
		if step.Status == stepStatusError && step.Error != nil {
			line += " " + m.styles.errorStyle.Render("→ "+step.Error.Error())
		}
		b.WriteString(line + "\n")
	}

	if m.message != "" && !m.done {
		b.WriteString("\n" + m.styles.dimStyle.Render("    "+m.message) + "\n")
	}
	return b.String()
}

// ProgressView runs a ProgressModel in its own bubbletea program and
// implements progress.Reporter by forwarding to it
type ProgressView struct {
	program *tea.Program
	done    chan struct{}
	err     error
}

var _ progress.Reporter = (*ProgressView)(nil)

// StartProgressView starts rendering. Finish must be called to stop it.
func StartProgressView(title string, descriptions []string, interrupt func()) *ProgressView {
	v := &ProgressView{done: make(chan struct{})}
	v.program = tea.NewProgram(NewProgressModel(title, descriptions, interrupt),
		tea.WithInput(os.Stdin), tea.WithOutput(os.Stdout))
	go func() {
		defer close(v.done)
		_, v.err = v.program.Run()
	}()
	return v
}

// StepStarted forwards to the view
func (v *ProgressView) StepStarted(index int, description string) {
	v.program.Send(StepStartedMsg{Index: index, Description: description})
}

// StepCompleted forwards to the view
func (v *ProgressView) StepCompleted(index int) {
	v.program.Send(StepCompletedMsg{Index: index})
}

// StepFailed forwards to the view
func (v *ProgressView) StepFailed(index int, err error) {
	v.program.Send(StepFailedMsg{Index: index, Err: err})
}

// Message forwards to the view
func (v *ProgressView) Message(text string) {
	v.program.Send(MessageMsg{Text: text})
}

// Suspend hands the terminal to fn, for prompts raised mid-operation
func (v *ProgressView) Suspend(fn func() error) error {
	if err := v.program.ReleaseTerminal(); err != nil {
		return err
	}
	defer func() { _ = v.program.RestoreTerminal() }()
	return fn()
}

// Finish stops the view and waits for the terminal to be restored
func (v *ProgressView) Finish() error {
	v.program.Send(FinishedMsg{})
	<-v.done
	return v.err
}

// Screen tracks the progress view that currently owns the terminal so
// prompts can borrow it. The zero value has no view.
type Screen struct {
	mu   sync.Mutex
	view *ProgressView
}

// Attach makes v the active view; nil detaches
func (s *Screen) Attach(v *ProgressView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = v
}

// Suspend runs fn with the terminal released from the active view, if any.
// fn owns the terminal until it returns, so its context is marked as the UI
// thread: requests that report progress fail fast instead of redrawing a
// released view.
func (s *Screen) Suspend(ctx context.Context, fn func(ctx context.Context) error) error {
	uiCtx := scheduler.WithUIThread(ctx)
	run := func() error { return fn(uiCtx) }
	if s == nil {
		return run()
	}
	s.mu.Lock()
	v := s.view
	s.mu.Unlock()
	if v == nil {
		return run()
	}
	return v.Suspend(run)
}

// LineReporter prints progress as plain lines, for non-interactive output
type LineReporter struct {
	splog *Splog
	mu    sync.Mutex
	steps map[int]string
}

var _ progress.Reporter = (*LineReporter)(nil)

// NewLineReporter creates a LineReporter writing through splog
func NewLineReporter(splog *Splog) *LineReporter {
	return &LineReporter{splog: splog, steps: make(map[int]string)}
}

// StepStarted prints the step
func (r *LineReporter) StepStarted(index int, description string) {
	r.mu.Lock()
	r.steps[index] = description
	r.mu.Unlock()
	r.splog.Info("  ⋯ %s...", description)
}

// StepCompleted prints the step as done
func (r *LineReporter) StepCompleted(index int) {
	r.splog.Info("  ✓ %s", r.description(index))
}

// StepFailed prints the step's error
func (r *LineReporter) StepFailed(index int, err error) {
	r.splog.Info("  ✗ %s failed: %v", r.description(index), err)
}

// Message prints a progress line
func (r *LineReporter) Message(text string) {
	r.splog.Debug("    %s", text)
}

func (r *LineReporter) description(index int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.steps[index]
}
