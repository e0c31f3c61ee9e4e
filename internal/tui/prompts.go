package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"stackit.dev/gitgate/internal/orchestrator"
)

// noInteractiveEnv turns every prompt into a refusal, for scripts and tests
const noInteractiveEnv = "GITGATE_NO_INTERACTIVE"

// ErrInteractiveDisabled is returned instead of prompting when
// GITGATE_NO_INTERACTIVE is set
var ErrInteractiveDisabled = errors.New("interactive prompts are disabled (" + noInteractiveEnv + " is set)")

// ErrPromptCanceled is returned when a prompt is dismissed with Esc or Ctrl+C
var ErrPromptCanceled = errors.New("prompt canceled")

func interactiveDisabled() bool {
	return os.Getenv(noInteractiveEnv) != ""
}

var (
	promptTitle  = lipgloss.NewStyle().Bold(true)
	promptCursor = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	promptDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	promptFrame  = lipgloss.NewStyle().Margin(1, 0)
)

// outcomeChoice is one line of the conflict prompt
type outcomeChoice struct {
	outcome orchestrator.Outcome
	key     string
	label   string
	help    string
}

var outcomeChoices = []outcomeChoice{
	{orchestrator.Continue, "r", "Resolved", "stage the file as it is now in the working tree"},
	{orchestrator.Skip, "s", "Skip", "keep your side and drop the incoming change to this file"},
	{orchestrator.Abort, "a", "Abort", "roll the whole operation back"},
}

// ConflictModel asks how to settle one conflicting path. Esc aborts.
type ConflictModel struct {
	Path     string
	cursor   int
	outcome  orchestrator.Outcome
	done     bool
	canceled bool
}

// NewConflictModel starts with the cursor on Resolved
func NewConflictModel(path string) ConflictModel {
	return ConflictModel{Path: path}
}

// Init implements tea.Model
func (m ConflictModel) Init() tea.Cmd {
	return nil
}

// Update moves the cursor or settles the outcome
func (m ConflictModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok || m.done {
		return m, nil
	}
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.canceled = true
		return m.settle(orchestrator.Abort)
	case tea.KeyEnter:
		return m.settle(outcomeChoices[m.cursor].outcome)
	case tea.KeyUp, tea.KeyShiftTab:
		m.cursor = (m.cursor + len(outcomeChoices) - 1) % len(outcomeChoices)
	case tea.KeyDown, tea.KeyTab:
		m.cursor = (m.cursor + 1) % len(outcomeChoices)
	case tea.KeyRunes:
		for _, c := range outcomeChoices {
			if strings.EqualFold(string(key.Runes), c.key) {
				return m.settle(c.outcome)
			}
		}
	}
	return m, nil
}

func (m ConflictModel) settle(outcome orchestrator.Outcome) (tea.Model, tea.Cmd) {
	m.outcome = outcome
	m.done = true
	return m, tea.Quit
}

// Outcome returns the chosen outcome and whether the prompt has finished
func (m ConflictModel) Outcome() (orchestrator.Outcome, bool) {
	return m.outcome, m.done
}

// View renders the path, the choices and a hint about conflict markers
func (m ConflictModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(promptTitle.Render("Conflict in " + m.Path))
	b.WriteString("\n")
	b.WriteString(promptDim.Render("Edit the conflict markers in your editor, then pick Resolved to stage the result."))
	b.WriteString("\n\n")
	for i, c := range outcomeChoices {
		line := fmt.Sprintf("[%s] %-9s %s", c.key, c.label, promptDim.Render(c.help))
		if i == m.cursor {
			b.WriteString("  " + promptCursor.Render("›") + " " + line + "\n")
		} else {
			b.WriteString("    " + line + "\n")
		}
	}
	b.WriteString(promptDim.Render("\n↑/↓ or r/s/a to choose, Enter to confirm, Esc aborts"))
	return promptFrame.Render(b.String())
}

// QuestionModel asks a yes/no Question. Enter answers no. When the question
// allows it, Y and N answer and remember the answer.
type QuestionModel struct {
	Question orchestrator.Question
	answer   orchestrator.Answer
	done     bool
	canceled bool
}

// NewQuestionModel creates a model for q
func NewQuestionModel(q orchestrator.Question) QuestionModel {
	return QuestionModel{Question: q}
}

// Init implements tea.Model
func (m QuestionModel) Init() tea.Cmd {
	return nil
}

// Update records the answer
func (m QuestionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok || m.done {
		return m, nil
	}
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.canceled = true
		return m.settle(orchestrator.Answer{})
	case tea.KeyEnter:
		return m.settle(orchestrator.Answer{})
	case tea.KeyRunes:
		remember := m.Question.AllowRemember
		switch string(key.Runes) {
		case "y":
			return m.settle(orchestrator.Answer{Yes: true})
		case "n":
			return m.settle(orchestrator.Answer{})
		case "Y":
			return m.settle(orchestrator.Answer{Yes: true, Remember: remember})
		case "N":
			return m.settle(orchestrator.Answer{Remember: remember})
		}
	}
	return m, nil
}

func (m QuestionModel) settle(answer orchestrator.Answer) (tea.Model, tea.Cmd) {
	m.answer = answer
	m.done = true
	return m, tea.Quit
}

// Answer returns the answer and whether the prompt has finished
func (m QuestionModel) Answer() (orchestrator.Answer, bool) {
	return m.answer, m.done
}

// View renders the question with its key hints
func (m QuestionModel) View() string {
	if m.done {
		return ""
	}
	hint := "y/N, Esc cancels"
	if m.Question.AllowRemember {
		hint = "y/N, or Y/N to stop asking, Esc cancels"
	}
	return promptFrame.Render(promptTitle.Render(m.Question.Message) + "\n" + promptDim.Render(hint))
}

// runPrompt runs m as a full terminal program and returns the final model
func runPrompt[M tea.Model](m M) (M, error) {
	if interactiveDisabled() {
		return m, ErrInteractiveDisabled
	}
	final, err := tea.NewProgram(m, tea.WithInput(os.Stdin), tea.WithOutput(os.Stdout)).Run()
	if err != nil {
		return m, err
	}
	out, ok := final.(M)
	if !ok {
		return m, fmt.Errorf("unexpected prompt model %T", final)
	}
	return out, nil
}

// PromptConflict asks how to settle the conflict in path
func PromptConflict(path string) (orchestrator.Outcome, error) {
	m, err := runPrompt(NewConflictModel(path))
	if err != nil {
		return orchestrator.Abort, err
	}
	if m.canceled {
		return orchestrator.Abort, ErrPromptCanceled
	}
	outcome, _ := m.Outcome()
	return outcome, nil
}

// PromptQuestion asks q on the terminal
func PromptQuestion(q orchestrator.Question) (orchestrator.Answer, error) {
	m, err := runPrompt(NewQuestionModel(q))
	if err != nil {
		return orchestrator.Answer{}, err
	}
	if m.canceled {
		return orchestrator.Answer{}, ErrPromptCanceled
	}
	answer, _ := m.Answer()
	return answer, nil
}
