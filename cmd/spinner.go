package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// progressFunc runs work while telling the user what is happening.
type progressFunc func(ctx context.Context, label string, work func(context.Context) error) error

type workDoneMsg struct {
	err error
}

type spinnerModel struct {
	spinner spinner.Model
	label   string
	work    tea.Cmd
	err     error
	done    bool
}

func newSpinnerModel(label string, work tea.Cmd) spinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return spinnerModel{
		spinner: s,
		label:   label,
		work:    work,
	}
}

func (m spinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.work)
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case workDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m spinnerModel) View() string {
	if m.done {
		return ""
	}

	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}

// spinnerTo returns a progressFunc drawing a spinner on output.
func spinnerTo(output io.Writer) progressFunc {
	return func(ctx context.Context, label string, work func(context.Context) error) error {
		return runSpinner(ctx, output, label, work)
	}
}

func runSpinner(ctx context.Context, output io.Writer, label string, work func(context.Context) error) error {
	workCmd := func() tea.Msg {
		return workDoneMsg{err: work(ctx)}
	}

	p := tea.NewProgram(
		newSpinnerModel(label, workCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := finalModel.(spinnerModel)
	if !ok {
		return fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}

	return result.err
}
