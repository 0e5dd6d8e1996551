package status

import (
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

type renderReadyMsg struct{}

type model struct {
	status Status
	opts   RenderOptions
	styles styles
	output string
}

func newModel(status Status, opts RenderOptions) model {
	return model{
		status: status,
		opts:   opts,
		styles: newStyles(),
	}
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		return renderReadyMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case renderReadyMsg:
		m.output = renderView(m.status, m.opts, m.styles)
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m model) View() string {
	return m.output
}

func Render(status Status, opts RenderOptions) (string, error) {
	p := tea.NewProgram(
		newModel(status, opts),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	rendered, ok := finalModel.(model)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}

	return rendered.View(), nil
}
