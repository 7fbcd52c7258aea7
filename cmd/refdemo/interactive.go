package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wippyai/refptr/script"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	expiredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Strikethrough(true)

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

// traceLines is how many trace events the TUI shows.
const traceLines = 12

type interactiveModel struct {
	err     error
	runner  *script.Runner
	input   textinput.Model
	history []string
	result  string
	width   int
}

func newInteractiveModel(r *script.Runner) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "new a 42"
	ti.Prompt = "step> "
	ti.Width = 48
	ti.Focus()

	return &interactiveModel{
		runner: r,
		input:  ti,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			if line == "quit" || line == "exit" {
				return m, tea.Quit
			}
			m.exec(line)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) exec(line string) {
	m.err, m.result = nil, ""

	step, err := script.ParseLine(line)
	if err != nil {
		m.err = err
		return
	}
	if err := m.runner.Step(step); err != nil {
		m.err = err
		return
	}
	m.history = append(m.history, step.String())
	m.result = "ok: " + step.String()
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("refptr"))
	b.WriteString(" shared ownership playground\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Render(m.handlesView()),
		" ",
		paneStyle.Render(m.traceView()),
	))
	b.WriteString("\n\n")

	b.WriteString(m.input.View())
	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	case m.result != "":
		b.WriteString(resultStyle.Render(m.result))
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("new|make NAME N • copy|move|assign|weak|lock|alias|upcast|downcast DST SRC • reset|release NAME • expect [NAME] k=v • esc quit"))

	return b.String()
}

func (m *interactiveModel) handlesView() string {
	hs := m.runner.Handles()
	if len(hs) == 0 {
		return helpStyle.Render("no handles")
	}

	var b strings.Builder
	b.WriteString("Handles\n")
	for _, h := range hs {
		line := fmt.Sprintf("%s %s use_count=%d %s",
			nameStyle.Render(fmt.Sprintf("%-6s", h.Name)),
			kindStyle.Render(fmt.Sprintf("%-5s", h.Kind)),
			h.UseCount, h.Target)
		if !h.Valid {
			line = expiredStyle.Render(fmt.Sprintf("%-6s %-5s %s", h.Name, h.Kind, "empty"))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	s := m.runner.Stats()
	b.WriteString(helpStyle.Render(fmt.Sprintf("\n%d live blocks, %d bytes", s.LiveBlocks, s.LiveBytes)))
	return b.String()
}

func (m *interactiveModel) traceView() string {
	events := m.runner.Trace()
	if len(events) == 0 {
		return helpStyle.Render("no events")
	}
	if len(events) > traceLines {
		events = events[len(events)-traceLines:]
	}

	var b strings.Builder
	b.WriteString("Trace\n")
	for _, e := range events {
		style := resultStyle
		switch e.Kind {
		case script.EventDestroy:
			style = errorStyle
		case script.EventFree:
			style = helpStyle
		}
		b.WriteString(style.Render(e.String()))
		b.WriteString("\n")
	}
	return b.String()
}

func runInteractive(cfg script.Config, log *zap.Logger) error {
	r, err := script.NewRunner(cfg, log)
	if err != nil {
		return err
	}
	m := newInteractiveModel(r)

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, runErr := p.Run()

	if len(m.history) > 0 {
		fmt.Println("Steps:")
		for _, s := range m.history {
			fmt.Printf("  %s\n", s)
		}
	}
	if err := r.Close(); err != nil && runErr == nil {
		return err
	}
	return runErr
}
