package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/cstring/engine"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	bytesStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	session  *session
	report   *callReport
	opts     options
	funcs    []engine.Export
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type loadedMsg struct {
	err     error
	session *session
}

type callResultMsg struct {
	err    error
	report *callReport
}

func newInteractiveModel(opts options) *interactiveModel {
	return &interactiveModel{opts: opts, state: stateSelectFunc}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	s, err := openSession(context.Background(), m.opts)
	return loadedMsg{session: s, err: err}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs
				return m, textinput.Blink

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.reset()
			}
			return m, nil

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}
			return m, nil

		case "esc":
			if m.state != stateSelectFunc {
				m.reset()
			}
			return m, nil
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.funcs = msg.session.mod.Exports()

	case callResultMsg:
		m.report = msg.report
		m.err = msg.err
		m.state = stateShowResult
		return m, nil
	}

	if m.state == stateInputArgs {
		var cmd tea.Cmd
		m.inputs[m.focusIdx], cmd = m.inputs[m.focusIdx].Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelectFunc
	m.inputs = nil
	m.report = nil
	m.err = nil
}

func (m *interactiveModel) close() {
	if m.session != nil {
		m.session.close(context.Background())
		m.session = nil
	}
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, f.Params)
	for i := range m.inputs {
		ti := textinput.New()
		ti.Placeholder = `text, Go escapes like \x00 allowed`
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		s, err := unescape(input.Value())
		if err != nil {
			return callResultMsg{err: fmt.Errorf("arg%d: %w", i, err)}
		}
		args[i] = s
	}

	mode := m.opts.result
	if f.Results == 0 {
		mode = resultNone
	}
	report, err := m.session.call(context.Background(), f.Name, args, mode)
	return callResultMsg{report: report, err: err}
}

// preview renders the bytes an input would be lent as.
func (m *interactiveModel) preview(value string) string {
	s, err := unescape(value)
	if err != nil {
		return errorStyle.Render("bad escape")
	}
	a := describeArg(s)
	if a.NullOffset != nil {
		return errorStyle.Render(fmt.Sprintf("embedded NUL at offset %d", *a.NullOffset))
	}
	return bytesStyle.Render("[" + a.Bytes + "]")
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.session == nil {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("C String Inspector"))
	b.WriteString(" ")
	b.WriteString(m.session.name)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatExport(f)))
			} else {
				b.WriteString("  " + funcStyle.Render(formatExport(f)))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.Name)))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(m.preview(input.Value()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.Name)))
		if m.report != nil {
			for i, a := range m.report.Args {
				b.WriteString(fmt.Sprintf("arg%d %s ", i, strconv.Quote(a.Text)))
				b.WriteString(bytesStyle.Render("[" + a.Bytes + "]"))
				b.WriteString("\n")
			}
			for _, msg := range m.report.HostLog {
				b.WriteString(helpStyle.Render("host_log: ") + strconv.Quote(msg) + "\n")
			}
			b.WriteString("\n")
		}
		switch {
		case m.err != nil:
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		case m.report.String != nil:
			b.WriteString(resultStyle.Render(strconv.Quote(*m.report.String)))
		case m.report.Values != nil:
			b.WriteString(resultStyle.Render(fmt.Sprintf("%v", m.report.Values)))
		default:
			b.WriteString(resultStyle.Render("done"))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func runInteractive(opts options) error {
	m := newInteractiveModel(opts)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	m.close()
	return err
}
