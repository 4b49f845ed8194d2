package repl

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"embark/internal/console"
)

const (
	maxScrollback = 500
	maxHistory    = 200
)

// Executor выполняет строку консоли от имени субъекта.
type Executor interface {
	Execute(ctx context.Context, subjectID, text string) (console.Result, error)
}

// Translator переводит ключи сообщений.
type Translator interface {
	T(key string) string
}

var (
	colorPrompt = lipgloss.Color("#89b4fa")
	colorError  = lipgloss.Color("#f38ba8")
	colorHint   = lipgloss.Color("#7f849c")
	colorOutput = lipgloss.Color("#cdd6f4")
)

type styles struct {
	prompt lipgloss.Style
	echo   lipgloss.Style
	output lipgloss.Style
	err    lipgloss.Style
	hint   lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		prompt: lipgloss.NewStyle().Foreground(colorPrompt).Bold(true),
		echo:   lipgloss.NewStyle().Foreground(colorHint),
		output: lipgloss.NewStyle().Foreground(colorOutput),
		err:    lipgloss.NewStyle().Foreground(colorError),
		hint:   lipgloss.NewStyle().Foreground(colorHint).Italic(true),
	}
}

type resultMsg struct {
	cmd string
	res console.Result
	err error
}

type model struct {
	ctx     context.Context
	exec    Executor
	subject string
	tr      Translator
	words   []string
	styles  styles

	input   textinput.Model
	lines   []string
	history []string
	histPos int
	busy    bool
	exited  bool
}

func newModel(ctx context.Context, exec Executor, subject, prompt string, words []string, tr Translator) model {
	inp := textinput.New()
	inp.Prompt = prompt
	inp.Placeholder = "help"
	inp.Focus()
	st := defaultStyles()
	inp.PromptStyle = st.prompt
	return model{
		ctx:     ctx,
		exec:    exec,
		subject: subject,
		tr:      tr,
		words:   words,
		styles:  st,
		input:   inp,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			m.exited = true
			return m, tea.Quit
		case "enter":
			return m.submit()
		case "up":
			m.recall(-1)
			return m, nil
		case "down":
			m.recall(1)
			return m, nil
		}
	case resultMsg:
		m.busy = false
		return m.show(msg)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) submit() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	text := m.input.Value()
	m.input.SetValue("")
	m.appendLine(m.styles.echo.Render(m.input.Prompt + text))
	cmd := strings.TrimSpace(text)
	if cmd == "" {
		return m, nil
	}
	if len(m.history) == 0 || m.history[len(m.history)-1] != cmd {
		m.history = append(m.history, cmd)
		if len(m.history) > maxHistory {
			m.history = m.history[len(m.history)-maxHistory:]
		}
	}
	m.histPos = len(m.history)
	m.busy = true

	ctx, exec, subject := m.ctx, m.exec, m.subject
	return m, func() tea.Msg {
		res, err := exec.Execute(ctx, subject, cmd)
		return resultMsg{cmd: cmd, res: res, err: err}
	}
}

func (m model) show(msg resultMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.appendLine(m.styles.err.Render(msg.err.Error()))
		if w := suggest(msg.cmd, m.words); w != "" {
			m.appendLine(m.styles.hint.Render(m.translate("did you mean") + " " + w + "?"))
		}
		return m, nil
	}
	if msg.res.Output != "" {
		m.appendLine(m.styles.output.Render(msg.res.Output))
	}
	if msg.res.Exit {
		m.exited = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) recall(step int) {
	if len(m.history) == 0 {
		return
	}
	pos := m.histPos + step
	if pos < 0 {
		pos = 0
	}
	if pos >= len(m.history) {
		m.histPos = len(m.history)
		m.input.SetValue("")
		return
	}
	m.histPos = pos
	m.input.SetValue(m.history[pos])
	m.input.CursorEnd()
}

func (m *model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxScrollback {
		m.lines = m.lines[len(m.lines)-maxScrollback:]
	}
}

func (m model) translate(key string) string {
	if m.tr == nil {
		return key
	}
	return m.tr.T(key)
}

func (m model) View() string {
	if m.exited {
		return strings.Join(m.lines, "\n") + "\n"
	}
	var sb strings.Builder
	for _, l := range m.lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	sb.WriteString(m.input.View())
	return sb.String()
}
