package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mindroom/matty/internal/domain"
	"github.com/mindroom/matty/internal/session"
)

const sidebarWidth = 28

// Model is the Bubble Tea model for the chat view.
type Model struct {
	engine *session.Engine
	ownID  string

	width  int
	height int

	input  string
	cursor int

	messages []domain.Message
	threads  []domain.Message
	status   string
	notice   string
	severity session.Severity
	spinner  spinner.Model

	// Input history (up/down).
	history      []string
	historyIdx   int
	historyDraft string

	// Autocomplete state.
	completions   []session.Candidate
	completionIdx int
	completionOn  bool

	quitting bool
}

// InitialModel creates the initial Bubble Tea model bound to a running
// engine.
func InitialModel(engine *session.Engine, ownID string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = StatusStyle
	return Model{
		engine:     engine,
		ownID:      ownID,
		historyIdx: -1,
		status:     "connecting...",
		spinner:    sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case MessagesMsg:
		m.messages = msg.Messages
		return m, nil

	case ThreadsMsg:
		m.threads = msg.Roots
		return m, nil

	case NoticeMsg:
		m.notice = msg.Text
		m.severity = msg.Severity
		return m, nil

	case StatusMsg:
		m.status = msg.Status
		return m, nil

	case spinner.TickMsg:
		if m.engine.State().Authenticated {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "ctrl+r":
		return m, m.reconnectCmd()

	case "esc":
		if m.completionOn {
			m.completionOn = false
			return m, nil
		}
		m.input = ""
		m.cursor = 0
		return m, nil

	case "tab", "shift+tab":
		return m.cycleCompletion(msg.String() == "shift+tab"), nil

	case "enter":
		if m.completionOn {
			m.acceptCompletion()
			return m, nil
		}
		return m.submit(), nil

	case "up":
		if m.completionOn {
			m.completionIdx = (m.completionIdx - 1 + len(m.completions)) % len(m.completions)
			return m, nil
		}
		return m.historyBack(), nil

	case "down":
		if m.completionOn {
			m.completionIdx = (m.completionIdx + 1) % len(m.completions)
			return m, nil
		}
		return m.historyForward(), nil

	case "left":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "right":
		if m.cursor < len(m.input) {
			m.cursor++
		}
		return m, nil

	case "home", "ctrl+a":
		m.cursor = 0
		return m, nil

	case "end", "ctrl+e":
		m.cursor = len(m.input)
		return m, nil

	case "backspace":
		if m.cursor > 0 {
			m.input = m.input[:m.cursor-1] + m.input[m.cursor:]
			m.cursor--
		}
		m.completionOn = false
		return m, nil

	case "ctrl+u":
		m.input = ""
		m.cursor = 0
		m.completionOn = false
		return m, nil
	}

	if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
		s := string(msg.Runes)
		if msg.Type == tea.KeySpace {
			s = " "
		}
		m.input = m.input[:m.cursor] + s + m.input[m.cursor:]
		m.cursor += len(s)
		m.completionOn = false
	}
	return m, nil
}

// reconnectCmd forces a fresh transport dial off the update loop. The
// engine reports the outcome through its status/notice observers.
func (m Model) reconnectCmd() tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		if err := engine.Reconnect(context.Background()); err != nil {
			return NoticeMsg{Text: "reconnect failed: " + err.Error(), Severity: session.SeverityError}
		}
		return nil
	}
}

// cycleCompletion opens the completion menu on first Tab and moves the
// selection on subsequent presses.
func (m Model) cycleCompletion(backward bool) Model {
	if !m.completionOn {
		state := m.engine.State()
		reg := m.engine.Registry()
		var msgHandles, threadHandles []string
		if reg != nil {
			msgHandles = reg.KnownMessageHandles(state.RoomID)
			threadHandles = reg.KnownThreadHandles()
		}
		m.completions = session.Candidates(m.input, state.Users, msgHandles, threadHandles)
		if len(m.completions) == 0 {
			return m
		}
		m.completionIdx = 0
		m.completionOn = true
		return m
	}
	if backward {
		m.completionIdx = (m.completionIdx - 1 + len(m.completions)) % len(m.completions)
	} else {
		m.completionIdx = (m.completionIdx + 1) % len(m.completions)
	}
	return m
}

func (m *Model) acceptCompletion() {
	if m.completionIdx < len(m.completions) {
		m.input = m.completions[m.completionIdx].Insert
		m.cursor = len(m.input)
	}
	m.completionOn = false
}

func (m Model) submit() Model {
	line := strings.TrimSpace(m.input)
	if line == "" {
		return m
	}
	m.history = append(m.history, line)
	m.historyIdx = -1
	m.input = ""
	m.cursor = 0
	m.notice = ""

	// The engine dispatches sends on its own goroutines; this never
	// blocks the update loop.
	m.engine.HandleInput(context.Background(), line)
	return m
}

func (m Model) historyBack() Model {
	if len(m.history) == 0 {
		return m
	}
	if m.historyIdx == -1 {
		m.historyDraft = m.input
		m.historyIdx = len(m.history) - 1
	} else if m.historyIdx > 0 {
		m.historyIdx--
	}
	m.input = m.history[m.historyIdx]
	m.cursor = len(m.input)
	return m
}

func (m Model) historyForward() Model {
	if m.historyIdx == -1 {
		return m
	}
	if m.historyIdx < len(m.history)-1 {
		m.historyIdx++
		m.input = m.history[m.historyIdx]
	} else {
		m.historyIdx = -1
		m.input = m.historyDraft
	}
	m.cursor = len(m.input)
	return m
}

// View renders the full-screen layout: header, thread sidebar next to
// the message pane, then notice, status, and the input line.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	height := m.height
	if height <= 0 {
		height = 24
	}

	state := m.engine.State()
	header := TitleStyle.Render("matty") + "  " + StatusStyle.Render(m.headerContext(state))

	paneHeight := height - 5 // header, notice, status, input, spacing
	if paneHeight < 3 {
		paneHeight = 3
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.sidebarView(paneHeight),
		m.messagesView(width-sidebarWidth-1, paneHeight),
	)

	notice := ""
	switch {
	case m.notice == "":
	case m.severity == session.SeverityError:
		notice = ErrorStyle.Render(m.notice)
	case m.severity == session.SeverityWarning:
		notice = WarningStyle.Render(m.notice)
	default:
		notice = NoticeStyle.Render(m.notice)
	}

	prompt := PromptStyle.Render("> ") + InputStyle.Render(m.inputWithCursor())

	var b strings.Builder
	b.WriteString(header + "\n")
	b.WriteString(body + "\n")
	b.WriteString(notice + "\n")
	statusLine := m.status
	if !state.Authenticated {
		statusLine = m.spinner.View() + " " + statusLine
	}
	b.WriteString(StatusStyle.Render(statusLine) + "\n")
	b.WriteString(prompt + "\n")
	if m.completionOn {
		labels := make([]string, len(m.completions))
		for i, c := range m.completions {
			labels[i] = c.Display
		}
		b.WriteString(RenderCompletionMenu(labels, m.completionIdx, width))
	}
	return b.String()
}

func (m Model) headerContext(state session.State) string {
	if state.RoomName == "" {
		return "no room selected"
	}
	if state.ThreadID != "" {
		return fmt.Sprintf("%s / thread (use /back to return)", state.RoomName)
	}
	return state.RoomName
}

func (m Model) sidebarView(height int) string {
	lines := []string{SidebarTitleStyle.Render("threads")}
	for _, root := range m.threads {
		lines = append(lines, FormatThreadItem(root, sidebarWidth-2))
	}
	if len(m.threads) == 0 {
		lines = append(lines, StatusStyle.Render("(none)"))
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return SidebarStyle.Width(sidebarWidth).Height(height).Render(strings.Join(lines, "\n"))
}

func (m Model) messagesView(width, height int) string {
	if width < 20 {
		width = 20
	}
	var lines []string
	for _, msg := range m.messages {
		lines = append(lines, FormatMessage(msg, m.ownID, width)...)
	}
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	return strings.Join(lines, "\n")
}

func (m Model) inputWithCursor() string {
	if m.cursor >= len(m.input) {
		return m.input + "█"
	}
	return m.input[:m.cursor] + "█" + m.input[m.cursor:]
}
