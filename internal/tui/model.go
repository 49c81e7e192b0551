package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"papermind/internal/agent"
	"papermind/internal/conversation"
	"papermind/internal/index"
	"papermind/internal/session"
	"papermind/internal/store"
)

// Chat is the TUI-facing subset of a session.
type Chat interface {
	ThreadID() string
	Document() string
	NewChat(ctx context.Context) (string, error)
	SwitchThread(ctx context.Context, id string) (*session.State, error)
	UploadDocument(ctx context.Context, src index.Source, displayName string) (*session.Upload, error)
	Send(ctx context.Context, text string, sink agent.Sink) (*agent.Turn, error)
	Rename(ctx context.Context, name string) error
	Delete(ctx context.Context, id string) (*session.State, error)
	Threads(ctx context.Context) ([]*store.Thread, error)
	History(ctx context.Context, id string) ([]conversation.UIEntry, error)
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	chat   Chat
	now    func() time.Time

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	entries []conversation.UIEntry
	live    liveTurn
	events  chan tea.Msg
	busy    bool

	// threadID and document mirror the session as of the last reload so
	// rendering never calls into it.
	threadID string
	document string

	threads      []*store.Thread
	cursor       int
	showThreads  bool
	focusThreads bool

	status string
	width  int
	height int
	ready  bool
}

// liveTurn is what the view shows of a turn that is still running.
type liveTurn struct {
	entries []conversation.UIEntry
	text    string
	calling bool
}

// New creates the model. The initial state is the one the session opened
// with; a restore warning is surfaced in the status line.
func New(ctx context.Context, chat Chat, initial *session.State) Model {
	ctx, cancel := context.WithCancel(ctx)

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your document, or /upload <path>"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:      ctx,
		cancel:   cancel,
		chat:     chat,
		now:      time.Now,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Type a message and press Enter. /new, /upload, /threads, /quit",
	}
	if initial != nil {
		m.threadID, m.document = initial.ThreadID, initial.Document
		if initial.RestoreWarning != "" {
			m.status = restoreWarning(initial.RestoreWarning)
		}
	}
	return m
}

func restoreWarning(doc string) string {
	return fmt.Sprintf("Could not restore the index for %s. Please upload it again.", doc)
}

// Init loads the current thread and starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.reload(""))
}

// Update handles key, window and turn events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadedMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.entries = msg.entries
		m.threads = msg.threads
		m.threadID, m.document = msg.threadID, msg.document
		m.cursor = m.currentThreadIndex()
		if msg.note != "" {
			m.status = msg.note
		}
		m.refresh()
		return m, nil

	case stateMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		note := msg.note
		if msg.state != nil && msg.state.RestoreWarning != "" {
			note = restoreWarning(msg.state.RestoreWarning)
		}
		return m, m.reload(note)

	case uploadMsg:
		m.busy = false
		m.input.Focus()
		if msg.err != nil {
			m.status = "Upload failed: " + msg.err.Error()
			return m, nil
		}
		m.status = uploadStatus(msg.upload)
		m.refresh()
		return m, m.reload("")

	case turnEventMsg:
		m.applyEvent(agent.Event(msg))
		m.refresh()
		return m, listen(m.events)

	case turnDoneMsg:
		m.busy = false
		m.events = nil
		m.live = liveTurn{}
		m.input.Focus()
		note := ""
		if msg.err != nil {
			note = "Error: " + msg.err.Error()
		}
		return m, m.reload(note)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.cancel()
		return m, tea.Quit
	case tea.KeyCtrlN:
		if m.busy {
			return m, nil
		}
		return m, m.newChat()
	case tea.KeyTab:
		m.focusThreads = !m.focusThreads
		m.showThreads = m.showThreads || m.focusThreads
		if m.focusThreads {
			m.input.Blur()
		} else {
			m.input.Focus()
		}
		m.resize()
		return m, nil
	}

	if m.focusThreads {
		switch msg.String() {
		case "up":
			if len(m.threads) > 0 {
				m.cursor = (m.cursor - 1 + len(m.threads)) % len(m.threads)
			}
		case "down":
			if len(m.threads) > 0 {
				m.cursor = (m.cursor + 1) % len(m.threads)
			}
		case "enter":
			if !m.busy && m.cursor < len(m.threads) {
				m.focusThreads = false
				m.input.Focus()
				return m, m.switchThread(m.threads[m.cursor].ID)
			}
		}
		return m, nil
	}

	switch msg.String() {
	case "enter":
		if m.busy {
			return m, nil
		}
		line := strings.TrimSpace(m.input.Value())
		if line == "" {
			return m, nil
		}
		m.input.SetValue("")
		if strings.HasPrefix(line, "/") {
			return m.runCommand(parseCommand(line))
		}
		return m.startTurn(line)
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) startTurn(text string) (tea.Model, tea.Cmd) {
	m.busy = true
	m.input.Blur()
	m.live = liveTurn{entries: []conversation.UIEntry{{Role: conversation.RoleUser, Content: text}}}
	m.status = "Thinking..."
	m.events = make(chan tea.Msg, 64)
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, runTurn(m.ctx, m.chat, text, m.events), listen(m.events))
}

func (m *Model) applyEvent(e agent.Event) {
	switch e.Kind {
	case agent.EventToken:
		m.live.text += e.Text
	case agent.EventToolCall:
		m.live.calling = true
	case agent.EventToolResult:
		if strings.TrimSpace(m.live.text) != "" {
			m.live.entries = append(m.live.entries, conversation.UIEntry{Role: conversation.RoleAssistant, Content: m.live.text})
		}
		m.live.text = ""
		m.live.calling = false
		m.live.entries = append(m.live.entries, conversation.UIEntry{
			Role:     conversation.RoleToolCall,
			Query:    e.Call.Query(),
			Passages: e.Payload.Passages,
		})
	}
}

// View renders the header, thread list, transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("PaperMind") + "  " + m.headerInfo()
	body := chatBoxStyle.Render(m.viewport.View())
	if m.showThreads {
		list := renderThreadList(session.CategorizeThreads(m.threads, m.now()), m.threads, m.cursor, m.threadID, m.focusThreads)
		body = lipgloss.JoinHorizontal(lipgloss.Top, sidebarStyle.Width(sidebarWidth).Render(list), body)
	}
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) headerInfo() string {
	doc := m.document
	if doc == "" {
		doc = "no document"
	}
	return dimStyle.Render(fmt.Sprintf("%s · %d messages", doc, conversation.CountVisible(m.entries)))
}

func (m *Model) resize() {
	if !m.ready {
		return
	}
	_, ch := chatBoxStyle.GetFrameSize()
	_, ih := inputBoxStyle.GetFrameSize()
	reserved := 3 + ih // header, input and status lines
	width := m.width
	if m.showThreads {
		width -= sidebarWidth + sidebarStyle.GetHorizontalFrameSize()
	}
	m.viewport.Width = max(20, width-chatBoxStyle.GetHorizontalFrameSize())
	m.viewport.Height = max(3, m.height-reserved-ch)
	m.renderer = newRenderer(m.viewport.Width)
	m.refresh()
}

func (m *Model) refresh() {
	entries := m.entries
	if m.busy {
		entries = append(append([]conversation.UIEntry(nil), m.entries...), m.live.entries...)
	}
	content := renderEntries(entries, m.renderer)
	if m.busy {
		if m.live.text != "" {
			content += "\n" + assistantLabel + "\n" + m.live.text + "\n"
		}
		if m.live.calling {
			content += "\n" + toolStyle.Render("🔍 Calling RAG Tool…") + "\n"
		}
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m Model) currentThreadIndex() int {
	for i, th := range m.threads {
		if th.ID == m.threadID {
			return i
		}
	}
	return 0
}

func newRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return nil
	}
	return r
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	chatBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sidebarStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const sidebarWidth = 28
