package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"papermind/internal/agent"
	"papermind/internal/conversation"
	"papermind/internal/index"
	"papermind/internal/session"
	"papermind/internal/store"
)

type command struct {
	name string
	arg  string
}

// parseCommand splits "/name rest of line" into its name and argument.
func parseCommand(line string) command {
	line = strings.TrimSpace(strings.TrimPrefix(line, "/"))
	name, arg, _ := strings.Cut(line, " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}
}

const helpText = "Commands: /new, /upload <path>, /threads, /switch <n>, /rename <title>, /delete, /quit"

func (m Model) runCommand(c command) (tea.Model, tea.Cmd) {
	switch c.name {
	case "quit", "exit":
		m.cancel()
		return m, tea.Quit
	case "new":
		return m, m.newChat()
	case "upload":
		path := strings.Trim(c.arg, `"'`)
		if path == "" {
			m.status = "Usage: /upload <path>"
			return m, nil
		}
		m.busy = true
		m.input.Blur()
		m.status = "Indexing " + filepath.Base(path) + "..."
		return m, tea.Batch(m.spinner.Tick, upload(m.ctx, m.chat, path))
	case "threads":
		m.showThreads = !m.showThreads
		m.focusThreads = false
		m.resize()
		return m, m.reload("")
	case "switch":
		n, err := strconv.Atoi(c.arg)
		if err != nil || n < 1 || n > len(m.threads) {
			m.status = fmt.Sprintf("Usage: /switch <1-%d>", len(m.threads))
			return m, nil
		}
		return m, m.switchThread(m.threads[n-1].ID)
	case "rename":
		if c.arg == "" {
			m.status = "Usage: /rename <title>"
			return m, nil
		}
		return m, m.rename(c.arg)
	case "delete":
		return m, m.deleteCurrent()
	default:
		m.status = helpText
		return m, nil
	}
}

type loadedMsg struct {
	threadID string
	document string
	entries  []conversation.UIEntry
	threads  []*store.Thread
	note     string
	err      error
}

type stateMsg struct {
	state *session.State
	note  string
	err   error
}

type uploadMsg struct {
	upload *session.Upload
	err    error
}

type turnEventMsg agent.Event

type turnDoneMsg struct {
	turn *agent.Turn
	err  error
}

// reload fetches the current thread's transcript and the thread list.
func (m Model) reload(note string) tea.Cmd {
	ctx, chat := m.ctx, m.chat
	return func() tea.Msg {
		id := chat.ThreadID()
		entries, err := chat.History(ctx, id)
		if err != nil {
			return loadedMsg{err: err}
		}
		threads, err := chat.Threads(ctx)
		if err != nil {
			return loadedMsg{err: err}
		}
		return loadedMsg{
			threadID: id,
			document: chat.Document(),
			entries:  entries,
			threads:  threads,
			note:     note,
		}
	}
}

func (m Model) newChat() tea.Cmd {
	ctx, chat := m.ctx, m.chat
	return func() tea.Msg {
		id, err := chat.NewChat(ctx)
		return stateMsg{state: &session.State{ThreadID: id}, note: "Started a new chat.", err: err}
	}
}

func (m Model) switchThread(id string) tea.Cmd {
	ctx, chat := m.ctx, m.chat
	return func() tea.Msg {
		st, err := chat.SwitchThread(ctx, id)
		return stateMsg{state: st, err: err}
	}
}

func (m Model) rename(name string) tea.Cmd {
	ctx, chat := m.ctx, m.chat
	return func() tea.Msg {
		err := chat.Rename(ctx, name)
		return stateMsg{note: "Renamed to " + name + ".", err: err}
	}
}

func (m Model) deleteCurrent() tea.Cmd {
	ctx, chat, id := m.ctx, m.chat, m.threadID
	return func() tea.Msg {
		st, err := chat.Delete(ctx, id)
		return stateMsg{state: st, note: "Thread deleted.", err: err}
	}
}

func upload(ctx context.Context, chat Chat, path string) tea.Cmd {
	return func() tea.Msg {
		src, f, err := index.FileSource(path)
		if err != nil {
			return uploadMsg{err: err}
		}
		defer f.Close()
		up, err := chat.UploadDocument(ctx, src, filepath.Base(path))
		if err != nil {
			return uploadMsg{err: errors.Wrapf(err, "index %s", filepath.Base(path))}
		}
		return uploadMsg{upload: up}
	}
}

func uploadStatus(up *session.Upload) string {
	switch {
	case up.Skipped:
		return up.Name + " is already loaded."
	case up.Cached:
		return fmt.Sprintf("Loaded %s from cache (%d chunks).", up.Name, up.Chunks)
	case up.Summary != "":
		return fmt.Sprintf("Indexed %s (%d chunks). %s", up.Name, up.Chunks, up.Summary)
	default:
		return fmt.Sprintf("Indexed %s (%d chunks).", up.Name, up.Chunks)
	}
}

// runTurn sends text in the background, forwarding agent events to events
// and closing it once the turn is over.
func runTurn(ctx context.Context, chat Chat, text string, events chan<- tea.Msg) tea.Cmd {
	return func() tea.Msg {
		go func() {
			defer close(events)
			turn, err := chat.Send(ctx, text, func(e agent.Event) {
				select {
				case events <- turnEventMsg(e):
				case <-ctx.Done():
				}
			})
			select {
			case events <- turnDoneMsg{turn: turn, err: err}:
			case <-ctx.Done():
			}
		}()
		return nil
	}
}

// listen waits for the next message of a running turn.
func listen(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}
