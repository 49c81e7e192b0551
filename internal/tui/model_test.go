package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papermind/internal/agent"
	"papermind/internal/conversation"
	"papermind/internal/index"
	"papermind/internal/session"
	"papermind/internal/store"
)

type fakeChat struct {
	current  string
	document string
	threads  []*store.Thread
	history  []conversation.UIEntry
	renamed  string
	deleted  []string
	switched []string
	uploaded string
}

func (f *fakeChat) ThreadID() string { return f.current }
func (f *fakeChat) Document() string { return f.document }

func (f *fakeChat) NewChat(context.Context) (string, error) {
	f.current = "fresh"
	return f.current, nil
}

func (f *fakeChat) SwitchThread(_ context.Context, id string) (*session.State, error) {
	f.switched = append(f.switched, id)
	f.current = id
	return &session.State{ThreadID: id}, nil
}

func (f *fakeChat) UploadDocument(_ context.Context, src index.Source, name string) (*session.Upload, error) {
	f.uploaded = name
	f.document = name
	return &session.Upload{Loaded: &index.Loaded{Name: name, Chunks: 3}}, nil
}

func (f *fakeChat) Send(context.Context, string, agent.Sink) (*agent.Turn, error) {
	return &agent.Turn{}, nil
}

func (f *fakeChat) Rename(_ context.Context, name string) error {
	f.renamed = name
	return nil
}

func (f *fakeChat) Delete(_ context.Context, id string) (*session.State, error) {
	f.deleted = append(f.deleted, id)
	return &session.State{ThreadID: "t1"}, nil
}

func (f *fakeChat) Threads(context.Context) ([]*store.Thread, error) { return f.threads, nil }

func (f *fakeChat) History(context.Context, string) ([]conversation.UIEntry, error) {
	return f.history, nil
}

func newFake() *fakeChat {
	now := time.Now()
	return &fakeChat{
		current: "t1",
		threads: []*store.Thread{
			{ID: "t1", Name: "First", UpdatedAt: now},
			{ID: "t2", Name: "Second", UpdatedAt: now.Add(-time.Minute)},
		},
	}
}

func ready(t *testing.T, chat Chat) Model {
	t.Helper()
	m := New(context.Background(), chat, nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"/new", command{name: "new"}},
		{"/upload  docs/my paper.pdf ", command{name: "upload", arg: "docs/my paper.pdf"}},
		{"/Switch 2", command{name: "switch", arg: "2"}},
		{"/rename A better title", command{name: "rename", arg: "A better title"}},
		{"/", command{}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCommand(tt.line))
		})
	}
}

func TestRenderToolEntry_TruncatesPassages(t *testing.T) {
	long := strings.Repeat("a", maxPassageRunes) + "TAIL"
	out := renderToolEntry(conversation.UIEntry{
		Role:     conversation.RoleToolCall,
		Query:    "What is X?",
		Passages: []string{"X is a method.", long},
	})
	assert.Contains(t, out, `"What is X?"`)
	assert.Contains(t, out, "(2 passages)")
	assert.Contains(t, out, "X is a method.")
	assert.NotContains(t, out, "TAIL")
	assert.Contains(t, out, "…")
}

func TestTruncatePassage(t *testing.T) {
	assert.Equal(t, "short", truncatePassage("short", 10))
	assert.Equal(t, "héll…", truncatePassage("héllo", 4))
}

func TestHighlightBestSentence_NoQueryKeepsText(t *testing.T) {
	assert.Equal(t, "One. Two.", highlightBestSentence("One. Two.", ""))
}

func TestTurnLifecycle(t *testing.T) {
	chat := newFake()
	m := ready(t, chat)

	m.input.SetValue("What is X?")
	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Equal(t, "", m.input.Value())
	assert.Contains(t, m.View(), "What is X?")

	m.input.SetValue("ignored")
	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "ignored", m.input.Value(), "input is disabled while a turn runs")

	m, _ = step(t, m, turnEventMsg{Kind: agent.EventToolCall, Call: conversation.ToolCall{Name: "rag_tool"}})
	assert.Contains(t, m.View(), "Calling RAG Tool…")

	m, _ = step(t, m, turnEventMsg{
		Kind:    agent.EventToolResult,
		Call:    conversation.ToolCall{Name: "rag_tool", Arguments: `{"query":"What is X?"}`},
		Payload: conversation.ToolPayload{Passages: []string{"X compresses networks."}},
	})
	view := m.View()
	assert.NotContains(t, view, "Calling RAG Tool…")
	assert.Contains(t, view, "(1 passages)")

	chat.history = []conversation.UIEntry{
		{Role: conversation.RoleUser, Content: "What is X?"},
		{Role: conversation.RoleToolCall, Query: "What is X?", Passages: []string{"X compresses networks."}},
		{Role: conversation.RoleAssistant, Content: "X compresses networks."},
	}
	m, cmd = step(t, m, turnDoneMsg{turn: &agent.Turn{}})
	assert.False(t, m.busy)
	require.NotNil(t, cmd)
	m, _ = step(t, m, cmd())
	assert.Len(t, m.entries, 3)
	assert.Contains(t, m.headerInfo(), "2 messages")
}

func TestCommands(t *testing.T) {
	chat := newFake()
	m := ready(t, chat)
	m, _ = step(t, m, m.reload("")())
	require.Len(t, m.threads, 2)

	run := func(line string) tea.Msg {
		t.Helper()
		m.input.SetValue(line)
		var cmd tea.Cmd
		m, cmd = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		if cmd == nil {
			return nil
		}
		return cmd()
	}

	msg := run("/rename Better")
	assert.Equal(t, "Better", chat.renamed)
	m, _ = step(t, m, msg)

	msg = run("/switch 2")
	assert.Equal(t, []string{"t2"}, chat.switched)
	m, cmd := step(t, m, msg)
	require.NotNil(t, cmd)
	m, _ = step(t, m, cmd())
	assert.Equal(t, "t2", m.threadID)

	assert.Nil(t, run("/switch 9"))
	assert.Contains(t, m.status, "Usage: /switch")

	run("/delete")
	assert.Equal(t, []string{"t2"}, chat.deleted)

	run("/new")
	assert.Equal(t, "fresh", chat.current)

	assert.Nil(t, run("/bogus"))
	assert.Equal(t, helpText, m.status)
}

func TestThreadListNavigation(t *testing.T) {
	chat := newFake()
	m := ready(t, chat)
	m, _ = step(t, m, m.reload("")())

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.True(t, m.focusThreads)
	assert.Contains(t, m.View(), "Today")

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []string{"t2"}, chat.switched)
	assert.False(t, m.focusThreads)
}

func TestUploadCommandReadsFile(t *testing.T) {
	chat := newFake()
	path := filepath.Join(t.TempDir(), "paper.txt")
	require.NoError(t, os.WriteFile(path, []byte("Some content."), 0o644))

	msg := upload(context.Background(), chat, path)()
	up, ok := msg.(uploadMsg)
	require.True(t, ok)
	require.NoError(t, up.err)
	assert.Equal(t, "paper.txt", chat.uploaded)
	assert.Equal(t, "Indexed paper.txt (3 chunks).", uploadStatus(up.upload))

	missing := upload(context.Background(), chat, filepath.Join(t.TempDir(), "nope.pdf"))()
	assert.Error(t, missing.(uploadMsg).err)
}

func TestRestoreWarningShownAtStart(t *testing.T) {
	m := New(context.Background(), newFake(), &session.State{ThreadID: "t1", RestoreWarning: "paper.pdf"})
	assert.Contains(t, m.status, "paper.pdf")
}
