package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papermind/internal/agent"
	"papermind/internal/conversation"
	"papermind/internal/domain"
	"papermind/internal/embedding"
	"papermind/internal/index"
	"papermind/internal/llm/llmtest"
	"papermind/internal/loader"
	"papermind/internal/retrieval"
	"papermind/internal/store"
	"papermind/internal/vectorstore"
	"papermind/internal/vectorstore/memory"
)

const paperText = "X is a method for compressing neural networks. " +
	"It was introduced to reduce inference cost. " +
	"Experiments show X keeps accuracy within one percent."

type harness struct {
	session *Session
	store   *store.Store
	model   *llmtest.Model
	index   *index.Manager
}

func newHarness(t *testing.T, backend vectorstore.Backend, st *store.Store) *harness {
	t.Helper()
	model := llmtest.New()
	mgr := index.NewManager(index.Options{
		Backend:   backend,
		LoaderFor: func(string) (domain.Loader, error) { return loader.Text{}, nil },
	})
	ag := agent.New(agent.Options{
		Model:      model,
		Transcript: st.Messages,
		Documents:  mgr,
		Tools:      []agent.Tool{retrieval.New(mgr, nil)},
	})
	n := 0
	s := New(Options{
		Store: st,
		Index: mgr,
		Agent: ag,
		NewID: func() string { n++; return fmt.Sprintf("thread-%d", n) },
	})
	return &harness{session: s, store: st, model: model, index: mgr}
}

func newStore(t *testing.T) (*store.Store, func(time.Duration)) {
	t.Helper()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	st, err := store.Open(context.Background(), ":memory:", store.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, func(d time.Duration) { now = now.Add(d) }
}

func source(s string) index.Source {
	return index.Source{Reader: strings.NewReader(s), Size: int64(len(s))}
}

func hashBackend() vectorstore.Backend {
	return memory.New(embedding.NewHash(128).Embed)
}

func TestScenario_GeneralAnswerWithoutDocument(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t)
	h := newHarness(t, hashBackend(), st)

	state, err := h.session.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "thread-1", state.ThreadID)
	assert.Empty(t, state.Document)

	h.model.Enqueue(llmtest.Text("Hello! How can I help?"))
	h.model.Title = "Friendly Greeting"
	turn, err := h.session.Send(ctx, "Hi", nil)
	require.NoError(t, err)
	assert.Zero(t, turn.ToolCalls)

	assert.Contains(t, h.model.Requests()[0].Instruction, "No document has been uploaded")

	ui, err := h.session.History(ctx, state.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, []conversation.UIEntry{
		{Role: conversation.RoleUser, Content: "Hi"},
		{Role: conversation.RoleAssistant, Content: "Hello! How can I help?"},
	}, ui)

	th, err := st.Threads.Get(ctx, state.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, "Friendly Greeting", th.Name)
	assert.Nil(t, th.DocumentName)
}

func TestScenario_DocumentQuestionUsesRetrieval(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t)
	h := newHarness(t, hashBackend(), st)
	state, err := h.session.Open(ctx)
	require.NoError(t, err)

	up, err := h.session.UploadDocument(ctx, source(paperText), "paper.pdf")
	require.NoError(t, err)
	assert.False(t, up.Skipped)
	assert.True(t, up.Associated)
	assert.Equal(t, "paper.pdf", h.session.Document())

	h.model.Enqueue(
		llmtest.ToolCall("call_1", retrieval.Name, `{"query":"What is X?"}`),
		llmtest.Text("X is a method for compressing neural networks."),
	)
	h.model.Title = "What Is X"
	var seen []agent.EventKind
	_, err = h.session.Send(ctx, "What is X?", func(e agent.Event) { seen = append(seen, e.Kind) })
	require.NoError(t, err)
	assert.Contains(t, seen, agent.EventToolResult)

	ui, err := h.session.History(ctx, state.ThreadID)
	require.NoError(t, err)
	require.Len(t, ui, 3)
	assert.Equal(t, conversation.RoleUser, ui[0].Role)
	assert.Equal(t, conversation.RoleToolCall, ui[1].Role)
	assert.Equal(t, "What is X?", ui[1].Query)
	require.NotEmpty(t, ui[1].Passages)
	assert.Contains(t, ui[1].Passages[0], "compressing neural networks")
	assert.Equal(t, conversation.RoleAssistant, ui[2].Role)
	assert.Equal(t, 2, conversation.CountVisible(ui))

	reqs := h.model.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].Instruction, "**paper.pdf**")

	th, err := st.Threads.Get(ctx, state.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, "What Is X", th.Name)
	require.NotNil(t, th.DocumentName)
	assert.Equal(t, "paper.pdf", *th.DocumentName)
}

func TestSend_TitleFallbackAndLaterTouch(t *testing.T) {
	ctx := context.Background()
	st, advance := newStore(t)
	h := newHarness(t, hashBackend(), st)
	state, err := h.session.Open(ctx)
	require.NoError(t, err)

	h.model.TitleErr = errors.New("offline")
	h.model.Enqueue(llmtest.Text("a"), llmtest.Text("b"))
	_, err = h.session.Send(ctx, "please tell me a long story about dragons", nil)
	require.NoError(t, err)

	th, err := st.Threads.Get(ctx, state.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, "please tell me a long...", th.Name)

	advance(time.Minute)
	_, err = h.session.Send(ctx, "another", nil)
	require.NoError(t, err)
	after, err := st.Threads.Get(ctx, state.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, th.Name, after.Name)
	assert.True(t, after.UpdatedAt.After(th.UpdatedAt))
	assert.Len(t, h.model.Prompts, 1, "only the first message is titled")
}

func TestUpload_SkipsActiveAndRespectsExistingMessages(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t)
	h := newHarness(t, hashBackend(), st)
	state, err := h.session.Open(ctx)
	require.NoError(t, err)

	h.model.Enqueue(llmtest.Text("hello"))
	_, err = h.session.Send(ctx, "Hi", nil)
	require.NoError(t, err)

	up, err := h.session.UploadDocument(ctx, source(paperText), "paper.pdf")
	require.NoError(t, err)
	assert.False(t, up.Associated, "a thread with messages keeps its document")
	th, err := st.Threads.Get(ctx, state.ThreadID)
	require.NoError(t, err)
	assert.Nil(t, th.DocumentName)

	again, err := h.session.UploadDocument(ctx, source("ignored"), "paper.pdf")
	require.NoError(t, err)
	assert.True(t, again.Skipped)
}

func TestOpen_RestoresMostRecentThreadDocument(t *testing.T) {
	ctx := context.Background()
	backend := hashBackend()
	st, advance := newStore(t)

	first := newHarness(t, backend, st)
	_, err := first.session.Open(ctx)
	require.NoError(t, err)
	_, err = first.session.UploadDocument(ctx, source(paperText), "paper.pdf")
	require.NoError(t, err)

	advance(time.Second)
	second := newHarness(t, backend, st)
	state, err := second.session.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "thread-1", state.ThreadID)
	assert.Equal(t, "paper.pdf", state.Document)
	assert.Empty(t, state.RestoreWarning)
}

func TestSwitchThread_RestoreFailureWarns(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t)
	doc := "gone.pdf"
	require.NoError(t, st.Threads.Create(ctx, "old", "Old chat", &doc))

	h := newHarness(t, hashBackend(), st)
	state, err := h.session.SwitchThread(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "gone.pdf", state.RestoreWarning)
	assert.Empty(t, state.Document)
	assert.Empty(t, h.session.Document())
}

func TestSwitchThread_ClearsDocumentForDocumentlessThread(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t)
	h := newHarness(t, hashBackend(), st)
	_, err := h.session.Open(ctx)
	require.NoError(t, err)
	_, err = h.session.UploadDocument(ctx, source(paperText), "paper.pdf")
	require.NoError(t, err)

	id, err := h.session.NewChat(ctx)
	require.NoError(t, err)
	assert.Empty(t, h.session.Document())

	state, err := h.session.SwitchThread(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "paper.pdf", state.Document)

	state, err = h.session.SwitchThread(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, state.Document)
	assert.Empty(t, h.session.Document())
}

func TestRenameAndDelete(t *testing.T) {
	ctx := context.Background()
	st, advance := newStore(t)
	h := newHarness(t, hashBackend(), st)
	_, err := h.session.Open(ctx)
	require.NoError(t, err)
	advance(time.Second)
	second, err := h.session.NewChat(ctx)
	require.NoError(t, err)

	require.NoError(t, h.session.Rename(ctx, "Renamed"))
	th, err := st.Threads.Get(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", th.Name)

	state, err := h.session.Delete(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "thread-1", state.ThreadID)

	threads, err := h.session.Threads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)

	state, err = h.session.Delete(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "thread-3", state.ThreadID, "deleting the last thread opens a fresh one")
}

func TestSend_ReadersDoNotWaitOnRunningTurn(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t)
	h := newHarness(t, hashBackend(), st)
	state, err := h.session.Open(ctx)
	require.NoError(t, err)

	h.model.Enqueue(llmtest.Text("a", "b", "c"))
	var seen []string
	_, err = h.session.Send(ctx, "Hi", func(agent.Event) {
		seen = append(seen, h.session.ThreadID()+"|"+h.session.Document())
	})
	require.NoError(t, err)
	require.NotEmpty(t, seen)
	for _, s := range seen {
		assert.Equal(t, state.ThreadID+"|", s)
	}
}
