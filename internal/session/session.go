// Package session coordinates one user's chat: the current thread, its
// active document and the turn lifecycle around the agent.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"papermind/internal/agent"
	"papermind/internal/conversation"
	"papermind/internal/index"
	"papermind/internal/logger"
	"papermind/internal/store"
)

// DefaultThreadName is given to threads before their first message.
const DefaultThreadName = "New Chat"

// State describes the thread a session has just switched to.
type State struct {
	ThreadID string
	Document string
	// RestoreWarning names a document whose index could not be restored and
	// must be uploaded again.
	RestoreWarning string
}

// Upload is the outcome of UploadDocument.
type Upload struct {
	*index.Loaded
	// Skipped is set when the document was already active.
	Skipped bool
	// Associated is set when the document was recorded on the thread.
	Associated bool
}

// Options configures a Session.
type Options struct {
	Store  *store.Store
	Index  *index.Manager
	Agent  *agent.Agent
	NewID  func() string
	Logger *zap.Logger
}

// Session runs one turn at a time.
type Session struct {
	store *store.Store
	index *index.Manager
	agent *agent.Agent
	newID func() string
	log   *zap.Logger

	// work serializes operations that change the session. mu only guards
	// threadID, so readers never wait on a running turn or index build.
	work     sync.Mutex
	mu       sync.Mutex
	threadID string
}

func (s *Session) current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

func (s *Session) setCurrent(id string) {
	s.mu.Lock()
	s.threadID = id
	s.mu.Unlock()
}

func New(opts Options) *Session {
	s := &Session{
		store: opts.Store,
		index: opts.Index,
		agent: opts.Agent,
		newID: opts.NewID,
		log:   logger.OrNop(opts.Logger),
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Open selects the most recently updated thread, or creates one, and
// restores its document.
func (s *Session) Open(ctx context.Context) (*State, error) {
	threads, err := s.store.Threads.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(threads) == 0 {
		id, err := s.NewChat(ctx)
		if err != nil {
			return nil, err
		}
		return &State{ThreadID: id}, nil
	}
	return s.SwitchThread(ctx, threads[0].ID)
}

// NewChat creates an empty thread, makes it current and clears the active
// document.
func (s *Session) NewChat(ctx context.Context) (string, error) {
	s.work.Lock()
	defer s.work.Unlock()
	id := s.newID()
	if err := s.store.Threads.Create(ctx, id, DefaultThreadName, nil); err != nil {
		return "", err
	}
	s.setCurrent(id)
	s.index.Clear()
	s.log.Info("new chat", zap.String("thread", id))
	return id, nil
}

// SwitchThread makes id current and restores the document recorded on it.
func (s *Session) SwitchThread(ctx context.Context, id string) (*State, error) {
	s.work.Lock()
	defer s.work.Unlock()
	th, err := s.store.Threads.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.setCurrent(id)
	st := &State{ThreadID: id}
	if th.DocumentName == nil || *th.DocumentName == "" {
		s.index.Clear()
		return st, nil
	}
	if s.index.Restore(ctx, *th.DocumentName) {
		st.Document = *th.DocumentName
	} else {
		s.index.Clear()
		st.RestoreWarning = *th.DocumentName
	}
	return st, nil
}

// UploadDocument indexes (or reuses the index of) a document and makes it
// active. The document is recorded on the current thread only while the
// thread has no messages.
func (s *Session) UploadDocument(ctx context.Context, src index.Source, displayName string) (*Upload, error) {
	s.work.Lock()
	defer s.work.Unlock()
	id := s.current()
	if id == "" {
		return nil, errors.New("session: no current thread")
	}
	if name, ok := s.index.CurrentName(); ok && name == displayName {
		return &Upload{Loaded: &index.Loaded{Name: displayName, Key: index.CanonicalKey(displayName), Cached: true}, Skipped: true}, nil
	}
	loaded, err := s.index.Load(ctx, src, displayName)
	if err != nil {
		return nil, err
	}
	up := &Upload{Loaded: loaded}
	has, err := s.store.Messages.HasMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	if !has {
		doc := loaded.Name
		if err := s.store.Threads.Update(ctx, id, store.ThreadUpdate{Document: &doc}); err != nil {
			return nil, err
		}
		up.Associated = true
	}
	return up, nil
}

// Send runs one turn on the current thread. The first message of a thread
// names it and records the active document; later messages only touch it.
func (s *Session) Send(ctx context.Context, text string, sink agent.Sink) (*agent.Turn, error) {
	s.work.Lock()
	defer s.work.Unlock()
	id := s.current()
	if id == "" {
		return nil, errors.New("session: no current thread")
	}
	has, err := s.store.Messages.HasMessages(ctx, id)
	if err != nil {
		return nil, err
	}

	turn, runErr := s.agent.Run(ctx, id, text, sink)

	var update store.ThreadUpdate
	if !has {
		name, err := s.agent.GenerateTitle(ctx, text)
		if err != nil {
			s.log.Warn("title generation failed", zap.String("thread", id), zap.Error(err))
			name = agent.FallbackTitle(text)
		}
		update.Name = &name
		if doc, ok := s.index.CurrentName(); ok {
			update.Document = &doc
		}
	}
	if err := s.store.Threads.Update(ctx, id, update); err != nil {
		return turn, err
	}
	return turn, runErr
}

// Rename sets the current thread's name.
func (s *Session) Rename(ctx context.Context, name string) error {
	s.work.Lock()
	defer s.work.Unlock()
	return s.store.Threads.Update(ctx, s.current(), store.ThreadUpdate{Name: &name})
}

// Delete removes a thread. Deleting the current thread moves the session to
// the most recent remaining thread, or a new one.
func (s *Session) Delete(ctx context.Context, id string) (*State, error) {
	if err := s.store.Threads.Delete(ctx, id); err != nil {
		return nil, err
	}
	current := s.current()
	if id != current {
		return &State{ThreadID: current, Document: s.currentDocument()}, nil
	}
	return s.Open(ctx)
}

// Threads lists every thread, most recent first.
func (s *Session) Threads(ctx context.Context) ([]*store.Thread, error) {
	return s.store.Threads.List(ctx)
}

// History returns a thread's transcript in chat-view form.
func (s *Session) History(ctx context.Context, id string) ([]conversation.UIEntry, error) {
	msgs, err := s.store.Messages.List(ctx, id)
	if err != nil {
		return nil, err
	}
	return conversation.ToUI(msgs), nil
}

// ThreadID returns the current thread.
func (s *Session) ThreadID() string {
	return s.current()
}

// Document returns the active document name, or "".
func (s *Session) Document() string {
	return s.currentDocument()
}

func (s *Session) currentDocument() string {
	name, _ := s.index.CurrentName()
	return name
}
