// Package index builds, caches and activates the per-document similarity
// index a session retrieves from.
package index

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"papermind/internal/chunker"
	"papermind/internal/domain"
	"papermind/internal/loader"
	"papermind/internal/logger"
	"papermind/internal/vectorstore"
)

// ErrNoDocument is returned by Search when no index is active.
var ErrNoDocument = errors.New("no document loaded")

// Source is the raw document handed to Load.
type Source struct {
	Reader io.ReaderAt
	Size   int64
}

// FileSource opens path as a Source. The caller closes the returned file.
func FileSource(path string) (Source, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return Source{}, nil, errors.Wrapf(err, "open %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return Source{}, nil, errors.Wrapf(err, "stat %s", path)
	}
	return Source{Reader: f, Size: info.Size()}, f, nil
}

// Loaded describes the outcome of Load.
type Loaded struct {
	Name    string
	Key     string
	Cached  bool
	Chunks  int
	Summary string
}

// Options configures a Manager.
type Options struct {
	Backend    vectorstore.Backend
	Chunker    domain.Chunker
	Summarizer domain.Summarizer
	// LoaderFor picks a text extractor for a display name.
	LoaderFor func(name string) (domain.Loader, error)
	LoadK     int
	RestoreK  int
	Logger    *zap.Logger
}

type active struct {
	name  string
	index vectorstore.Index
	k     int
}

// Manager owns the at-most-one active retrieval handle of a session.
type Manager struct {
	backend    vectorstore.Backend
	chunker    domain.Chunker
	summarizer domain.Summarizer
	loaderFor  func(string) (domain.Loader, error)
	loadK      int
	restoreK   int
	log        *zap.Logger

	mu      sync.RWMutex
	current *active
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		backend:    opts.Backend,
		chunker:    opts.Chunker,
		summarizer: opts.Summarizer,
		loaderFor:  opts.LoaderFor,
		loadK:      opts.LoadK,
		restoreK:   opts.RestoreK,
		log:        logger.OrNop(opts.Logger),
	}
	if m.chunker == nil {
		m.chunker = chunker.NewRecursive(600, 100)
	}
	if m.loaderFor == nil {
		m.loaderFor = loader.ForName
	}
	if m.loadK <= 0 {
		m.loadK = 4
	}
	if m.restoreK <= 0 {
		m.restoreK = 2
	}
	return m
}

// CanonicalKey maps a display name to its storage key: the extension is
// dropped and path separators and spaces become underscores.
func CanonicalKey(displayName string) string {
	base := strings.TrimSuffix(displayName, filepath.Ext(displayName))
	return strings.NewReplacer(" ", "_", "/", "_", `\`, "_").Replace(base)
}

// Load makes displayName the active document, building its index first
// unless one is already stored under the same key.
func (m *Manager) Load(ctx context.Context, src Source, displayName string) (*Loaded, error) {
	key := CanonicalKey(displayName)
	if key == "" {
		return nil, errors.New("index: empty document name")
	}
	res := &Loaded{Name: displayName, Key: key, Cached: m.backend.Exists(key)}

	if !res.Cached {
		chunks, fullText, err := m.extract(ctx, src, displayName)
		if err != nil {
			return nil, err
		}
		if len(chunks) == 0 {
			return nil, errors.Errorf("index: no text extracted from %s", displayName)
		}
		if err := m.backend.Build(ctx, key, chunks); err != nil {
			return nil, errors.Wrapf(err, "build index for %s", displayName)
		}
		res.Chunks = len(chunks)
		if m.summarizer != nil {
			if summary, err := m.summarizer.Summarize(fullText, 3); err == nil {
				res.Summary = summary
			} else {
				m.log.Warn("summarize failed", zap.String("document", displayName), zap.Error(err))
			}
		}
		m.log.Info("index built",
			zap.String("document", displayName),
			zap.String("backend", m.backend.Name()),
			zap.Int("chunks", len(chunks)))
	}

	ix, err := m.backend.Open(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "open index for %s", displayName)
	}
	if res.Cached {
		res.Chunks = ix.Len()
		m.log.Info("index reused", zap.String("document", displayName), zap.String("key", key))
	}
	m.activate(displayName, ix, m.loadK)
	return res, nil
}

func (m *Manager) extract(ctx context.Context, src Source, displayName string) ([]domain.Chunk, string, error) {
	ld, err := m.loaderFor(displayName)
	if err != nil {
		return nil, "", err
	}
	pages, err := ld.Load(ctx, src.Reader, src.Size)
	if err != nil {
		return nil, "", err
	}
	var (
		chunks []domain.Chunk
		full   strings.Builder
	)
	for _, p := range pages {
		text := chunker.Sanitize(p.Text)
		if text == "" {
			continue
		}
		full.WriteString(text)
		full.WriteString("\n")
		pieces, err := m.chunker.Split(text)
		if err != nil {
			return nil, "", err
		}
		for _, piece := range pieces {
			piece = chunker.Sanitize(piece)
			if piece == "" {
				continue
			}
			md := map[string]string{"source": displayName, "chunk": strconv.Itoa(len(chunks))}
			if p.Number > 0 {
				md["page"] = strconv.Itoa(p.Number)
			}
			chunks = append(chunks, domain.Chunk{Index: len(chunks), Text: piece, Metadata: md})
		}
	}
	return chunks, full.String(), nil
}

// Restore re-activates a previously built index. It reports false, leaving
// the active handle unchanged, when the name is empty or the index cannot
// be opened.
func (m *Manager) Restore(ctx context.Context, displayName string) bool {
	if displayName == "" {
		return false
	}
	if name, ok := m.CurrentName(); ok && name == displayName {
		return true
	}
	key := CanonicalKey(displayName)
	if !m.backend.Exists(key) {
		m.log.Warn("restore: index missing", zap.String("document", displayName), zap.String("key", key))
		return false
	}
	ix, err := m.backend.Open(ctx, key)
	if err != nil {
		m.log.Warn("restore failed", zap.String("document", displayName), zap.Error(err))
		return false
	}
	m.activate(displayName, ix, m.restoreK)
	return true
}

// Clear drops the active handle.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		_ = m.current.index.Close()
	}
	m.current = nil
}

// CurrentName returns the active document name.
func (m *Manager) CurrentName() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return "", false
	}
	return m.current.name, true
}

// Search queries the active index.
func (m *Manager) Search(ctx context.Context, query string) ([]domain.Passage, error) {
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()
	if cur == nil {
		return nil, ErrNoDocument
	}
	return cur.index.Search(ctx, query, cur.k)
}

func (m *Manager) activate(name string, ix vectorstore.Index, k int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.index != ix {
		_ = m.current.index.Close()
	}
	m.current = &active{name: name, index: ix, k: k}
}
