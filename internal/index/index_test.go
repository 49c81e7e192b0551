package index

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papermind/internal/domain"
	"papermind/internal/embedding"
	"papermind/internal/loader"
	"papermind/internal/summarizer"
	"papermind/internal/vectorstore"
	"papermind/internal/vectorstore/memory"
)

type countingBackend struct {
	vectorstore.Backend
	builds   int
	opens    int
	failOpen bool
}

func (b *countingBackend) Build(ctx context.Context, key string, chunks []domain.Chunk) error {
	b.builds++
	return b.Backend.Build(ctx, key, chunks)
}

func (b *countingBackend) Open(ctx context.Context, key string) (vectorstore.Index, error) {
	b.opens++
	if b.failOpen {
		return nil, errors.New("corrupt index")
	}
	ix, err := b.Backend.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	return &recordingIndex{Index: ix}, nil
}

type recordingIndex struct {
	vectorstore.Index
	lastK int
}

func (ix *recordingIndex) Search(ctx context.Context, query string, k int) ([]domain.Passage, error) {
	ix.lastK = k
	return ix.Index.Search(ctx, query, k)
}

func textSource(s string) Source {
	return Source{Reader: strings.NewReader(s), Size: int64(len(s))}
}

const paper = "Quantum computing uses qubits. Qubits can be in superposition. " +
	"Entanglement links qubits together. Classical bits are either zero or one. " +
	"Error correction protects fragile quantum states."

func newTestManager(t *testing.T) (*Manager, *countingBackend) {
	t.Helper()
	backend := &countingBackend{Backend: memory.New(embedding.NewHash(128).Embed)}
	m := NewManager(Options{
		Backend:    backend,
		Summarizer: summarizer.NewFrequencySummarizer(0),
		LoaderFor:  func(string) (domain.Loader, error) { return loader.Text{}, nil },
		LoadK:      4,
		RestoreK:   2,
	})
	return m, backend
}

func TestCanonicalKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"paper.pdf", "paper"},
		{"My Paper.pdf", "My_Paper"},
		{"dir/sub/file.pdf", "dir_sub_file"},
		{`win\path name.pdf`, "win_path_name"},
		{"notes", "notes"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalKey(tt.in), tt.in)
	}
	assert.Equal(t, CanonicalKey("a b.pdf"), CanonicalKey("a_b.pdf"))
}

func TestLoad_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, backend := newTestManager(t)

	first, err := m.Load(ctx, textSource(paper), "paper.pdf")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Positive(t, first.Chunks)
	assert.NotEmpty(t, first.Summary)

	second, err := m.Load(ctx, textSource("different content entirely"), "paper.pdf")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Chunks, second.Chunks)
	assert.Empty(t, second.Summary)

	assert.Equal(t, 1, backend.builds)
	name, ok := m.CurrentName()
	assert.True(t, ok)
	assert.Equal(t, "paper.pdf", name)
}

func TestLoad_ReusesIndexAcrossSameKey(t *testing.T) {
	ctx := context.Background()
	m, backend := newTestManager(t)
	_, err := m.Load(ctx, textSource(paper), "My Paper.pdf")
	require.NoError(t, err)
	res, err := m.Load(ctx, textSource(paper), "My_Paper.pdf")
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 1, backend.builds)
}

func TestLoad_EmptyDocument(t *testing.T) {
	m, backend := newTestManager(t)
	_, err := m.Load(context.Background(), textSource("  \n "), "blank.txt")
	assert.Error(t, err)
	assert.Zero(t, backend.builds)
	_, ok := m.CurrentName()
	assert.False(t, ok)
}

func TestSearch_NoDocument(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Search(context.Background(), "anything")
	assert.True(t, errors.Is(err, ErrNoDocument))
}

func TestSearch_UsesLoadAndRestoreK(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, err := m.Load(ctx, textSource(paper), "paper.pdf")
	require.NoError(t, err)
	_, err = m.Search(ctx, "qubits")
	require.NoError(t, err)
	assert.Equal(t, 4, m.current.index.(*recordingIndex).lastK)

	m.Clear()
	require.True(t, m.Restore(ctx, "paper.pdf"))
	_, err = m.Search(ctx, "qubits")
	require.NoError(t, err)
	assert.Equal(t, 2, m.current.index.(*recordingIndex).lastK)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	m, backend := newTestManager(t)

	assert.False(t, m.Restore(ctx, ""))
	assert.False(t, m.Restore(ctx, "missing.pdf"))
	_, ok := m.CurrentName()
	assert.False(t, ok)

	_, err := m.Load(ctx, textSource(paper), "paper.pdf")
	require.NoError(t, err)
	opens := backend.opens
	assert.True(t, m.Restore(ctx, "paper.pdf"))
	assert.Equal(t, opens, backend.opens, "restoring the active document reopens nothing")

	_, err = m.Load(ctx, textSource("Other text about cats."), "other.pdf")
	require.NoError(t, err)
	backend.failOpen = true
	assert.False(t, m.Restore(ctx, "paper.pdf"))
	name, _ := m.CurrentName()
	assert.Equal(t, "other.pdf", name, "failed restore keeps the active handle")
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	_, err := m.Load(ctx, textSource(paper), "paper.pdf")
	require.NoError(t, err)
	m.Clear()
	_, ok := m.CurrentName()
	assert.False(t, ok)
}

func TestFileSource(t *testing.T) {
	_, _, err := FileSource("/nonexistent/file.pdf")
	assert.Error(t, err)
}
