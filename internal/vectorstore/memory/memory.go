// Package memory is a process-local vector-store backend using brute-force
// cosine similarity. Indexes live as long as the Backend.
package memory

import (
	"context"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"

	"papermind/internal/domain"
	"papermind/internal/vectorstore"
)

// Backend keeps every built index in memory.
type Backend struct {
	mu      sync.RWMutex
	embed   chromem.EmbeddingFunc
	indexes map[string]*Index
}

// New returns an empty backend embedding with embed.
func New(embed chromem.EmbeddingFunc) *Backend {
	return &Backend{embed: embed, indexes: make(map[string]*Index)}
}

func (b *Backend) Name() string { return "memory" }

func (b *Backend) Exists(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.indexes[key]
	return ok
}

func (b *Backend) Build(ctx context.Context, key string, chunks []domain.Chunk) error {
	ix := &Index{embed: b.embed}
	for _, ch := range chunks {
		vec, err := b.embed(ctx, ch.Text)
		if err != nil {
			return errors.Wrapf(err, "embed chunk %d", ch.Index)
		}
		ix.texts = append(ix.texts, ch.Text)
		ix.metadata = append(ix.metadata, vectorstore.CopyMetadata(ch.Metadata))
		ix.vectors = append(ix.vectors, vec)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.indexes[key] = ix
	return nil
}

func (b *Backend) Open(_ context.Context, key string) (vectorstore.Index, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ix, ok := b.indexes[key]
	if !ok {
		return nil, errors.Errorf("memory: no index %q", key)
	}
	return ix, nil
}

// Index is an immutable set of embedded chunks.
type Index struct {
	embed    chromem.EmbeddingFunc
	texts    []string
	metadata []map[string]string
	vectors  [][]float32
}

func (ix *Index) Len() int { return len(ix.texts) }

func (ix *Index) Close() error { return nil }

func (ix *Index) Search(ctx context.Context, query string, k int) ([]domain.Passage, error) {
	if k <= 0 {
		k = 4
	}
	vec, err := ix.embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}
	scores := vectorstore.Rank(query, vec, ix.texts, ix.vectors)
	idxs := vectorstore.TopK(scores, k)
	out := make([]domain.Passage, 0, len(idxs))
	for _, j := range idxs {
		out = append(out, domain.Passage{
			Text:     ix.texts[j],
			Metadata: vectorstore.CopyMetadata(ix.metadata[j]),
			Score:    scores[j],
		})
	}
	return out, nil
}
