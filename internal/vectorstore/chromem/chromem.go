// Package chromem stores each index as a chromem-go persistent database
// directory.
package chromem

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"

	"papermind/internal/domain"
	"papermind/internal/vectorstore"
)

const collectionName = "chunks"

// Backend stores one database directory per key under dir.
type Backend struct {
	dir         string
	embed       chromem.EmbeddingFunc
	concurrency int
}

// New returns a backend rooted at dir.
func New(dir string, embed chromem.EmbeddingFunc, concurrency int) *Backend {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Backend{dir: dir, embed: embed, concurrency: concurrency}
}

func (b *Backend) Name() string { return "chromem" }

func (b *Backend) path(key string) string {
	return filepath.Join(b.dir, key)
}

func (b *Backend) Exists(key string) bool {
	info, err := os.Stat(b.path(key))
	return err == nil && info.IsDir()
}

// Build writes the collection into a temporary directory and swaps it into
// place once every document is persisted.
func (b *Backend) Build(ctx context.Context, key string, chunks []domain.Chunk) error {
	if err := os.MkdirAll(b.dir, 0o750); err != nil {
		return errors.Wrap(err, "create index dir")
	}
	tmp, err := os.MkdirTemp(b.dir, "."+key+"-*")
	if err != nil {
		return errors.Wrap(err, "create temp index")
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	db, err := chromem.NewPersistentDB(tmp, false)
	if err != nil {
		return errors.Wrap(err, "open vector db")
	}
	col, err := db.GetOrCreateCollection(collectionName, nil, b.embed)
	if err != nil {
		return errors.Wrap(err, "create collection")
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for _, ch := range chunks {
		docs = append(docs, chromem.Document{
			ID:       strconv.Itoa(ch.Index),
			Content:  ch.Text,
			Metadata: vectorstore.CopyMetadata(ch.Metadata),
		})
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, b.concurrency); err != nil {
			return errors.Wrap(err, "add documents")
		}
	}

	final := b.path(key)
	if err := os.RemoveAll(final); err != nil {
		return errors.Wrap(err, "remove previous index")
	}
	return errors.Wrap(os.Rename(tmp, final), "install index")
}

func (b *Backend) Open(_ context.Context, key string) (vectorstore.Index, error) {
	if !b.Exists(key) {
		return nil, errors.Errorf("chromem: no index %q", key)
	}
	db, err := chromem.NewPersistentDB(b.path(key), false)
	if err != nil {
		return nil, errors.Wrap(err, "open vector db")
	}
	col := db.GetCollection(collectionName, b.embed)
	if col == nil {
		return nil, errors.Errorf("chromem: index %q has no collection", key)
	}
	return &Index{col: col}, nil
}

// Index wraps one chromem collection.
type Index struct {
	col *chromem.Collection
}

func (ix *Index) Len() int { return ix.col.Count() }

func (ix *Index) Close() error { return nil }

func (ix *Index) Search(ctx context.Context, query string, k int) ([]domain.Passage, error) {
	count := ix.col.Count()
	if count == 0 || k <= 0 {
		return []domain.Passage{}, nil
	}
	if k > count {
		k = count
	}
	results, err := ix.col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "query collection")
	}
	out := make([]domain.Passage, 0, len(results))
	for _, r := range results {
		out = append(out, domain.Passage{
			Text:     r.Content,
			Metadata: vectorstore.CopyMetadata(r.Metadata),
			Score:    float64(r.Similarity),
		})
	}
	return out, nil
}
