// Package sqlite persists each index as a single SQLite file holding chunk
// text, metadata and embedding BLOBs. Search is brute-force over the rows
// loaded at open time.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"papermind/internal/domain"
	"papermind/internal/vectorstore"
)

const chunksSchema = `
CREATE TABLE IF NOT EXISTS chunks (
    idx       INTEGER PRIMARY KEY,
    content   TEXT NOT NULL,
    meta      TEXT NOT NULL,
    embedding BLOB NOT NULL
)`

// Backend stores one file per key under dir.
type Backend struct {
	dir         string
	embed       chromem.EmbeddingFunc
	concurrency int
}

// New returns a backend rooted at dir. concurrency bounds parallel embedding
// calls during Build.
func New(dir string, embed chromem.EmbeddingFunc, concurrency int) *Backend {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Backend{dir: dir, embed: embed, concurrency: concurrency}
}

func (b *Backend) Name() string { return "sqlite" }

func (b *Backend) path(key string) string {
	return filepath.Join(b.dir, key+".db")
}

func (b *Backend) Exists(key string) bool {
	_, err := os.Stat(b.path(key))
	return err == nil
}

// Build embeds chunks, writes them to a temporary file and renames it into
// place, so a failed build never leaves a partial index behind.
func (b *Backend) Build(ctx context.Context, key string, chunks []domain.Chunk) error {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i := range chunks {
		g.Go(func() error {
			vec, err := b.embed(gctx, chunks[i].Text)
			if err != nil {
				return errors.Wrapf(err, "embed chunk %d", chunks[i].Index)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return errors.Wrap(err, "create index dir")
	}
	tmp, err := os.CreateTemp(b.dir, key+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp index")
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := writeChunks(ctx, tmpPath, chunks, vectors); err != nil {
		return err
	}
	return errors.Wrap(os.Rename(tmpPath, b.path(key)), "install index")
}

func writeChunks(ctx context.Context, path string, chunks []domain.Chunk, vectors [][]float32) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return errors.Wrap(err, "open temp index")
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, chunksSchema); err != nil {
		return errors.Wrap(err, "create schema")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks(idx, content, meta, embedding) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	for i, ch := range chunks {
		meta, err := json.Marshal(vectorstore.CopyMetadata(ch.Metadata))
		if err != nil {
			return errors.Wrap(err, "encode metadata")
		}
		if _, err := stmt.ExecContext(ctx, i, ch.Text, string(meta), encodeEmbedding(vectors[i])); err != nil {
			return errors.Wrapf(err, "insert chunk %d", i)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// Open loads every row of the index file into memory.
func (b *Backend) Open(ctx context.Context, key string) (vectorstore.Index, error) {
	if !b.Exists(key) {
		return nil, errors.Errorf("sqlite: no index %q", key)
	}
	db, err := sql.Open("sqlite", b.path(key))
	if err != nil {
		return nil, errors.Wrap(err, "open index")
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT content, meta, embedding FROM chunks ORDER BY idx`)
	if err != nil {
		return nil, errors.Wrap(err, "read index")
	}
	defer rows.Close()

	ix := &Index{embed: b.embed}
	for rows.Next() {
		var (
			content, meta string
			blob          []byte
		)
		if err := rows.Scan(&content, &meta, &blob); err != nil {
			return nil, errors.Wrap(err, "scan chunk")
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		md := map[string]string{}
		if err := json.Unmarshal([]byte(meta), &md); err != nil {
			return nil, errors.Wrap(err, "decode metadata")
		}
		ix.texts = append(ix.texts, content)
		ix.metadata = append(ix.metadata, md)
		ix.vectors = append(ix.vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate chunks")
	}
	return ix, nil
}

// Index is a loaded index file.
type Index struct {
	embed    chromem.EmbeddingFunc
	texts    []string
	metadata []map[string]string
	vectors  [][]float32
}

func (ix *Index) Len() int { return len(ix.texts) }

func (ix *Index) Close() error { return nil }

func (ix *Index) Search(ctx context.Context, query string, k int) ([]domain.Passage, error) {
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
