// Package domain holds the document types shared by loading, chunking and
// indexing.
package domain

import (
	"context"
	"io"
)

// Page is the text extracted from one page (or the whole body) of a document.
// Number is 1-based; 0 means the format has no pages.
type Page struct {
	Number int
	Text   string
}

// Chunk is one indexable piece of a document.
type Chunk struct {
	Index    int
	Text     string
	Metadata map[string]string
}

// Passage is a chunk returned by a similarity search.
type Passage struct {
	Text     string
	Metadata map[string]string
	Score    float64
}

// Loader extracts text from a document.
type Loader interface {
	Load(ctx context.Context, r io.ReaderAt, size int64) ([]Page, error)
}

// Chunker splits extracted text into chunks suitable for retrieval indexing.
type Chunker interface {
	Split(text string) ([]string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
