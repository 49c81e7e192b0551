// Package chunker splits extracted document text into retrieval chunks.
package chunker

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/textsplitter"

	"papermind/internal/config"
	"papermind/internal/domain"
)

// New returns the chunker selected by cfg.Type.
func New(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "", "recursive":
		return NewRecursive(cfg.ChunkSize, cfg.ChunkOverlap), nil
	case "sentence":
		return NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), nil
	default:
		return nil, errors.Errorf("chunker: unknown type %q", cfg.Type)
	}
}

// Recursive splits on paragraph, line, then word boundaries until every
// chunk fits in size characters, with overlap characters shared between
// neighbours.
type Recursive struct {
	splitter textsplitter.RecursiveCharacter
}

func NewRecursive(size, overlap int) *Recursive {
	if size <= 0 {
		size = 600
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Recursive{splitter: textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)}
}

func (r *Recursive) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	chunks, err := r.splitter.SplitText(text)
	if err != nil {
		return nil, errors.Wrap(err, "split text")
	}
	return chunks, nil
}

// Sanitize drops invalid UTF-8 sequences and NUL bytes, then trims space.
func Sanitize(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}
