// Package vectorstore defines persisted similarity indexes addressed by a
// key, and the backends that build and open them.
package vectorstore

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"papermind/internal/domain"
)

// Index answers nearest-neighbour queries over one document.
type Index interface {
	Search(ctx context.Context, query string, k int) ([]domain.Passage, error)
	Len() int
	Close() error
}

// Backend builds and opens indexes stored under a key. Building an existing
// key replaces it.
type Backend interface {
	Name() string
	Exists(key string) bool
	Build(ctx context.Context, key string, chunks []domain.Chunk) error
	Open(ctx context.Context, key string) (Index, error)
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK returns the indexes of the k highest scores, best first. Ties keep
// insertion order.
func TopK(scores []float64, k int) []int {
	idxs := make([]int, len(scores))
	for i := range scores {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(i, j int) bool { return scores[idxs[i]] > scores[idxs[j]] })
	if k < 0 {
		k = 0
	}
	if k > len(idxs) {
		k = len(idxs)
	}
	return idxs[:k]
}

// AllBelow reports whether every score is at most eps.
func AllBelow(scores []float64, eps float64) bool {
	for _, s := range scores {
		if s > eps {
			return false
		}
	}
	return true
}

var unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// LexicalScores ranks texts by Ochiai token overlap with query, for use when
// embeddings carry no signal.
func LexicalScores(query string, texts []string) []float64 {
	qset := tokenSet(query)
	scores := make([]float64, len(texts))
	for i, t := range texts {
		scores[i] = overlapOchiai(qset, t)
	}
	return scores
}

func tokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai computes |A∩B| / sqrt(|A||B|) over distinct tokens.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	seen := tokenSet(text)
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	inter := 0
	for t := range seen {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}

// Rank scores texts against the query vector with cosine similarity and
// falls back to lexical overlap when no text scores above zero.
func Rank(query string, queryVec []float32, texts []string, vecs [][]float32) []float64 {
	scores := make([]float64, len(vecs))
	for i, v := range vecs {
		scores[i] = Cosine(queryVec, v)
	}
	if AllBelow(scores, 1e-9) {
		return LexicalScores(query, texts)
	}
	return scores
}

// CopyMetadata returns a shallow copy of m that is never nil.
func CopyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
