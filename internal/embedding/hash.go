package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// Hash is an offline embedder that needs no corpus preparation: it maps
// content tokens into a fixed number of buckets by feature hashing and
// weights them with sublinear term frequency.
type Hash struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewHash creates a hashing embedder producing vectors of the given size.
func NewHash(dimension int) *Hash {
	if dimension < 2 {
		dimension = 512
	}
	return &Hash{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Hash) Dimension() int { return e.dimension }

// Embed returns an L2-normalized vector. Bucket 0 is reserved: text without
// content tokens maps to the unit vector on it, so no vector is ever zero.
func (e *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	tf := make(map[int]int)
	for _, tok := range e.Tokenize(text) {
		tf[e.bucket(tok)]++
	}
	if len(tf) == 0 {
		vec[0] = 1
		return vec, nil
	}
	norm := 0.0
	for idx, count := range tf {
		w := 1 + math.Log(float64(count))
		vec[idx] = float32(w)
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// Tokenize lower-cases text and returns its non-stopword tokens.
func (e *Hash) Tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (e *Hash) bucket(tok string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tok))
	return 1 + int(h.Sum32()%uint32(e.dimension-1))
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "does", "do", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
