package embedding

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	chromem "github.com/philippgille/chromem-go"
)

// Cached wraps embed so identical texts are embedded once per ttl. Repeated
// queries against a remote embedder then cost a single request.
func Cached(embed chromem.EmbeddingFunc, ttl time.Duration) chromem.EmbeddingFunc {
	c := cache.New(ttl, 2*ttl)
	return func(ctx context.Context, text string) ([]float32, error) {
		if v, ok := c.Get(text); ok {
			return append([]float32(nil), v.([]float32)...), nil
		}
		vec, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.Set(text, append([]float32(nil), vec...), cache.DefaultExpiration)
		return vec, nil
	}
}
