// Package embedding provides the text embedders used to build and query
// document indexes. Every embedder is exposed as a chromem.EmbeddingFunc so
// all vector-store backends share one calling convention.
package embedding

import (
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"

	"papermind/internal/config"
)

// remoteCacheTTL is how long a remote embedding is reused for identical text.
const remoteCacheTTL = 30 * time.Minute

// New builds the embedding function selected by cfg.Type.
func New(cfg config.EmbedderConfig) (chromem.EmbeddingFunc, error) {
	switch cfg.Type {
	case "hash":
		return NewHash(cfg.Dimension).Embed, nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("embedder: missing openai section")
		}
		c, err := NewRemote(RemoteConfig{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return Cached(c.Embed, remoteCacheTTL), nil
	case "ollama":
		if cfg.Ollama == nil {
			return nil, errors.New("embedder: missing ollama section")
		}
		return Cached(chromem.NewEmbeddingFuncOllama(cfg.Ollama.Model, cfg.Ollama.BaseURL), remoteCacheTTL), nil
	default:
		return nil, errors.Errorf("embedder: unknown type %q", cfg.Type)
	}
}
