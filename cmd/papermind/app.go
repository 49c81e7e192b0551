package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"papermind/internal/agent"
	"papermind/internal/chunker"
	"papermind/internal/config"
	"papermind/internal/embedding"
	"papermind/internal/index"
	"papermind/internal/llm"
	"papermind/internal/llm/langchain"
	"papermind/internal/llm/openai"
	"papermind/internal/retrieval"
	"papermind/internal/session"
	"papermind/internal/store"
	"papermind/internal/summarizer"
	"papermind/internal/vectorstore"
	chromemstore "papermind/internal/vectorstore/chromem"
	"papermind/internal/vectorstore/memory"
	"papermind/internal/vectorstore/sqlite"
)

// app holds the assembled components of one process.
type app struct {
	store   *store.Store
	session *session.Session
}

func (a *app) Close() error { return a.store.Close() }

// summaryMaxChars skips overly long sentences in upload summaries.
const summaryMaxChars = 400

// buildIndex assembles everything needed to load documents.
func buildIndex(cfg *config.AppConfig, log *zap.Logger) (*index.Manager, error) {
	embed, err := embedding.New(cfg.Embedder)
	if err != nil {
		return nil, errors.Wrap(err, "embedder")
	}
	backend, err := newBackend(cfg.Index, embed)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(cfg.Chunker)
	if err != nil {
		return nil, errors.Wrap(err, "chunker")
	}
	return index.NewManager(index.Options{
		Backend:    backend,
		Chunker:    ch,
		Summarizer: summarizer.NewFrequencySummarizer(summaryMaxChars),
		LoadK:      cfg.Retrieval.LoadK,
		RestoreK:   cfg.Retrieval.RestoreK,
		Logger:     log.Named("index"),
	}), nil
}

func buildApp(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*app, error) {
	mgr, err := buildIndex(cfg, log)
	if err != nil {
		return nil, err
	}
	model, err := newModel(cfg.LLM)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(cfg.Storage.Database); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create database dir")
		}
	}
	st, err := store.Open(ctx, cfg.Storage.Database)
	if err != nil {
		return nil, err
	}
	ag := agent.New(agent.Options{
		Model:      model,
		Transcript: st.Messages,
		Documents:  mgr,
		Tools:      []agent.Tool{retrieval.New(mgr, log.Named("retrieval"))},
		MaxHistory: cfg.History.MaxMessages,
		MaxRounds:  cfg.History.MaxAgentRounds,
		Logger:     log.Named("agent"),
	})
	sess := session.New(session.Options{
		Store:  st,
		Index:  mgr,
		Agent:  ag,
		Logger: log.Named("session"),
	})
	return &app{store: st, session: sess}, nil
}

func newBackend(cfg config.IndexConfig, embed chromem.EmbeddingFunc) (vectorstore.Backend, error) {
	workers := runtime.NumCPU()
	switch cfg.Backend {
	case "chromem", "":
		return chromemstore.New(cfg.Dir, embed, workers), nil
	case "sqlite":
		return sqlite.New(cfg.Dir, embed, workers), nil
	case "memory":
		return memory.New(embed), nil
	default:
		return nil, errors.Errorf("unknown index backend: %s", cfg.Backend)
	}
}

func newModel(cfg config.LLMConfig) (llm.Model, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	switch cfg.Provider {
	case "openai", "":
		return openai.New(openai.Config{
			BaseURL:     cfg.BaseURL,
			APIKeyEnv:   cfg.APIKeyEnv,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     timeout,
		})
	case "langchain":
		token := ""
		if cfg.APIKeyEnv != "" {
			if token = os.Getenv(cfg.APIKeyEnv); token == "" {
				return nil, errors.Errorf("missing API key in env %s", cfg.APIKeyEnv)
			}
		}
		return langchain.NewOpenAI(cfg.BaseURL, token, cfg.Model, cfg.Temperature)
	case "ollama":
		return langchain.NewOllama(cfg.BaseURL, cfg.Model, cfg.Temperature)
	default:
		return nil, errors.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
