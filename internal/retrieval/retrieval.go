// Package retrieval exposes document search to the agent as the rag_tool.
package retrieval

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/tools"
	"go.uber.org/zap"

	"papermind/internal/domain"
	"papermind/internal/index"
	"papermind/internal/logger"
)

// Name is the tool name the model calls.
const Name = "rag_tool"

// NoDocumentMessage is reported when retrieval runs without an active index.
const NoDocumentMessage = "No document loaded. Please upload a document first."

// EmptyQueryMessage is reported when the call arguments carry no query.
const EmptyQueryMessage = "No query provided. Call rag_tool with a query."

// Description tells the model when to use the tool.
const Description = "Retrieve relevant passages from the uploaded document. " +
	"Use this for factual or conceptual questions about the document. " +
	"Input is a JSON object with a single string field `query`."

// Searcher is the part of index.Manager the tool depends on.
type Searcher interface {
	Search(ctx context.Context, query string) ([]domain.Passage, error)
}

// Result is the JSON payload returned to the model.
type Result struct {
	Query      string              `json:"query"`
	Passages   []string            `json:"passages"`
	Provenance []map[string]string `json:"provenance"`
	Error      string              `json:"error,omitempty"`
}

// Tool runs retrieval against a session's active index.
type Tool struct {
	searcher Searcher
	log      *zap.Logger
}

var _ tools.Tool = (*Tool)(nil)

func New(searcher Searcher, log *zap.Logger) *Tool {
	return &Tool{searcher: searcher, log: logger.OrNop(log)}
}

func (t *Tool) Name() string { return Name }

func (t *Tool) Description() string { return Description }

// Parameters is the JSON schema of the tool's arguments.
func (t *Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What to look up in the document.",
			},
		},
		"required": []string{"query"},
	}
}

// Retrieve never fails: problems are reported in Result.Error.
func (t *Tool) Retrieve(ctx context.Context, query string) Result {
	res := Result{Query: query, Passages: []string{}, Provenance: []map[string]string{}}
	if strings.TrimSpace(query) == "" {
		res.Error = EmptyQueryMessage
		return res
	}
	passages, err := t.searcher.Search(ctx, query)
	if err != nil {
		if errors.Is(err, index.ErrNoDocument) {
			res.Error = NoDocumentMessage
		} else {
			t.log.Warn("retrieval failed", zap.String("query", query), zap.Error(err))
			res.Error = "Retrieval failed: " + err.Error()
		}
		return res
	}
	for _, p := range passages {
		res.Passages = append(res.Passages, p.Text)
		md := p.Metadata
		if md == nil {
			md = map[string]string{}
		}
		res.Provenance = append(res.Provenance, md)
	}
	t.log.Debug("retrieved", zap.String("query", query), zap.Int("passages", len(passages)))
	return res
}

// Call accepts the model's raw argument payload. A payload that is not JSON
// is used verbatim as the query.
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	data, err := json.Marshal(t.Retrieve(ctx, ParseQuery(input)))
	if err != nil {
		return "", errors.Wrap(err, "encode retrieval result")
	}
	return string(data), nil
}

// ParseQuery extracts the query from a tool argument payload. A JSON object
// without a query yields ""; input that is not a JSON object is the query.
func ParseQuery(input string) string {
	var args struct {
		Query string `json:"query"`
	}
	trimmed := strings.TrimSpace(input)
	if err := json.Unmarshal([]byte(trimmed), &args); err == nil {
		return strings.TrimSpace(args.Query)
	}
	return trimmed
}
