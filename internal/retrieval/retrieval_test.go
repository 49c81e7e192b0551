package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papermind/internal/conversation"
	"papermind/internal/domain"
	"papermind/internal/index"
)

type fakeSearcher struct {
	passages []domain.Passage
	err      error
	queries  []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]domain.Passage, error) {
	f.queries = append(f.queries, query)
	return f.passages, f.err
}

func TestRetrieve_NoDocument(t *testing.T) {
	tool := New(&fakeSearcher{err: index.ErrNoDocument}, nil)
	res := tool.Retrieve(context.Background(), "what is X?")

	assert.Equal(t, "what is X?", res.Query)
	assert.NotNil(t, res.Passages)
	assert.Empty(t, res.Passages)
	assert.Equal(t, NoDocumentMessage, res.Error)

	out, err := tool.Call(context.Background(), `{"query":"what is X?"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"what is X?","passages":[],"provenance":[],"error":"`+NoDocumentMessage+`"}`, out)
}

func TestRetrieve_NoDocumentWithRealManager(t *testing.T) {
	tool := New(index.NewManager(index.Options{}), nil)
	res := tool.Retrieve(context.Background(), "q")
	assert.Equal(t, NoDocumentMessage, res.Error)
	assert.Equal(t, []string{}, res.Passages)
}

func TestRetrieve_SearchFailure(t *testing.T) {
	res := New(&fakeSearcher{err: errors.New("disk gone")}, nil).Retrieve(context.Background(), "q")
	assert.Contains(t, res.Error, "disk gone")
	assert.Empty(t, res.Passages)
}

func TestCall_ReturnsPassagesAndProvenance(t *testing.T) {
	s := &fakeSearcher{passages: []domain.Passage{
		{Text: "p1", Metadata: map[string]string{"page": "1"}},
		{Text: "p2"},
	}}
	out, err := New(s, nil).Call(context.Background(), `{"query": "What is X?"}`)
	require.NoError(t, err)

	var res Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "What is X?", res.Query)
	assert.Equal(t, []string{"p1", "p2"}, res.Passages)
	assert.Equal(t, []map[string]string{{"page": "1"}, {}}, res.Provenance)
	assert.Empty(t, res.Error)
	assert.Equal(t, []string{"What is X?"}, s.queries)

	payload := conversation.ParseToolPayload(out)
	assert.Equal(t, "What is X?", payload.Query)
	assert.Equal(t, []string{"p1", "p2"}, payload.Passages)
}

func TestParseQuery(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"query":"a"}`, "a"},
		{`  plain text  `, "plain text"},
		{`{"other":1}`, ""},
		{`{}`, ""},
		{`{"query":"  b  "}`, "b"},
		{`"not an object"`, `"not an object"`},
		{`{broken`, `{broken`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseQuery(tt.in))
	}
}

func TestCall_EmptyArgumentsSkipSearch(t *testing.T) {
	s := &fakeSearcher{}
	out, err := New(s, nil).Call(context.Background(), `{}`)
	require.NoError(t, err)
	assert.Empty(t, s.queries)
	assert.JSONEq(t, `{"query":"","passages":[],"provenance":[],"error":"`+EmptyQueryMessage+`"}`, out)
}
