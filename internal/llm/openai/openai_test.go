package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papermind/internal/conversation"
	"papermind/internal/llm"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)
	return c
}

func writeSSE(w http.ResponseWriter, chunks ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, c := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", c)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func drain(t *testing.T, s llm.Stream) []llm.Fragment {
	t.Helper()
	defer s.Close()
	var out []llm.Fragment
	for s.Next() {
		out = append(out, s.Fragment())
	}
	require.NoError(t, s.Err())
	return out
}

func TestStream_TextDeltas(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo!"}}]}`,
		)
	})
	s, err := c.Stream(context.Background(), llm.Request{Messages: []conversation.Message{conversation.UserMessage{Text: "Hi"}}})
	require.NoError(t, err)

	var text strings.Builder
	for _, f := range drain(t, s) {
		text.WriteString(f.Text)
	}
	assert.Equal(t, "Hello!", text.String())
}

func TestStream_ToolCallDeltas(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"rag_tool","arguments":""}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"query\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"What is X?\"}"}}]}}]}`,
		)
	})
	s, err := c.Stream(context.Background(), llm.Request{})
	require.NoError(t, err)

	var acc llm.ToolCallAccumulator
	for _, f := range drain(t, s) {
		require.NotNil(t, f.ToolCall)
		acc.Add(*f.ToolCall)
	}
	assert.Equal(t, []conversation.ToolCall{
		{ID: "call_1", Name: "rag_tool", Arguments: `{"query":"What is X?"}`},
	}, acc.Calls())
}

func TestStream_RequestShape(t *testing.T) {
	var body struct {
		Model    string           `json:"model"`
		Stream   bool             `json:"stream"`
		Messages []map[string]any `json:"messages"`
		Tools    []map[string]any `json:"tools"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeSSE(w)
	})
	req := llm.Request{
		Instruction: "be helpful",
		Messages: []conversation.Message{
			conversation.UserMessage{Text: "What is X?"},
			conversation.AgentToolRequest{Call: conversation.ToolCall{ID: "c1", Name: "rag_tool", Arguments: `{"query":"X"}`}},
			conversation.ToolResult{CallID: "c1", Name: "rag_tool", Content: `{"passages":[]}`},
			conversation.AgentText{Text: "X is unknown."},
		},
		Tools: []llm.ToolSpec{{Name: "rag_tool", Description: "search"}},
	}
	s, err := c.Stream(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, drain(t, s))

	assert.Equal(t, "test-model", body.Model)
	assert.True(t, body.Stream)
	require.Len(t, body.Messages, 5)
	roles := []string{}
	for _, m := range body.Messages {
		roles = append(roles, m["role"].(string))
	}
	assert.Equal(t, []string{"system", "user", "assistant", "tool", "assistant"}, roles)
	assert.Nil(t, body.Messages[2]["content"])
	assert.Equal(t, "c1", body.Messages[3]["tool_call_id"])
	require.Len(t, body.Tools, 1)
	assert.Equal(t, "function", body.Tools[0]["type"])
}

func TestStream_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})
	_, err := c.Stream(context.Background(), llm.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestStream_ErrorChunk(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, `{"error":{"message":"overloaded"}}`)
	})
	s, err := c.Stream(context.Background(), llm.Request{})
	require.NoError(t, err)
	defer s.Close()
	assert.False(t, s.Next())
	assert.ErrorContains(t, s.Err(), "overloaded")
}

func TestComplete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Quantum Basics"}}]}`))
	})
	got, err := c.Complete(context.Background(), "title?")
	require.NoError(t, err)
	assert.Equal(t, "Quantum Basics", got)
}

func TestNew_RequiresKeyWhenEnvNamed(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "")
	_, err := New(Config{APIKeyEnv: "TEST_LLM_KEY", Model: "m"})
	assert.Error(t, err)
}
