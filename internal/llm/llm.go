// Package llm defines the streaming chat-model boundary the agent talks to.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"papermind/internal/conversation"
)

// ToolSpec describes a callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one model invocation. Instruction is sent as the system
// message ahead of Messages.
type Request struct {
	Instruction string
	Messages    []conversation.Message
	Tools       []ToolSpec
}

// ToolCallDelta is a streamed piece of a tool call. A delta carrying a Name
// starts a new call; later deltas extend its arguments.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	ArgsDelta string
}

// Fragment is one streamed element: a text delta or a tool-call delta.
type Fragment struct {
	Text     string
	ToolCall *ToolCallDelta
}

// Stream is a pull iterator over the fragments of one model response. It is
// not restartable. Close must be called once the caller is done with it.
type Stream interface {
	Next() bool
	Fragment() Fragment
	Err() error
	Close() error
}

// Model is a chat model with tool calling.
type Model interface {
	Stream(ctx context.Context, req Request) (Stream, error)
	// Complete runs a single-shot prompt without tools or history.
	Complete(ctx context.Context, prompt string) (string, error)
}

// ToolCallAccumulator rebuilds complete tool calls from streamed deltas.
type ToolCallAccumulator struct {
	calls []conversation.ToolCall
	args  []string
}

// Add folds d into the pending calls and returns the call it belongs to with
// the arguments received so far.
func (a *ToolCallAccumulator) Add(d ToolCallDelta) conversation.ToolCall {
	if d.Name != "" || len(a.calls) == 0 {
		a.calls = append(a.calls, conversation.ToolCall{ID: d.ID, Name: d.Name})
		a.args = append(a.args, "")
	}
	i := len(a.calls) - 1
	if a.calls[i].ID == "" && d.ID != "" {
		a.calls[i].ID = d.ID
	}
	a.args[i] += d.ArgsDelta
	c := a.calls[i]
	c.Arguments = a.args[i]
	return c
}

// Len returns the number of calls seen so far.
func (a *ToolCallAccumulator) Len() int { return len(a.calls) }

// Calls returns the finished calls. Arguments that are empty become "{}";
// arguments that are not valid JSON are re-encoded as {"query": <raw>} so
// downstream payloads stay well formed.
func (a *ToolCallAccumulator) Calls() []conversation.ToolCall {
	out := make([]conversation.ToolCall, len(a.calls))
	for i, c := range a.calls {
		c.Arguments = normalizeArgs(a.args[i])
		out[i] = c
	}
	return out
}

func normalizeArgs(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "{}"
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return raw
	}
	data, _ := json.Marshal(map[string]string{"query": raw})
	return string(data)
}

// SliceStream replays a fixed list of fragments.
type SliceStream struct {
	frags []Fragment
	pos   int
	err   error
}

// NewSliceStream returns a stream over frags that ends with err.
func NewSliceStream(frags []Fragment, err error) *SliceStream {
	return &SliceStream{frags: frags, pos: -1, err: err}
}

func (s *SliceStream) Next() bool {
	if s.pos+1 >= len(s.frags) {
		s.pos = len(s.frags)
		return false
	}
	s.pos++
	return true
}

func (s *SliceStream) Fragment() Fragment { return s.frags[s.pos] }

func (s *SliceStream) Err() error {
	if s.pos >= len(s.frags) {
		return s.err
	}
	return nil
}

func (s *SliceStream) Close() error { return nil }
