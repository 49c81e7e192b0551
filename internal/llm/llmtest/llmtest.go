// Package llmtest provides a scripted llm.Model for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"papermind/internal/llm"
)

// Model replays one scripted response per Stream call and records every
// request it receives.
type Model struct {
	mu        sync.Mutex
	responses [][]llm.Fragment
	requests  []llm.Request

	// Title is returned by Complete unless TitleErr is set.
	Title    string
	TitleErr error
	Prompts  []string
}

// New returns a model that answers successive Stream calls with responses.
func New(responses ...[]llm.Fragment) *Model {
	return &Model{responses: responses}
}

// Text is a response consisting of one text fragment per piece.
func Text(pieces ...string) []llm.Fragment {
	out := make([]llm.Fragment, 0, len(pieces))
	for _, p := range pieces {
		out = append(out, llm.Fragment{Text: p})
	}
	return out
}

// ToolCall is a response requesting one call, with its arguments split in
// two deltas the way providers stream them.
func ToolCall(id, name, args string) []llm.Fragment {
	half := len(args) / 2
	return []llm.Fragment{
		{ToolCall: &llm.ToolCallDelta{ID: id, Name: name, ArgsDelta: args[:half]}},
		{ToolCall: &llm.ToolCallDelta{ArgsDelta: args[half:]}},
	}
}

// Enqueue appends more scripted responses.
func (m *Model) Enqueue(responses ...[]llm.Fragment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

func (m *Model) Stream(_ context.Context, req llm.Request) (llm.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		return nil, errors.New("llmtest: no scripted response left")
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return llm.NewSliceStream(next, nil), nil
}

func (m *Model) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	if m.TitleErr != nil {
		return "", m.TitleErr
	}
	return m.Title, nil
}

// Requests returns every request Stream received.
func (m *Model) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}
