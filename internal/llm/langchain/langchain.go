// Package langchain adapts any langchaingo llms.Model to the llm.Model
// boundary.
package langchain

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"papermind/internal/conversation"
	"papermind/internal/llm"
)

// Adapter wraps a langchaingo model.
type Adapter struct {
	model       llms.Model
	temperature float64
}

func New(model llms.Model, temperature float64) *Adapter {
	return &Adapter{model: model, temperature: temperature}
}

// NewOpenAI builds an adapter over langchaingo's OpenAI client.
func NewOpenAI(baseURL, token, model string, temperature float64) (*Adapter, error) {
	opts := []openai.Option{openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if token != "" {
		opts = append(opts, openai.WithToken(token))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "langchain openai")
	}
	return New(m, temperature), nil
}

// NewOllama builds an adapter over langchaingo's Ollama client.
func NewOllama(serverURL, model string, temperature float64) (*Adapter, error) {
	m, err := ollama.New(ollama.WithServerURL(serverURL), ollama.WithModel(model))
	if err != nil {
		return nil, errors.Wrap(err, "langchain ollama")
	}
	return New(m, temperature), nil
}

func toMessages(req llm.Request) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.Instruction != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, req.Instruction))
	}
	for _, m := range req.Messages {
		switch v := m.(type) {
		case conversation.UserMessage:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, v.Text))
		case conversation.AgentText:
			out = append(out, llms.TextParts(llms.ChatMessageTypeAI, v.Text))
		case conversation.AgentToolRequest:
			var parts []llms.ContentPart
			if v.Text != "" {
				parts = append(parts, llms.TextContent{Text: v.Text})
			}
			parts = append(parts, llms.ToolCall{
				ID:   v.Call.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      v.Call.Name,
					Arguments: v.Call.Arguments,
				},
			})
			out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		case conversation.ToolResult:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: v.CallID,
					Name:       v.Name,
					Content:    v.Content,
				}},
			})
		}
	}
	return out
}

func toTools(specs []llm.ToolSpec) []llms.Tool {
	out := make([]llms.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

// Stream runs GenerateContent in a goroutine, forwarding streamed text as
// it arrives. Tool calls are emitted from the final response.
func (a *Adapter) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &chanStream{ch: make(chan llm.Fragment, 16), cancel: cancel}

	send := func(f llm.Fragment) error {
		select {
		case s.ch <- f:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	opts := []llms.CallOption{llms.WithTemperature(a.temperature)}
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toTools(req.Tools)))
	}
	streamed := false
	opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 || isToolCallChunk(chunk) {
			return nil
		}
		streamed = true
		return send(llm.Fragment{Text: string(chunk)})
	}))

	go func() {
		defer close(s.ch)
		resp, err := a.model.GenerateContent(ctx, toMessages(req), opts...)
		if err != nil {
			s.err = errors.Wrap(err, "generate content")
			return
		}
		if len(resp.Choices) == 0 {
			return
		}
		choice := resp.Choices[0]
		if !streamed && choice.Content != "" {
			if err := send(llm.Fragment{Text: choice.Content}); err != nil {
				s.err = err
				return
			}
		}
		for i, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			d := &llm.ToolCallDelta{Index: i, ID: tc.ID, Name: tc.FunctionCall.Name, ArgsDelta: tc.FunctionCall.Arguments}
			if err := send(llm.Fragment{ToolCall: d}); err != nil {
				s.err = err
				return
			}
		}
	}()
	return s, nil
}

// isToolCallChunk reports whether a streamed chunk is the JSON array of
// tool-call deltas some langchaingo providers forward to the streaming func.
func isToolCallChunk(chunk []byte) bool {
	if chunk[0] != '[' {
		return false
	}
	var calls []map[string]any
	if err := json.Unmarshal(chunk, &calls); err != nil || len(calls) == 0 {
		return false
	}
	_, ok := calls[0]["function"]
	return ok
}

// Complete runs a single-shot prompt.
func (a *Adapter) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, a.model, prompt, llms.WithTemperature(a.temperature))
	if err != nil {
		return "", errors.Wrap(err, "generate from prompt")
	}
	return out, nil
}

type chanStream struct {
	ch     chan llm.Fragment
	cur    llm.Fragment
	err    error
	cancel context.CancelFunc
}

func (s *chanStream) Next() bool {
	f, ok := <-s.ch
	if !ok {
		return false
	}
	s.cur = f
	return true
}

func (s *chanStream) Fragment() llm.Fragment { return s.cur }

// Err is only meaningful once Next has returned false.
func (s *chanStream) Err() error { return s.err }

func (s *chanStream) Close() error {
	s.cancel()
	for range s.ch {
	}
	return nil
}
