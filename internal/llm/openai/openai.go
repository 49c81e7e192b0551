// Package openai is a streaming chat-completions client for OpenAI-compatible
// endpoints (OpenAI, OpenRouter, Ollama's /v1, vLLM).
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"papermind/internal/conversation"
	"papermind/internal/llm"
)

// Client implements llm.Model over HTTP.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

// Config configures the client. An unset or empty APIKeyEnv sends no
// Authorization header, which local servers accept.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

func New(cfg Config) (*Client, error) {
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, errors.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: model is required")
	}
	t := cfg.Timeout
	if t == 0 {
		t = 120 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      key,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: t},
	}, nil
}

type wireFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type wireToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function wireFunction `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

func text(s string) *string { return &s }

func buildToolDef(t llm.ToolSpec) map[string]any {
	params := t.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  params,
		},
	}
}

func toWire(req llm.Request) []wireMessage {
	msgs := make([]wireMessage, 0, len(req.Messages)+1)
	if req.Instruction != "" {
		msgs = append(msgs, wireMessage{Role: "system", Content: text(req.Instruction)})
	}
	for _, m := range req.Messages {
		switch v := m.(type) {
		case conversation.UserMessage:
			msgs = append(msgs, wireMessage{Role: "user", Content: text(v.Text)})
		case conversation.AgentText:
			msgs = append(msgs, wireMessage{Role: "assistant", Content: text(v.Text)})
		case conversation.AgentToolRequest:
			wm := wireMessage{Role: "assistant", ToolCalls: []wireToolCall{{
				ID:       v.Call.ID,
				Type:     "function",
				Function: wireFunction{Name: v.Call.Name, Arguments: v.Call.Arguments},
			}}}
			if v.Text != "" {
				wm.Content = text(v.Text)
			}
			msgs = append(msgs, wm)
		case conversation.ToolResult:
			msgs = append(msgs, wireMessage{Role: "tool", ToolCallID: v.CallID, Content: text(v.Content)})
		}
	}
	return msgs
}

func (c *Client) post(ctx context.Context, body map[string]any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode chat request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "chat request")
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, errors.Errorf("chat request failed: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	return resp, nil
}

// Stream starts a streamed completion.
func (c *Client) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	body := map[string]any{
		"model":       c.model,
		"messages":    toWire(req),
		"stream":      true,
		"temperature": c.temperature,
	}
	if len(req.Tools) > 0 {
		defs := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			defs = append(defs, buildToolDef(t))
		}
		body["tools"] = defs
	}
	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{body: resp.Body, scanner: sc}, nil
}

// Complete runs a non-streamed single-turn completion.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.post(ctx, map[string]any{
		"model":       c.model,
		"messages":    []wireMessage{{Role: "user", Content: text(prompt)}},
		"temperature": c.temperature,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", errors.Wrap(err, "decode chat response")
	}
	if len(apiResp.Choices) == 0 {
		return "", errors.New("empty response from LLM")
	}
	return apiResp.Choices[0].Message.Content, nil
}

// sseStream decodes "data: {...}" lines of a chat-completions stream.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	pending []llm.Fragment
	cur     llm.Fragment
	err     error
	done    bool
}

func (s *sseStream) Next() bool {
	for len(s.pending) == 0 {
		if s.done {
			return false
		}
		if !s.scanner.Scan() {
			s.err = s.scanner.Err()
			s.done = true
			return false
		}
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			s.done = true
			continue
		}
		if err := s.decode(payload); err != nil {
			s.err = err
			s.done = true
			return false
		}
	}
	s.cur, s.pending = s.pending[0], s.pending[1:]
	return true
}

func (s *sseStream) decode(payload string) error {
	var chunk struct {
		Choices []struct {
			Delta struct {
				Content   string         `json:"content"`
				ToolCalls []wireToolCall `json:"tool_calls"`
			} `json:"delta"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return errors.Wrap(err, "decode stream chunk")
	}
	if chunk.Error != nil {
		return errors.Errorf("model error: %s", chunk.Error.Message)
	}
	for _, ch := range chunk.Choices {
		if ch.Delta.Content != "" {
			s.pending = append(s.pending, llm.Fragment{Text: ch.Delta.Content})
		}
		for _, tc := range ch.Delta.ToolCalls {
			d := &llm.ToolCallDelta{ID: tc.ID, Name: tc.Function.Name, ArgsDelta: tc.Function.Arguments}
			if tc.Index != nil {
				d.Index = *tc.Index
			}
			s.pending = append(s.pending, llm.Fragment{ToolCall: d})
		}
	}
	return nil
}

func (s *sseStream) Fragment() llm.Fragment { return s.cur }

func (s *sseStream) Err() error { return s.err }

func (s *sseStream) Close() error { return s.body.Close() }
