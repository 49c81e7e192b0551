// Package agent runs one conversational turn: it calls the model with the
// trimmed transcript, executes requested tool calls and persists every step.
package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/tools"
	"go.uber.org/zap"

	"papermind/internal/conversation"
	"papermind/internal/llm"
	"papermind/internal/logger"
)

// ErrTooManyRounds is returned when the model keeps requesting tools past
// the round limit.
var ErrTooManyRounds = errors.New("agent: too many tool rounds")

// DefaultMaxRounds bounds model calls per turn.
const DefaultMaxRounds = 6

// Tool is a langchaingo tool that also describes its arguments.
type Tool interface {
	tools.Tool
	Parameters() map[string]any
}

// Transcript is the conversation state the agent reads and appends to.
type Transcript interface {
	Append(ctx context.Context, threadID string, msgs ...conversation.Message) error
	List(ctx context.Context, threadID string) ([]conversation.Message, error)
}

// DocumentNamer reports the active document, if any.
type DocumentNamer interface {
	CurrentName() (string, bool)
}

// EventKind classifies agent events.
type EventKind int

const (
	// EventToken carries a streamed text delta.
	EventToken EventKind = iota
	// EventToolCall announces a tool call whose arguments may still be partial.
	EventToolCall
	// EventToolResult carries a finished tool invocation.
	EventToolResult
	// EventFinal carries the complete answer.
	EventFinal
)

// Event is emitted to the sink while a turn runs.
type Event struct {
	Kind    EventKind
	Text    string
	Call    conversation.ToolCall
	Payload conversation.ToolPayload
}

// Sink receives events. It is called synchronously from Run.
type Sink func(Event)

// Turn summarizes a finished turn.
type Turn struct {
	Answer    string
	ToolCalls int
	Rounds    int
}

// Options configures an Agent.
type Options struct {
	Model      llm.Model
	Transcript Transcript
	Documents  DocumentNamer
	Tools      []Tool
	MaxHistory int
	MaxRounds  int
	Logger     *zap.Logger
}

// Agent is safe to reuse across turns but runs one turn at a time per thread.
type Agent struct {
	model      llm.Model
	transcript Transcript
	documents  DocumentNamer
	registry   map[string]tools.Tool
	specs      []llm.ToolSpec
	maxHistory int
	maxRounds  int
	log        *zap.Logger
}

func New(opts Options) *Agent {
	a := &Agent{
		model:      opts.Model,
		transcript: opts.Transcript,
		documents:  opts.Documents,
		registry:   make(map[string]tools.Tool, len(opts.Tools)),
		maxHistory: opts.MaxHistory,
		maxRounds:  opts.MaxRounds,
		log:        logger.OrNop(opts.Logger),
	}
	if a.maxHistory <= 0 {
		a.maxHistory = conversation.DefaultMaxHistory
	}
	if a.maxRounds <= 0 {
		a.maxRounds = DefaultMaxRounds
	}
	for _, t := range opts.Tools {
		a.registry[t.Name()] = t
		a.specs = append(a.specs, llm.ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	return a
}

type state int

const (
	awaitingModel state = iota
	toolPending
)

// Run persists userText, then alternates between calling the model and
// running the tools it asks for until the model answers with plain text.
func (a *Agent) Run(ctx context.Context, threadID, userText string, sink Sink) (*Turn, error) {
	if sink == nil {
		sink = func(Event) {}
	}
	if err := a.transcript.Append(ctx, threadID, conversation.UserMessage{Text: userText}); err != nil {
		return nil, errors.Wrap(err, "persist user message")
	}

	turn := &Turn{}
	st := awaitingModel
	var (
		text  string
		calls []conversation.ToolCall
	)
	for {
		switch st {
		case awaitingModel:
			if turn.Rounds == a.maxRounds {
				a.log.Warn("round limit reached", zap.String("thread", threadID), zap.Int("rounds", turn.Rounds))
				return turn, ErrTooManyRounds
			}
			turn.Rounds++
			var err error
			text, calls, err = a.callModel(ctx, threadID, sink)
			if err != nil {
				return turn, err
			}
			if len(calls) > 0 {
				st = toolPending
				continue
			}
			if err := a.transcript.Append(ctx, threadID, conversation.AgentText{Text: text}); err != nil {
				return turn, errors.Wrap(err, "persist answer")
			}
			turn.Answer = text
			sink(Event{Kind: EventFinal, Text: text})
			return turn, nil

		case toolPending:
			for i, call := range calls {
				if call.ID == "" {
					call.ID = "call_" + uuid.NewString()
				}
				prose := ""
				if i == 0 {
					prose = text
				}
				content := a.invoke(ctx, call)
				req := conversation.AgentToolRequest{Text: prose, Call: call}
				res := conversation.ToolResult{CallID: call.ID, Name: call.Name, Content: content}
				if err := a.transcript.Append(ctx, threadID, req, res); err != nil {
					return turn, errors.Wrap(err, "persist tool exchange")
				}
				turn.ToolCalls++
				sink(Event{Kind: EventToolResult, Call: call, Payload: conversation.ParseToolPayload(content)})
			}
			st = awaitingModel
		}
	}
}

func (a *Agent) callModel(ctx context.Context, threadID string, sink Sink) (string, []conversation.ToolCall, error) {
	history, err := a.transcript.List(ctx, threadID)
	if err != nil {
		return "", nil, errors.Wrap(err, "load history")
	}
	doc := ""
	if a.documents != nil {
		doc, _ = a.documents.CurrentName()
	}
	req := llm.Request{
		Instruction: Instruction(doc),
		Messages:    conversation.Trim(history, a.maxHistory),
		Tools:       a.specs,
	}

	stream, err := a.model.Stream(ctx, req)
	if err != nil {
		return "", nil, errors.Wrap(err, "start model stream")
	}
	defer stream.Close()

	var (
		text strings.Builder
		acc  llm.ToolCallAccumulator
	)
	for stream.Next() {
		f := stream.Fragment()
		if f.Text != "" {
			text.WriteString(f.Text)
			sink(Event{Kind: EventToken, Text: f.Text})
		}
		if f.ToolCall != nil {
			sink(Event{Kind: EventToolCall, Call: acc.Add(*f.ToolCall)})
		}
	}
	if err := stream.Err(); err != nil {
		return "", nil, errors.Wrap(err, "model stream")
	}
	return text.String(), acc.Calls(), nil
}

func (a *Agent) invoke(ctx context.Context, call conversation.ToolCall) string {
	t, ok := a.registry[call.Name]
	if !ok {
		a.log.Warn("unknown tool", zap.String("tool", call.Name))
		return errorPayload("Unknown tool: " + call.Name)
	}
	a.log.Info("tool call", zap.String("tool", call.Name), zap.String("input", call.Arguments))
	out, err := t.Call(ctx, call.Arguments)
	if err != nil {
		a.log.Warn("tool failed", zap.String("tool", call.Name), zap.Error(err))
		return errorPayload(err.Error())
	}
	return out
}

func errorPayload(msg string) string {
	data, _ := json.Marshal(map[string]any{"passages": []string{}, "error": msg})
	return string(data)
}
