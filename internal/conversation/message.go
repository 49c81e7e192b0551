// Package conversation models chat transcripts: the closed set of message
// variants, their storage encoding, history trimming, and the translation into
// the roles the chat view renders.
package conversation

import (
	"encoding/json"
	"strings"
)

// Message is one entry of a transcript. The set of implementations is closed:
// UserMessage, AgentText, AgentToolRequest and ToolResult.
type Message interface {
	isMessage()
}

// UserMessage is text typed by the user.
type UserMessage struct {
	Text string
}

// AgentText is a model answer addressed to the user.
type AgentText struct {
	Text string
}

// ToolCall is a single tool invocation requested by the model. Arguments holds
// the raw JSON payload exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Query returns the "query" argument of the call, or "" when the arguments are
// not a JSON object carrying one.
func (c ToolCall) Query() string {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(c.Arguments)), &args); err != nil {
		return ""
	}
	return args.Query
}

// AgentToolRequest is a model turn that asks for a tool invocation. Text holds
// any prose the model emitted alongside the call.
type AgentToolRequest struct {
	Text string
	Call ToolCall
}

// ToolResult is the output of a tool invocation, keyed to the call that
// produced it. Content is the serialized tool payload.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
}

func (UserMessage) isMessage()      {}
func (AgentText) isMessage()        {}
func (AgentToolRequest) isMessage() {}
func (ToolResult) isMessage()       {}

// Pairs reports whether res answers req. Results without a call id are
// accepted for requests without one.
func Pairs(req AgentToolRequest, res ToolResult) bool {
	if req.Call.ID == "" || res.CallID == "" {
		return true
	}
	return req.Call.ID == res.CallID
}
