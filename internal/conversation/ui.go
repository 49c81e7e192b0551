package conversation

import (
	"encoding/json"
	"strings"
)

// Role is the chat-view taxonomy a transcript is rendered with.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleToolCall  Role = "tool_call"
)

// UIEntry is one rendered row of a conversation. Query and Passages are only
// set for RoleToolCall entries.
type UIEntry struct {
	Role     Role
	Content  string
	Query    string
	Passages []string
}

// ToolPayload is the part of a retrieval payload the chat view needs.
type ToolPayload struct {
	Query    string   `json:"query"`
	Passages []string `json:"passages"`
}

// ParseToolPayload decodes a tool result body. A body that is not a JSON
// object of the expected shape becomes a single opaque passage.
func ParseToolPayload(content string) ToolPayload {
	var p ToolPayload
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return ToolPayload{Passages: []string{content}}
	}
	if p.Passages == nil {
		p.Passages = []string{}
	}
	return p
}

// ToUI translates a transcript into chat-view entries. The query shown for a
// tool result comes from the preceding tool request's arguments when present,
// and from the result payload otherwise.
func ToUI(msgs []Message) []UIEntry {
	out := make([]UIEntry, 0, len(msgs))
	lastQuery := ""
	for _, m := range msgs {
		switch v := m.(type) {
		case UserMessage:
			if v.Text != "" {
				out = append(out, UIEntry{Role: RoleUser, Content: v.Text})
			}
		case AgentText:
			lastQuery = ""
			if strings.TrimSpace(v.Text) != "" {
				out = append(out, UIEntry{Role: RoleAssistant, Content: v.Text})
			}
		case AgentToolRequest:
			lastQuery = v.Call.Query()
			if strings.TrimSpace(v.Text) != "" {
				out = append(out, UIEntry{Role: RoleAssistant, Content: v.Text})
			}
		case ToolResult:
			payload := ParseToolPayload(v.Content)
			query := lastQuery
			if query == "" {
				query = payload.Query
			}
			out = append(out, UIEntry{Role: RoleToolCall, Query: query, Passages: payload.Passages})
		}
	}
	return out
}

// CountVisible returns the number of user and assistant entries.
func CountVisible(entries []UIEntry) int {
	n := 0
	for _, e := range entries {
		if e.Role != RoleToolCall {
			n++
		}
	}
	return n
}
