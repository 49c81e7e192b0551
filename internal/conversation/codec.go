package conversation

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Kind tags a stored message with its variant.
type Kind string

const (
	KindUser             Kind = "user"
	KindAgentText        Kind = "agent_text"
	KindAgentToolRequest Kind = "agent_tool_request"
	KindToolResult       Kind = "tool_result"
)

type envelope struct {
	Text    string    `json:"text,omitempty"`
	Call    *ToolCall `json:"call,omitempty"`
	CallID  string    `json:"call_id,omitempty"`
	Name    string    `json:"name,omitempty"`
	Content string    `json:"content,omitempty"`
}

// Encode returns the kind tag and JSON payload used to persist m.
func Encode(m Message) (Kind, []byte, error) {
	var (
		kind Kind
		env  envelope
	)
	switch v := m.(type) {
	case UserMessage:
		kind, env.Text = KindUser, v.Text
	case AgentText:
		kind, env.Text = KindAgentText, v.Text
	case AgentToolRequest:
		call := v.Call
		kind, env.Text, env.Call = KindAgentToolRequest, v.Text, &call
	case ToolResult:
		kind, env.CallID, env.Name, env.Content = KindToolResult, v.CallID, v.Name, v.Content
	default:
		return "", nil, errors.Errorf("conversation: unknown message type %T", m)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", nil, errors.Wrap(err, "conversation: encode message")
	}
	return kind, data, nil
}

// Decode rebuilds a message from its kind tag and payload.
func Decode(kind Kind, payload []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Wrapf(err, "conversation: decode %s message", kind)
	}
	switch kind {
	case KindUser:
		return UserMessage{Text: env.Text}, nil
	case KindAgentText:
		return AgentText{Text: env.Text}, nil
	case KindAgentToolRequest:
		if env.Call == nil {
			return nil, errors.New("conversation: tool request without call")
		}
		return AgentToolRequest{Text: env.Text, Call: *env.Call}, nil
	case KindToolResult:
		return ToolResult{CallID: env.CallID, Name: env.Name, Content: env.Content}, nil
	default:
		return nil, errors.Errorf("conversation: unknown message kind %q", kind)
	}
}
