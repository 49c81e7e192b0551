package conversation

// DefaultMaxHistory covers roughly two full tool-use exchanges
// (user, tool request, tool result, answer).
const DefaultMaxHistory = 8

// Trim returns at most maxLen trailing messages of transcript without leaving
// half of a tool request/result pair at the head. Transcripts that already fit
// are returned unchanged. The result shares transcript's backing array.
func Trim(transcript []Message, maxLen int) []Message {
	if len(transcript) <= maxLen {
		return transcript
	}
	if maxLen <= 0 {
		return []Message{}
	}
	trimmed := transcript[len(transcript)-maxLen:]
	for len(trimmed) > 0 && danglingHead(trimmed) {
		trimmed = trimmed[1:]
	}
	return trimmed
}

// danglingHead reports whether msgs[0] is a tool result whose request was cut,
// or a tool request whose result is not the very next entry.
func danglingHead(msgs []Message) bool {
	switch head := msgs[0].(type) {
	case ToolResult:
		return true
	case AgentToolRequest:
		if len(msgs) < 2 {
			return true
		}
		res, ok := msgs[1].(ToolResult)
		return !ok || !Pairs(head, res)
	case UserMessage, AgentText:
		return false
	}
	return false
}
