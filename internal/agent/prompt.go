package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Instruction returns the system prompt for a conversation about documentName,
// or the general-assistant prompt when it is empty.
func Instruction(documentName string) string {
	if documentName == "" {
		return "You are a helpful general assistant. No document has been uploaded. " +
			"Answer general questions naturally and helpfully. " +
			"If the user asks about a specific document, suggest they upload one with the /upload command."
	}
	return fmt.Sprintf("You are a helpful document assistant. The user has uploaded: **%s**.\n\n"+
		"For greetings and casual messages: respond naturally and warmly.\n"+
		"For factual or conceptual questions: use the rag_tool to retrieve context, "+
		"then answer ONLY based on the retrieved content.\n"+
		"If the context is not relevant, say: \"I don't have that information in %s.\"\n\n"+
		"Always be friendly and cite the document when answering factual questions.",
		documentName, documentName)
}

const (
	titleInputRunes = 100
	titleMaxRunes   = 50
	fallbackWords   = 5
)

// GenerateTitle asks the model for a short thread title.
func (a *Agent) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	prompt := fmt.Sprintf("Generate a short, concise title (max 5 words) for a conversation "+
		"that starts with: \"%s\"\nRespond with ONLY the title, nothing else.",
		truncateRunes(firstMessage, titleInputRunes))
	out, err := a.model.Complete(ctx, prompt)
	if err != nil {
		return "", errors.Wrap(err, "generate title")
	}
	title := strings.Trim(strings.Trim(strings.TrimSpace(out), `"`), "'")
	title = strings.TrimSpace(truncateRunes(title, titleMaxRunes))
	if title == "" {
		return "", errors.New("generate title: empty answer")
	}
	return title, nil
}

// FallbackTitle names a thread after the first five words of its first
// message.
func FallbackTitle(firstMessage string) string {
	words := strings.Fields(firstMessage)
	if len(words) <= fallbackWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:fallbackWords], " ") + "..."
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
