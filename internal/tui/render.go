package tui

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"papermind/internal/conversation"
	"papermind/internal/session"
	"papermind/internal/store"
)

// maxPassageRunes bounds each passage shown under a tool call.
const maxPassageRunes = 800

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	selectedStyle  = lipgloss.NewStyle().Reverse(true)
	currentStyle   = lipgloss.NewStyle().Bold(true)

	assistantLabel = assistantStyle.Render("Assistant:")

	unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	sentenceRe    = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)
)

func renderEntries(entries []conversation.UIEntry, r *glamour.TermRenderer) string {
	if len(entries) == 0 {
		return dimStyle.Render("No messages yet.")
	}
	var b strings.Builder
	for _, e := range entries {
		switch e.Role {
		case conversation.RoleUser:
			b.WriteString(userStyle.Render("You:") + "\n" + e.Content + "\n\n")
		case conversation.RoleAssistant:
			b.WriteString(assistantLabel + "\n" + renderMarkdown(r, e.Content) + "\n")
		case conversation.RoleToolCall:
			b.WriteString(renderToolEntry(e) + "\n")
		}
	}
	return b.String()
}

func renderMarkdown(r *glamour.TermRenderer, md string) string {
	if r == nil {
		return md + "\n"
	}
	out, err := r.Render(md)
	if err != nil {
		return md + "\n"
	}
	return out
}

// renderToolEntry shows a tool call's query, its passage count and each
// passage with the sentence closest to the query highlighted.
func renderToolEntry(e conversation.UIEntry) string {
	var b strings.Builder
	b.WriteString(toolStyle.Render(fmt.Sprintf("🔍 RAG Tool: %q (%d passages)", e.Query, len(e.Passages))))
	b.WriteString("\n")
	for i, p := range e.Passages {
		b.WriteString(dimStyle.Render(fmt.Sprintf("[%d] ", i+1)))
		b.WriteString(highlightBestSentence(truncatePassage(p, maxPassageRunes), e.Query))
		b.WriteString("\n")
	}
	return b.String()
}

func truncatePassage(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func renderThreadList(cats []session.Category, flat []*store.Thread, cursor int, currentID string, focused bool) string {
	if len(flat) == 0 {
		return dimStyle.Render("No threads")
	}
	pos := make(map[string]int, len(flat))
	for i, th := range flat {
		pos[th.ID] = i
	}
	var b strings.Builder
	for _, c := range cats {
		b.WriteString(dimStyle.Render(c.Label) + "\n")
		for _, th := range c.Threads {
			i := pos[th.ID]
			line := fmt.Sprintf("%d. %s", i+1, truncatePassage(th.Name, sidebarWidth-6))
			switch {
			case focused && i == cursor:
				line = selectedStyle.Render(line)
			case th.ID == currentID:
				line = currentStyle.Render(line)
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	var sentences []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestScore > 0 {
		sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
