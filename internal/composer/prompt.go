// Package composer assembles chat completion requests from therapy type,
// retrieved knowledge, and conversation history.
package composer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emothrive/emothrive/internal/llm"
	"github.com/emothrive/emothrive/internal/retrieval"
	"github.com/emothrive/emothrive/internal/session"
	"github.com/emothrive/emothrive/internal/therapy"
)

const (
	defaultMaxContextTokens = 4000
	historyWindow           = 10
)

// Composer builds prompt message lists. It is pure: the same inputs always
// produce the same messages, and no input slice is mutated.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for injected knowledge.
// If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Compose builds the full message list for one turn: a system prompt keyed to
// the therapy type and knowledge context, the recent conversation history,
// and the user's message. Voice input gets a conversational addendum in the
// system prompt and a marker prefix on the user message.
func (c *Composer) Compose(typ therapy.Type, contextBlock string, history []session.Message, userTurn string, voiceInput bool) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{
		Role:    session.RoleSystem,
		Content: systemPrompt(typ, contextBlock, voiceInput),
	})

	// Keep only the most recent exchanges so the prompt stays bounded.
	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	for _, m := range history[start:] {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Text})
	}

	userContent := userTurn
	if voiceInput {
		userContent = "[Voice input] " + userTurn
	}
	msgs = append(msgs, llm.Message{Role: session.RoleUser, Content: userContent})

	return msgs
}

// systemPrompt renders the system message for the given therapy type.
func systemPrompt(typ therapy.Type, contextBlock string, voiceInput bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an experienced AI therapist specializing in %s.", typ.Label())

	if contextBlock != "" {
		sb.WriteString("\nUse the following clinical knowledge extracted from documents to inform your responses when relevant:\n")
		sb.WriteString(contextBlock)
	}

	if voiceInput {
		sb.WriteString("\n\nVOICE INPUT MODE:\n")
		sb.WriteString("- The user is communicating through voice, so respond conversationally and naturally.\n")
		sb.WriteString("- Use shorter sentences and pronunciation-friendly language.\n")
		sb.WriteString("- Be patient with potential transcription errors or incomplete thoughts.")
	}

	sb.WriteString("\n\nRespond with therapeutic insights and techniques, always keeping the user's wellbeing in focus.")
	sb.WriteString("\nMaintain professional boundaries while being warm and supportive.")

	return sb.String()
}

// FormatContext renders retrieved chunks as a labeled knowledge block,
// dropping lowest-scoring chunks first to respect the token budget.
// Returns "" when nothing fits or chunks is empty.
func (c *Composer) FormatContext(chunks []retrieval.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}

	sorted := make([]retrieval.Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].ID < sorted[j].ID
	})

	header := "[Background Knowledge]\n"
	remaining := c.MaxContextTokens - EstimateTokens(header)

	var selected []string
	for _, ch := range sorted {
		entry := fmt.Sprintf("(Source: %s, Score: %.2f)\n%s\n\n", ch.SourceFile, ch.Score, ch.Text)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			continue
		}
		selected = append(selected, entry)
		remaining -= tokens
	}

	if len(selected) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(header)
	for _, entry := range selected {
		sb.WriteString(entry)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
