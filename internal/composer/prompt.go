// Package composer assembles the single prompt sent to the generation
// backend from instructions, conversation memory, and retrieved context.
package composer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/synthcerebrum/cerebro/internal/retrieval"
	"github.com/synthcerebrum/cerebro/internal/session"
)

const defaultMaxContextTokens = 4000
const defaultMemoryTurns = 6

const groundingInstructions = "Use the following context to answer the question. " +
	"If the answer is not in the context, say that you cannot answer from the provided information."

// Composer builds prompts under a token budget for injected context.
type Composer struct {
	MaxContextTokens int
	MemoryTurns      int
}

// New creates a Composer. Non-positive arguments select the defaults
// (4000 context tokens, 6 memory turns).
func New(maxContextTokens, memoryTurns int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	if memoryTurns <= 0 {
		memoryTurns = defaultMemoryTurns
	}
	return &Composer{MaxContextTokens: maxContextTokens, MemoryTurns: memoryTurns}
}

// Compose assembles the prompt. history supplies conversation memory (pass
// nil to omit); chunks supply retrieval grounding (pass nil to omit). With
// neither, the prompt is exactly the raw query.
func (c *Composer) Compose(query string, history []session.Message, chunks []retrieval.ScoredChunk) string {
	memory := c.memorySection(history)
	context := c.contextSection(chunks)

	if memory == "" && context == "" {
		return query
	}

	var sb strings.Builder
	sb.WriteString(groundingInstructions)
	sb.WriteString("\n")
	if memory != "" {
		sb.WriteString("\n[Conversation]\n")
		sb.WriteString(memory)
	}
	if context != "" {
		sb.WriteString("\n[Retrieved Context]\n")
		sb.WriteString(context)
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(query)
	sb.WriteString("\n\nAnswer: ")
	return sb.String()
}

// memorySection renders the trailing window of history, most recent
// MemoryTurns turns, oldest first.
func (c *Composer) memorySection(history []session.Message) string {
	if len(history) == 0 {
		return ""
	}
	start := len(history) - c.MemoryTurns
	if start < 0 {
		start = 0
	}

	var sb strings.Builder
	for _, m := range history[start:] {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		switch m.Role {
		case session.RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// contextSection renders retrieved chunks by descending score, dropping
// lowest-scoring chunks first when the token budget is exceeded. Incoming
// order is preserved among equal scores, so the earlier-ingested chunk wins.
func (c *Composer) contextSection(chunks []retrieval.ScoredChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	sorted := make([]retrieval.ScoredChunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	remaining := c.MaxContextTokens
	var sb strings.Builder
	for _, ch := range sorted {
		entry := formatChunk(ch)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			continue
		}
		sb.WriteString(entry)
		remaining -= tokens
	}
	return sb.String()
}

func formatChunk(ch retrieval.ScoredChunk) string {
	return fmt.Sprintf("(Score: %.2f, Source: %s)\n%s\n\n", ch.Score, ch.SourceFile, ch.Text)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
