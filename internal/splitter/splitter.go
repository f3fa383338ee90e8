// Package splitter cuts document text into bounded-size chunks for embedding.
// Splitting is a pure function of (text, chunkSize) so re-ingesting the same
// file always produces the same chunk sequence.
package splitter

import (
	"strings"
)

// DefaultChunkSize is the character budget used when the caller passes <= 0.
const DefaultChunkSize = 800

// minBoundaryRatio is how far into the budget a soft boundary must sit before
// it is preferred over a hard cut. Cutting earlier would produce tiny chunks
// whenever a paragraph break appears near the start of the window.
const minBoundaryRatio = 0.5

// Split cuts text into ordered chunks of at most chunkSize characters each.
// Chunk boundaries prefer, in order: paragraph breaks, sentence ends, any
// whitespace, then a hard character cut. Empty or whitespace-only input
// yields no chunks.
func Split(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []string

	pos := 0
	for pos < len(runes) {
		// Skip leading whitespace left over from the previous boundary.
		for pos < len(runes) && isSpace(runes[pos]) {
			pos++
		}
		if pos >= len(runes) {
			break
		}

		end := pos + chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = boundary(runes, pos, end)
		}

		chunk := strings.TrimRight(string(runes[pos:end]), " \t\n\r")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		pos = end
	}

	return chunks
}

// boundary picks the best cut point in runes[start:limit], scanning backwards
// from the budget limit. Soft boundaries closer than minBoundaryRatio of the
// budget to the chunk start are ignored.
func boundary(runes []rune, start, limit int) int {
	min := start + int(float64(limit-start)*minBoundaryRatio)

	// Paragraph break: blank line.
	for i := limit - 1; i > min; i-- {
		if runes[i] == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			return i + 2
		}
	}

	// Sentence end: terminal punctuation followed by whitespace.
	for i := limit - 1; i > min; i-- {
		if isSentenceEnd(runes[i]) && i+1 < len(runes) && isSpace(runes[i+1]) {
			return i + 1
		}
	}

	// Any whitespace.
	for i := limit - 1; i > min; i-- {
		if isSpace(runes[i]) {
			return i + 1
		}
	}

	// Hard cut.
	return limit
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
