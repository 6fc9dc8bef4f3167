package ingest

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultChunkSize    = 500 // characters
	defaultChunkOverlap = 50  // characters
)

// chunkText splits content into overlapping chunks of at most maxChars
// characters. Chunk boundaries prefer a space, newline, or sentence end
// within the last 10% of the window so words are not cut mid-way.
func chunkText(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	content = strings.TrimSpace(content)
	contentLen := len(content)
	if contentLen == 0 {
		return nil
	}
	if contentLen <= maxChars {
		return []string{content}
	}

	var chunks []string
	start := 0
	for start < contentLen {
		end := min(start+maxChars, contentLen)
		// Never cut inside a multi-byte rune.
		end = runeStart(content, end)
		if end <= start {
			_, n := utf8.DecodeRuneInString(content[start:])
			end = start + n
		}

		// Look for a clean break point within the last 10% of the chunk.
		// These are ASCII bytes, which never occur inside a multi-byte rune.
		if end < contentLen {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if content[i] == ' ' || content[i] == '\n' || content[i] == '.' {
					end = i + 1
					break
				}
			}
		}

		chunk := strings.TrimSpace(content[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := runeStart(content, start+maxChars-overlapChars)
		if next <= start {
			_, n := utf8.DecodeRuneInString(content[start:])
			next = start + n
		}
		start = next
		if start >= contentLen {
			break
		}
	}

	return chunks
}

// runeStart moves i back to the nearest UTF-8 rune boundary in s.
func runeStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
