package openai

import (
	"strings"
	"unicode/utf8"
)

// charsPerToken approximates token counts for truncation.
const charsPerToken = 4

// truncateDocument keeps roughly the first maxTokens tokens of document,
// cutting at a rune boundary. maxTokens <= 0 means no limit.
func truncateDocument(document string, maxTokens int) string {
	if maxTokens <= 0 {
		return document
	}
	limit := maxTokens * charsPerToken
	if len(document) <= limit {
		return document
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(document[cut]) {
		cut--
	}
	return document[:cut]
}

// stripCodeFences removes markdown code fences some models wrap JSON in.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// collapseWhitespace joins all whitespace runs into single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isLetter returns true if the rune is an ASCII letter.
func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
