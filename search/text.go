package search

import "strings"

// Stop words ignored when matching query terms verbatim
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "what": true, "who": true, "how": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// queryTerms returns the distinct filtered words of query in order.
func queryTerms(query string) []string {
	words := tokenizeAndFilter(query)
	seen := make(map[string]bool, len(words))
	terms := words[:0]
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			terms = append(terms, w)
		}
	}
	return terms
}

// matchedTerms returns the terms that appear as words in document.
func matchedTerms(document string, terms []string) []string {
	if len(terms) == 0 {
		return nil
	}

	docWords := tokenizeAndFilter(document)
	docWordSet := make(map[string]bool, len(docWords))
	for _, word := range docWords {
		docWordSet[word] = true
	}

	var matched []string
	for _, term := range terms {
		if docWordSet[term] {
			matched = append(matched, term)
		}
	}
	return matched
}
