package retrieval

import "strings"

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "to": true,
	"of": true, "in": true, "for": true, "on": true, "with": true,
	"at": true, "by": true, "from": true, "as": true, "into": true,
	"near": true, "around": true, "any": true, "there": true, "about": true,
	"what": true, "where": true, "when": true, "how": true, "which": true,
	"who": true, "this": true, "that": true, "these": true, "those": true,
	"i": true, "me": true, "my": true, "it": true, "its": true,
	"and": true, "but": true, "or": true, "not": true,
}

// extractKeywords lowercases the query, strips punctuation and drops stop
// words and tokens shorter than three characters. Order is preserved and
// duplicates removed.
func extractKeywords(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	seen := make(map[string]bool, len(words))
	var keywords []string
	for _, w := range words {
		w = strings.Trim(w, "?.,!;:'\"()[]")
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}
