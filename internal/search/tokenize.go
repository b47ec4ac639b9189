// Package search is the core of the catalog: it turns a free-text query plus
// structured filters into an ordered list of snippets, and keeps the search
// history, popularity counters and type-ahead suggestions that go with it.
//
// The pipeline for one request:
//
//	query ─► Keywords (for highlighting)
//	      └► Engine.Match ─► ids in relevance order  (skipped for empty query)
//	filters ─► Compose ─► Plan (predicate + ordering)
//	ids + Plan ─► store.FindSnippets ─► ordered snippets ─► Highlighter
//	                                                    └► Recorder (async)
package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// operatorReplacer blanks out the boolean-syntax characters a raw query may
// contain, including the "*" of a prefix query like "react*". They carry no
// meaning as words.
var operatorReplacer = strings.NewReplacer(
	"+", " ", "-", " ", "<", " ", ">", " ", "~", " ", `"`, " ", "(", " ", ")", " ", "*", " ",
)

// stopWords are dropped from highlight tokens: English and Chinese function
// words that would otherwise light up half of every description.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "were": true, "been": true,
	"的": true, "了": true, "和": true, "是": true, "在": true, "有": true,
	"不": true, "这": true, "个": true, "我": true, "你": true, "他": true,
}

// Keywords extracts the meaningful words of a raw query, in first-seen order
// and without duplicates.
//
// The query is NFKC-normalized first, so full-width forms ("（ｒｅａｃｔ）")
// behave like their ASCII equivalents. Operators are treated as spaces,
// words are lowercased, and single-rune words and stop words are dropped.
//
// Keywords(strings.Join(Keywords(q), " ")) returns Keywords(q).
func Keywords(query string) []string {
	normalized := norm.NFKC.String(query)
	normalized = operatorReplacer.Replace(normalized)

	fields := strings.Fields(normalized)
	keywords := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))

	for _, f := range fields {
		word := strings.ToLower(f)
		if utf8.RuneCountInString(word) <= 1 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
	}
	return keywords
}

// ByLengthDesc returns a copy of tokens sorted longest first (by runes),
// ties alphabetical. Highlighting in this order lets "react" win over "re".
func ByLengthDesc(tokens []string) []string {
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(sorted[i]), utf8.RuneCountInString(sorted[j])
		if li != lj {
			return li > lj
		}
		return sorted[i] < sorted[j]
	})
	return sorted
}
