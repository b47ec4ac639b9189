package search

import (
	"html"
	"regexp"
	"sort"
	"strings"

	"github.com/sakif/snippet-catalog/internal/model"
)

const (
	DefaultOpenMark  = "<mark>"
	DefaultCloseMark = "</mark>"
)

// Span is a piece of text that is either a keyword match or plain text.
// Concatenating every Span's Text gives back the original string.
type Span struct {
	Text  string `json:"text"`
	Match bool   `json:"match"`
}

// Highlighter marks keyword occurrences in snippet text. It holds no
// per-request state and is safe for concurrent use; the server builds one at
// startup and hands it to the search service.
type Highlighter struct {
	open  string
	close string
}

// NewHighlighter returns a Highlighter that wraps matches in open/close.
// Empty markers fall back to <mark></mark>. The markers are written to HTML
// output as-is.
func NewHighlighter(open, close string) *Highlighter {
	if open == "" {
		open = DefaultOpenMark
	}
	if close == "" {
		close = DefaultCloseMark
	}
	return &Highlighter{open: open, close: close}
}

// Spans splits text into matched and unmatched pieces.
//
// Every case-insensitive occurrence of every token is matched. Tokens are
// tried longest first and overlapping or touching matches are merged into
// one span, so a short token can never split a longer one.
func (h *Highlighter) Spans(text string, tokens []string) []Span {
	if text == "" {
		return nil
	}

	var ranges [][2]int
	for _, token := range ByLengthDesc(tokens) {
		if token == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(token))
		for _, loc := range re.FindAllStringIndex(text, -1) {
			ranges = append(ranges, [2]int{loc[0], loc[1]})
		}
	}
	if len(ranges) == 0 {
		return []Span{{Text: text}}
	}

	merged := mergeRanges(ranges)
	spans := make([]Span, 0, 2*len(merged)+1)
	pos := 0
	for _, r := range merged {
		if r[0] > pos {
			spans = append(spans, Span{Text: text[pos:r[0]]})
		}
		spans = append(spans, Span{Text: text[r[0]:r[1]], Match: true})
		pos = r[1]
	}
	if pos < len(text) {
		spans = append(spans, Span{Text: text[pos:]})
	}
	return spans
}

// HTML returns text HTML-escaped with every match wrapped in the markers.
// With no tokens it is just the escaped text.
func (h *Highlighter) HTML(text string, tokens []string) string {
	var b strings.Builder
	for _, span := range h.Spans(text, tokens) {
		if span.Match {
			b.WriteString(h.open)
			b.WriteString(html.EscapeString(span.Text))
			b.WriteString(h.close)
			continue
		}
		b.WriteString(html.EscapeString(span.Text))
	}
	return b.String()
}

// Fields returns highlighted copies of a snippet's title and description.
// The snippet is not modified.
func (h *Highlighter) Fields(s *model.Snippet, tokens []string) *model.HighlightedFields {
	return &model.HighlightedFields{
		Title:       h.HTML(s.Title, tokens),
		Description: h.HTML(s.Description, tokens),
	}
}

func mergeRanges(ranges [][2]int) [][2]int {
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i][0] != ranges[j][0] {
			return ranges[i][0] < ranges[j][0]
		}
		return ranges[i][1] > ranges[j][1]
	})

	merged := [][2]int{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r[0] <= last[1] {
			if r[1] > last[1] {
				last[1] = r[1]
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
