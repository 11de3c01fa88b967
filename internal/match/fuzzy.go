package match

import (
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
)

// lexiconEntry is the name-only view of a product used for typo matching.
// Names change shape rarely, so the lexicon is captured with the index; price,
// stock and status are never read from it.
type lexiconEntry struct {
	candidate Candidate
	name      []string
	generic   string
}

func newLexiconEntry(p catalog.Product) lexiconEntry {
	return lexiconEntry{
		candidate: candidateFromProduct(p, 0, StrategyFuzzy),
		name:      Tokens(p.Name),
		generic:   Normalize(p.GenericName),
	}
}

// similarity is 1 - OSA distance / longer length, so a single transposition
// costs one edit.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	d := edlib.OSADamerauLevenshteinDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// fuzzyScore compares the query against the whole name, the generic name and
// every window of name tokens as long as the query.
func (e lexiconEntry) fuzzyScore(query string, qtoks []string) float64 {
	best := similarity(query, strings.Join(e.name, " "))
	if e.generic != "" {
		best = max(best, similarity(query, e.generic))
	}
	n := len(qtoks)
	if n == 0 || n > len(e.name) {
		return best
	}
	for i := 0; i+n <= len(e.name); i++ {
		window := strings.Join(e.name[i:i+n], " ")
		best = max(best, similarity(query, window))
	}
	return best
}

func fuzzySearch(lexicon []lexiconEntry, phrase string, floor float64) []Candidate {
	query := Normalize(phrase)
	if query == "" || len(lexicon) == 0 {
		return nil
	}
	qtoks := strings.Fields(query)
	if content := ContentTokens(query); len(content) > 0 && len(content) < len(qtoks) {
		qtoks = content
		query = strings.Join(content, " ")
	}

	var out []Candidate
	for _, e := range lexicon {
		score := e.fuzzyScore(query, qtoks)
		if score < floor {
			continue
		}
		c := e.candidate
		c.Score = clamp01(score)
		out = append(out, c)
	}
	rank(out)
	return out
}
