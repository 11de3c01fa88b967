// Package extract splits chat messages into item phrases and separates order
// quantities from dosage strengths.
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Item is one product phrase with its order quantity, if one was stated.
type Item struct {
	Phrase      string `json:"phrase"`
	Quantity    int    `json:"quantity,omitempty"`
	HasQuantity bool   `json:"hasQuantity"`
}

// DosageUnits are the tokens that bind a preceding number to a strength
// rather than a count.
var DosageUnits = map[string]struct{}{
	"mg": {}, "ml": {}, "mcg": {}, "gm": {}, "g": {}, "%": {},
}

// ContainerWords may sit between a count and the product ("3 boxes of panadol").
var ContainerWords = map[string]struct{}{
	"box": {}, "boxes": {}, "pack": {}, "packs": {}, "packet": {}, "packets": {},
	"bottle": {}, "bottles": {}, "strip": {}, "strips": {}, "tube": {}, "tubes": {},
	"unit": {}, "units": {}, "piece": {}, "pieces": {}, "pcs": {},
}

// NumberWords maps spelled-out counts.
var NumberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7,
	"eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13,
	"fourteen": 14, "fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18,
	"nineteen": 19, "twenty": 20, "a couple of": 2, "a dozen": 12,
}

var (
	splitRE          = regexp.MustCompile(`(?i)\s*(?:[,;]|\band\b|&|\bplus\b)\s*`)
	leadingDigitsRE  = regexp.MustCompile(`^(\d{1,3})(?:\s+|$)`)
	leadingRangeRE   = regexp.MustCompile(`^\d+\s*(?:-|–|to)\s*\d+`)
	trailingCountRE  = regexp.MustCompile(`(?i)\s+[x×]\s*(\d{1,3})$`)
	leadingFillerRE  = regexp.MustCompile(`(?i)^(?:please\s+)?(?:(?:can|could|may)\s+i\s+(?:get|have|order|buy)|i(?:'d|\s+would)\s+like(?:\s+to\s+(?:buy|order|add|get))?|i\s+(?:want|need)(?:\s+to\s+(?:buy|order|add|get))?|i'?ll\s+take|give\s+me|get\s+me|add|order|buy|put)\s+`)
	trailingFillerRE = regexp.MustCompile(`(?i)\s+(?:to|in|into)\s+(?:my|the)?\s*(?:cart|basket|order)$|\s+please$`)
	someRE           = regexp.MustCompile(`(?i)^(?:some|more|also)\s+`)
	punctRE          = regexp.MustCompile(`[?!.]+$`)
)

// SplitItems splits a multi-item message on commas, semicolons, "and", "&"
// and "plus". Empty fragments are dropped.
func SplitItems(text string) []string {
	var out []string
	for _, part := range splitRE.Split(text, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// CleanPhrase strips ordering verbs and politeness around a product phrase.
func CleanPhrase(phrase string) string {
	p := strings.TrimSpace(punctRE.ReplaceAllString(strings.TrimSpace(phrase), ""))
	for {
		next := leadingFillerRE.ReplaceAllString(p, "")
		next = someRE.ReplaceAllString(next, "")
		next = trailingFillerRE.ReplaceAllString(next, "")
		next = strings.TrimSpace(next)
		if next == p {
			return p
		}
		p = next
	}
}

// ParseItem separates a leading order quantity from the product phrase. A
// leading run of 1-3 digits counts only when it is not followed by a dosage
// unit, so "5 mg panadol" keeps its 5. Ranges ("5-10 tablets") are left whole.
func ParseItem(phrase string) Item {
	p := CleanPhrase(phrase)
	if p == "" {
		return Item{}
	}
	if leadingRangeRE.MatchString(p) {
		return Item{Phrase: p}
	}

	if m := leadingDigitsRE.FindStringSubmatch(p); m != nil {
		rest := strings.TrimSpace(p[len(m[0]):])
		if !startsWithUnit(rest) && rest != "" {
			n, _ := strconv.Atoi(m[1])
			return Item{Phrase: stripContainer(rest), Quantity: n, HasQuantity: true}
		}
		return Item{Phrase: p}
	}

	if n, rest, ok := leadingNumberWord(p); ok && rest != "" && !startsWithUnit(rest) {
		return Item{Phrase: stripContainer(rest), Quantity: n, HasQuantity: true}
	}

	if m := trailingCountRE.FindStringSubmatchIndex(p); m != nil {
		n, _ := strconv.Atoi(p[m[2]:m[3]])
		rest := strings.TrimSpace(p[:m[0]])
		if rest != "" {
			return Item{Phrase: rest, Quantity: n, HasQuantity: true}
		}
	}

	return Item{Phrase: p}
}

// ParseQuantity reads a bare quantity reply such as "5", "five", "5 boxes" or
// "make it 3". Dosage-looking replies ("5 mg") are rejected.
func ParseQuantity(reply string) (int, bool) {
	text := strings.ToLower(strings.TrimSpace(punctRE.ReplaceAllString(strings.TrimSpace(reply), "")))
	for _, prefix := range []string{"make it ", "just ", "only ", "i'll take ", "i will take ", "i want ", "give me ", "please ", "ok ", "okay "} {
		text = strings.TrimPrefix(text, prefix)
	}
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields) > 4 {
		return 0, false
	}
	rest := strings.Join(fields[1:], " ")
	if startsWithUnit(rest) {
		return 0, false
	}
	if n, err := strconv.Atoi(fields[0]); err == nil {
		if n < 0 || len(fields[0]) > 4 {
			return 0, false
		}
		return n, quantityTail(fields[1:])
	}
	if n, tail, ok := leadingNumberWord(text); ok {
		return n, quantityTail(strings.Fields(tail))
	}
	return 0, false
}

// quantityTail accepts what may follow a bare count in a reply.
func quantityTail(fields []string) bool {
	for _, f := range fields {
		if _, ok := ContainerWords[f]; ok {
			continue
		}
		switch f {
		case "of", "them", "it", "please", "pls", "thanks", "tablets", "capsules":
			continue
		}
		return false
	}
	return true
}

func leadingNumberWord(p string) (int, string, bool) {
	lower := strings.ToLower(p)
	best, bestLen := 0, 0
	for word, n := range NumberWords {
		if len(word) <= bestLen {
			continue
		}
		if lower == word || strings.HasPrefix(lower, word+" ") {
			best, bestLen = n, len(word)
		}
	}
	if bestLen == 0 {
		if strings.HasPrefix(lower, "a ") || strings.HasPrefix(lower, "an ") {
			_, rest, _ := strings.Cut(p, " ")
			if first, _, _ := strings.Cut(strings.ToLower(rest), " "); isContainer(first) {
				return 1, strings.TrimSpace(rest), true
			}
		}
		return 0, "", false
	}
	return best, strings.TrimSpace(p[bestLen:]), true
}

func startsWithUnit(rest string) bool {
	if strings.HasPrefix(rest, "%") {
		return true
	}
	first, _, _ := strings.Cut(strings.ToLower(rest), " ")
	first = strings.TrimRight(first, ",.;")
	_, ok := DosageUnits[first]
	return ok
}

func isContainer(word string) bool {
	_, ok := ContainerWords[word]
	return ok
}

// stripContainer drops "boxes of" style words after a count.
func stripContainer(rest string) string {
	first, tail, found := strings.Cut(rest, " ")
	if !found || !isContainer(strings.ToLower(first)) {
		return rest
	}
	tail = strings.TrimSpace(tail)
	if t, ok := strings.CutPrefix(strings.ToLower(tail), "of "); ok {
		return strings.TrimSpace(tail[len(tail)-len(t):])
	}
	return tail
}
