package match

import (
	"strings"
	"unicode"
)

// stopwords never carry product identity and are dropped before token
// scoring and embedding.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "for": {}, "of": {}, "and": {}, "or": {},
	"with": {}, "to": {}, "in": {}, "on": {}, "my": {}, "me": {}, "i": {},
	"some": {}, "something": {}, "anything": {}, "any": {}, "need": {},
	"want": {}, "medicine": {}, "medication": {}, "please": {}, "do": {},
	"you": {}, "have": {}, "is": {}, "it": {}, "good": {}, "what": {},
}

// Normalize lowercases s, replaces punctuation with spaces and collapses
// whitespace. Slashes, dots and percent signs inside strengths survive
// ("125mg/5ml", "0.5%").
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	runes := []rune(strings.ToLower(s))
	for i, r := range runes {
		keep := unicode.IsLetter(r) || unicode.IsDigit(r)
		if !keep && (r == '/' || r == '.' || r == '%') {
			prevAlnum := i > 0 && isAlnum(runes[i-1])
			nextAlnum := i+1 < len(runes) && isAlnum(runes[i+1])
			keep = prevAlnum && (nextAlnum || r == '%')
		}
		if keep {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Tokens splits a normalized string into tokens.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// ContentTokens is Tokens without stopwords.
func ContentTokens(s string) []string {
	toks := Tokens(s)
	out := toks[:0]
	for _, t := range toks {
		if _, stop := stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// mentionsPackSize reports whether the numeric part of packSize appears as a
// standalone token in query, e.g. "20" for "20 tablets".
func mentionsPackSize(query, packSize string) bool {
	count := leadingNumber(Normalize(packSize))
	if count == "" {
		return false
	}
	for _, tok := range Tokens(query) {
		if tok == count {
			return true
		}
	}
	return false
}

func leadingNumber(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}
