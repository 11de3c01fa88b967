package match

import (
	"context"
	"strings"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
)

// Lexical scores. Token-subset scores scale with the share of query tokens
// found in the product's name, generic name and pack size.
const (
	scoreExact         = 1.0
	scoreNamePrefix    = 0.95
	scoreNameSubstring = 0.9
	scoreGeneric       = 0.85
	scoreTokenSubset   = 0.85
)

// lexicalSearch runs live catalog searches for phrase and scores each hit. When
// the whole phrase matches nothing, each content token is searched on its own.
func lexicalSearch(ctx context.Context, reader catalog.Reader, phrase string) ([]Candidate, error) {
	query := Normalize(phrase)
	if query == "" {
		return nil, nil
	}

	products, err := reader.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		seen := make(map[string]struct{})
		for _, tok := range ContentTokens(query) {
			if len(tok) < 3 || isNumeric(tok) {
				continue
			}
			hits, err := reader.Search(ctx, tok)
			if err != nil {
				return nil, err
			}
			for _, p := range hits {
				if _, dup := seen[p.ID]; dup {
					continue
				}
				seen[p.ID] = struct{}{}
				products = append(products, p)
			}
		}
	}

	out := make([]Candidate, 0, len(products))
	for _, p := range products {
		if score := lexicalScore(query, p); score > 0 {
			out = append(out, candidateFromProduct(p, score, StrategyLexical))
		}
	}
	rank(out)
	return out, nil
}

func lexicalScore(query string, p catalog.Product) float64 {
	name := Normalize(p.Name)
	generic := Normalize(p.GenericName)
	switch {
	case query == name || (generic != "" && query == generic):
		return scoreExact
	case strings.HasPrefix(name, query):
		return scoreNamePrefix
	case strings.Contains(name, query):
		return scoreNameSubstring
	case generic != "" && strings.Contains(generic, query):
		return scoreGeneric
	}
	return tokenSubsetScore(query, p)
}

func tokenSubsetScore(query string, p catalog.Product) float64 {
	qtoks := ContentTokens(query)
	if len(qtoks) == 0 {
		return 0
	}
	have := make(map[string]struct{})
	for _, field := range []string{p.Name, p.GenericName, p.PackSize} {
		for _, t := range Tokens(field) {
			have[t] = struct{}{}
		}
	}
	matched := 0
	for _, q := range qtoks {
		if _, ok := have[q]; ok {
			matched++
			continue
		}
		for t := range have {
			if len(q) >= 3 && strings.HasPrefix(t, q) {
				matched++
				break
			}
		}
	}
	if matched == 0 {
		return 0
	}
	return scoreTokenSubset * float64(matched) / float64(len(qtoks))
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
