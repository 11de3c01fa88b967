// Package match resolves a product phrase to ranked catalog candidates using a
// short-circuiting chain of lexical, fuzzy and semantic strategies.
package match

import (
	"sort"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
)

// Strategy names which step of the chain produced a candidate.
type Strategy string

const (
	StrategyLexical  Strategy = "lexical"
	StrategyFuzzy    Strategy = "fuzzy"
	StrategySemantic Strategy = "semantic"
)

// Candidate is one possible catalog match for a phrase.
type Candidate struct {
	ProductID   string   `json:"productId"`
	DisplayName string   `json:"displayName"`
	Score       float64  `json:"score"`
	Family      string   `json:"family,omitempty"`
	PackSize    string   `json:"packSize,omitempty"`
	Strategy    Strategy `json:"strategy,omitempty"`
}

// Outcome classifies a resolution.
type Outcome string

const (
	OutcomeResolved  Outcome = "resolved"
	OutcomeAmbiguous Outcome = "ambiguous"
	OutcomeNotFound  Outcome = "not_found"
)

// Result is the matcher's answer for one phrase. For OutcomeResolved the
// chosen candidate is Candidates[0].
type Result struct {
	Outcome    Outcome
	Candidates []Candidate
	Strategy   Strategy
}

// Best returns the top candidate, if any.
func (r Result) Best() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

func candidateFromProduct(p catalog.Product, score float64, strategy Strategy) Candidate {
	return Candidate{
		ProductID:   p.ID,
		DisplayName: p.DisplayName(),
		Score:       clamp01(score),
		Family:      Normalize(p.Name),
		PackSize:    p.PackSize,
		Strategy:    strategy,
	}
}

func rank(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		if cands[i].DisplayName != cands[j].DisplayName {
			return cands[i].DisplayName < cands[j].DisplayName
		}
		return cands[i].ProductID < cands[j].ProductID
	})
}

// mergeBest keeps the highest score per product across strategies.
func mergeBest(groups ...[]Candidate) []Candidate {
	best := make(map[string]Candidate)
	var order []string
	for _, group := range groups {
		for _, c := range group {
			prev, ok := best[c.ProductID]
			if !ok {
				order = append(order, c.ProductID)
			}
			if !ok || c.Score > prev.Score {
				best[c.ProductID] = c
			}
		}
	}
	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	rank(out)
	return out
}

// decide applies the ambiguity policy to ranked candidates: distinct families
// within margin of the top score are ambiguous, and so are several pack sizes
// of one family unless the query names one of them.
func decide(query string, cands []Candidate, margin float64, maxOptions int) Result {
	if len(cands) == 0 {
		return Result{Outcome: OutcomeNotFound}
	}
	rank(cands)
	top := cands[0].Score

	var near []Candidate
	families := make(map[string]struct{})
	for _, c := range cands {
		if top-c.Score > margin {
			break
		}
		near = append(near, c)
		families[c.Family] = struct{}{}
	}
	strategy := cands[0].Strategy

	if len(families) > 1 {
		return Result{Outcome: OutcomeAmbiguous, Candidates: capOptions(near, maxOptions), Strategy: strategy}
	}

	variants := familyVariants(cands, cands[0].Family)
	if len(variants) == 1 {
		return Result{Outcome: OutcomeResolved, Candidates: variants, Strategy: strategy}
	}
	var named []Candidate
	for _, v := range variants {
		if mentionsPackSize(query, v.PackSize) {
			named = append(named, v)
		}
	}
	if len(named) == 1 {
		return Result{Outcome: OutcomeResolved, Candidates: named, Strategy: strategy}
	}
	if len(named) > 1 {
		variants = named
	}
	return Result{Outcome: OutcomeAmbiguous, Candidates: capOptions(variants, maxOptions), Strategy: strategy}
}

func familyVariants(cands []Candidate, family string) []Candidate {
	var out []Candidate
	for _, c := range cands {
		if c.Family == family {
			out = append(out, c)
		}
	}
	return out
}

func capOptions(cands []Candidate, limit int) []Candidate {
	if limit > 0 && len(cands) > limit {
		return cands[:limit]
	}
	return cands
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
