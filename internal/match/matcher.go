package match

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

var matchTracer = otel.Tracer("medorder.internal.match")

// Mode selects how strategies are combined.
type Mode int

const (
	// ModeChat stops at the first strategy that produces a usable candidate.
	ModeChat Mode = iota
	// ModeRetrieval merges semantic candidates whenever lexical ones are not confident.
	ModeRetrieval
)

// Options holds the matcher tunables.
type Options struct {
	AmbiguityMargin float64
	ConfidentScore  float64
	FuzzyFloor      float64
	SemanticFloor   float64
	SemanticTopK    int
	MaxOptions      int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		AmbiguityMargin: 0.05,
		ConfidentScore:  0.80,
		FuzzyFloor:      0.75,
		SemanticFloor:   0.30,
		SemanticTopK:    5,
		MaxOptions:      5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.AmbiguityMargin <= 0 {
		o.AmbiguityMargin = d.AmbiguityMargin
	}
	if o.ConfidentScore <= 0 {
		o.ConfidentScore = d.ConfidentScore
	}
	if o.FuzzyFloor <= 0 {
		o.FuzzyFloor = d.FuzzyFloor
	}
	if o.SemanticFloor <= 0 {
		o.SemanticFloor = d.SemanticFloor
	}
	if o.SemanticTopK <= 0 {
		o.SemanticTopK = d.SemanticTopK
	}
	if o.MaxOptions <= 0 {
		o.MaxOptions = d.MaxOptions
	}
	return o
}

// Matcher resolves product phrases against the live catalog. It holds no
// per-query state; the index is optional and only adds fuzzy and semantic steps.
type Matcher struct {
	reader catalog.Reader
	index  *Index
	opts   Options
	logger *logging.Logger
}

func NewMatcher(reader catalog.Reader, index *Index, opts Options, logger *logging.Logger) *Matcher {
	if reader == nil {
		panic("match: catalog reader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Matcher{reader: reader, index: index, opts: opts.withDefaults(), logger: logger}
}

// Options returns the effective tunables.
func (m *Matcher) Options() Options {
	return m.opts
}

// Resolve maps phrase to candidates. Catalog read failures are returned
// wrapped in catalog.ErrUnavailable; semantic failures only degrade the chain.
func (m *Matcher) Resolve(ctx context.Context, phrase string, mode Mode) (Result, error) {
	ctx, span := matchTracer.Start(ctx, "match.resolve", trace.WithAttributes(
		attribute.Int("match.phrase_len", len(phrase)),
		attribute.Bool("match.retrieval", mode == ModeRetrieval),
	))
	defer span.End()

	result, err := m.resolve(ctx, phrase, mode)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	span.SetAttributes(
		attribute.String("match.outcome", string(result.Outcome)),
		attribute.String("match.strategy", string(result.Strategy)),
		attribute.Int("match.candidates", len(result.Candidates)),
	)
	return result, nil
}

func (m *Matcher) resolve(ctx context.Context, phrase string, mode Mode) (Result, error) {
	lexical, err := lexicalSearch(ctx, m.reader, phrase)
	if err != nil {
		return Result{}, fmt.Errorf("match: lexical: %w", err)
	}
	if confident(lexical, m.opts.ConfidentScore) {
		return m.decide(phrase, lexical), nil
	}

	var fuzzy []Candidate
	if m.index != nil {
		fuzzy = m.index.Fuzzy(phrase, m.opts.FuzzyFloor)
	}
	if mode == ModeChat && len(fuzzy) > 0 {
		return m.decide(phrase, mergeBest(lexical, fuzzy)), nil
	}

	semantic := m.semantic(ctx, phrase)
	if mode == ModeRetrieval {
		return m.decide(phrase, mergeBest(lexical, fuzzy, semantic)), nil
	}
	if len(semantic) > 0 {
		return m.decide(phrase, semantic), nil
	}
	return m.decide(phrase, lexical), nil
}

func (m *Matcher) semantic(ctx context.Context, phrase string) []Candidate {
	if m.index == nil {
		return nil
	}
	cands, err := m.index.Semantic(ctx, phrase, m.opts.SemanticTopK, m.opts.SemanticFloor)
	if err != nil {
		m.logger.Warn("semantic match skipped", "error", err)
		return nil
	}
	return cands
}

func (m *Matcher) decide(phrase string, cands []Candidate) Result {
	return decide(Normalize(phrase), cands, m.opts.AmbiguityMargin, m.opts.MaxOptions)
}

func confident(cands []Candidate, threshold float64) bool {
	return len(cands) > 0 && cands[0].Score >= threshold
}
