package match

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/hnsw"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

const embedBatchSize = 32

// IndexOptions tunes the HNSW graph.
type IndexOptions struct {
	M        int
	EfSearch int
}

// IndexStats describes the live snapshot.
type IndexStats struct {
	Products   int       `json:"products"`
	Vectors    int       `json:"vectors"`
	Dimensions int       `json:"dimensions"`
	BuiltAt    time.Time `json:"builtAt"`
}

// snapshot is immutable once published.
type snapshot struct {
	graph      *hnsw.Graph[string]
	lexicon    []lexiconEntry
	candidates map[string]Candidate
	stats      IndexStats
}

// Index holds the embedding graph and the name lexicon. Builds happen off to
// the side and are published with an atomic swap, so searches never see a
// partially built graph.
type Index struct {
	embedder Embedder
	opts     IndexOptions
	logger   *logging.Logger

	buildMu sync.Mutex
	current atomic.Pointer[snapshot]
}

func NewIndex(embedder Embedder, opts IndexOptions, logger *logging.Logger) *Index {
	if embedder == nil {
		panic("match: embedder required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if opts.M <= 0 {
		opts.M = 16
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = 32
	}
	return &Index{embedder: embedder, opts: opts, logger: logger}
}

// Build reads the full catalog, embeds every product and swaps the new graph in.
// A failed build leaves the previous snapshot serving.
func (ix *Index) Build(ctx context.Context, reader catalog.Reader) (IndexStats, error) {
	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()

	start := time.Now()
	products, err := reader.List(ctx)
	if err != nil {
		return IndexStats{}, fmt.Errorf("match: list catalog: %w", err)
	}

	var (
		keys  []string
		texts []string
	)
	snap := &snapshot{
		lexicon:    make([]lexiconEntry, 0, len(products)),
		candidates: make(map[string]Candidate, len(products)),
	}
	for _, p := range products {
		snap.lexicon = append(snap.lexicon, newLexiconEntry(p))
		snap.candidates[p.ID] = candidateFromProduct(p, 0, StrategySemantic)
		for i, doc := range productDocuments(p) {
			keys = append(keys, p.ID+"#"+strconv.Itoa(i))
			texts = append(texts, doc)
		}
	}

	vectors, err := ix.embedAll(ctx, texts)
	if err != nil {
		return IndexStats{}, err
	}

	dims := ix.embedder.Dimensions()
	if len(keys) > 0 {
		g := hnsw.NewGraph[string]()
		g.M = ix.opts.M
		g.EfSearch = ix.opts.EfSearch
		g.Distance = hnsw.CosineDistance
		nodes := make([]hnsw.Node[string], 0, len(keys))
		for i, key := range keys {
			if len(vectors[i]) != dims {
				return IndexStats{}, fmt.Errorf("%w: %s has %d, want %d", ErrDimensionMismatch, key, len(vectors[i]), dims)
			}
			nodes = append(nodes, hnsw.MakeNode(key, vectors[i]))
		}
		g.Add(nodes...)
		snap.graph = g
	}

	snap.stats = IndexStats{
		Products:   len(products),
		Vectors:    len(keys),
		Dimensions: dims,
		BuiltAt:    time.Now().UTC(),
	}
	ix.current.Store(snap)
	ix.logger.Info("match index built",
		"products", snap.stats.Products,
		"vectors", snap.stats.Vectors,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap.stats, nil
}

func (ix *Index) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		g.Go(func() error {
			batch, err := ix.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("match: embed batch: %w", err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("match: embedder returned %d vectors for %d texts", len(batch), end-start)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// productDocuments splits a product into an identity document and a
// description document so short symptom queries are not drowned out by names.
func productDocuments(p catalog.Product) []string {
	identity := strings.Join(nonEmpty(p.Name, p.GenericName, p.Form), ". ")
	docs := []string{identity}
	if d := strings.TrimSpace(p.Description); d != "" {
		docs = append(docs, d)
	}
	return docs
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Semantic returns up to k products nearest to phrase with similarity >= floor.
func (ix *Index) Semantic(ctx context.Context, phrase string, k int, floor float64) ([]Candidate, error) {
	snap := ix.current.Load()
	if snap == nil || snap.graph == nil || k <= 0 {
		return nil, nil
	}
	if len(ContentTokens(phrase)) == 0 {
		return nil, nil
	}
	vecs, err := ix.embedder.Embed(ctx, []string{phrase})
	if err != nil {
		return nil, fmt.Errorf("match: embed query: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != snap.stats.Dimensions {
		return nil, ErrDimensionMismatch
	}
	query := vecs[0]

	// Each product contributes up to two vectors; over-fetch then dedupe.
	nodes := snap.graph.Search(query, k*2)
	var out []Candidate
	seen := make(map[string]int)
	for _, n := range nodes {
		id, _, _ := strings.Cut(n.Key, "#")
		score := clamp01(1 - float64(hnsw.CosineDistance(query, n.Value)))
		if score < floor {
			continue
		}
		if i, ok := seen[id]; ok {
			if score > out[i].Score {
				out[i].Score = score
			}
			continue
		}
		c, ok := snap.candidates[id]
		if !ok {
			continue
		}
		c.Score = score
		seen[id] = len(out)
		out = append(out, c)
	}
	rank(out)
	return capOptions(out, k), nil
}

// Fuzzy runs typo-tolerant matching over the lexicon captured at build time.
func (ix *Index) Fuzzy(phrase string, floor float64) []Candidate {
	snap := ix.current.Load()
	if snap == nil {
		return nil
	}
	return fuzzySearch(snap.lexicon, phrase, floor)
}

// Stats reports the published snapshot.
func (ix *Index) Stats() (IndexStats, error) {
	snap := ix.current.Load()
	if snap == nil {
		return IndexStats{}, ErrIndexNotReady
	}
	return snap.stats, nil
}
