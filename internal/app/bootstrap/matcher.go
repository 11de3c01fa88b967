package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	appconfig "github.com/wolfman30/medorder-assistant/internal/config"
	"github.com/wolfman30/medorder-assistant/internal/match"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

const (
	EmbeddingHash    = "hash"
	EmbeddingBedrock = "bedrock"
)

// UsesBedrock reports whether the configured embedder needs AWS credentials.
func UsesBedrock(cfg *appconfig.Config) bool {
	return cfg != nil && cfg.EmbeddingProvider == EmbeddingBedrock
}

// BuildEmbedder selects the embedding provider. awsCfg is only required for
// bedrock.
func BuildEmbedder(cfg *appconfig.Config, awsCfg *aws.Config) (match.Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	switch cfg.EmbeddingProvider {
	case "", EmbeddingHash:
		return match.NewHashEmbedder(cfg.EmbeddingDimensions), nil
	case EmbeddingBedrock:
		model := strings.TrimSpace(cfg.BedrockEmbeddingModelID)
		if model == "" {
			return nil, fmt.Errorf("bootstrap: BEDROCK_EMBEDDING_MODEL_ID is required for bedrock embeddings")
		}
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: aws config is required for bedrock embeddings")
		}
		return match.NewBedrockEmbedder(bedrockruntime.NewFromConfig(*awsCfg), model, cfg.EmbeddingDimensions), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// MatchOptions maps config onto matcher tunables. Zero values fall back to
// the matcher defaults.
func MatchOptions(cfg *appconfig.Config) match.Options {
	if cfg == nil {
		return match.DefaultOptions()
	}
	return match.Options{
		AmbiguityMargin: cfg.MatchAmbiguityMargin,
		ConfidentScore:  cfg.MatchConfidentScore,
		FuzzyFloor:      cfg.MatchFuzzyFloor,
		SemanticFloor:   cfg.MatchSemanticFloor,
		SemanticTopK:    cfg.MatchSemanticTopK,
	}
}

// BuildMatcher builds the index over reader and wraps both in a Matcher. A
// failed first build is logged and the matcher runs lexical-only until the
// next reindex succeeds.
func BuildMatcher(ctx context.Context, cfg *appconfig.Config, reader catalog.Reader, embedder match.Embedder, logger *logging.Logger) (*match.Matcher, *match.Index, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if reader == nil || embedder == nil {
		return nil, nil, fmt.Errorf("bootstrap: catalog reader and embedder are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	index := match.NewIndex(embedder, match.IndexOptions{
		M:        cfg.HNSWNeighbors,
		EfSearch: cfg.HNSWEfSearch,
	}, logger)
	if _, err := index.Build(ctx, reader); err != nil {
		logger.Warn("initial match index build failed; serving lexical matches only", "error", err)
	}
	return match.NewMatcher(reader, index, MatchOptions(cfg), logger), index, nil
}
