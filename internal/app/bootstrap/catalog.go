package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	appconfig "github.com/wolfman30/medorder-assistant/internal/config"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

// BuildCatalog returns the live catalog reader. With a pool the products
// table is read directly; otherwise the seed file is loaded into memory.
// getter is only consulted for s3:// seed paths.
func BuildCatalog(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, getter catalog.ObjectGetter, logger *logging.Logger) (catalog.Reader, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if pool != nil {
		logger.Info("catalog backed by postgres")
		return catalog.NewPostgresStore(pool), nil
	}

	products, err := catalog.LoadSeed(ctx, cfg.CatalogSeedPath, getter)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load catalog seed: %w", err)
	}
	logger.Info("catalog loaded from seed", "path", cfg.CatalogSeedPath, "products", len(products))
	return catalog.NewMemoryStore(products...), nil
}

// SeedFromS3 reports whether the seed path needs an S3 client.
func SeedFromS3(cfg *appconfig.Config) bool {
	return cfg != nil && strings.HasPrefix(strings.TrimSpace(cfg.CatalogSeedPath), "s3://")
}
