package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wolfman30/medorder-assistant/internal/app/bootstrap"
	"github.com/wolfman30/medorder-assistant/internal/match"
)

func newReindexCmd(root *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Build the match index and print its stats",
		Long: `Builds the embedding index over the catalog. The catalog is read from
Postgres when DATABASE_URL is set, otherwise from the seed file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := root.config()
			logger := root.logger(cmd)

			pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}
			reader, err := bootstrap.BuildCatalog(ctx, cfg, pool, nil, logger)
			if err != nil {
				return err
			}
			embedder, err := bootstrap.BuildEmbedder(cfg, nil)
			if err != nil {
				return err
			}
			index := match.NewIndex(embedder, match.IndexOptions{M: cfg.HNSWNeighbors, EfSearch: cfg.HNSWEfSearch}, logger)
			stats, err := index.Build(ctx, reader)
			if err != nil {
				return fmt.Errorf("build index: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}
