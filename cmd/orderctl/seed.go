package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wolfman30/medorder-assistant/internal/app/bootstrap"
	"github.com/wolfman30/medorder-assistant/internal/catalog"
)

func newSeedCmd(root *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the catalog seed file into Postgres",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := root.config()
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			logger := root.logger(cmd)

			getter, err := seedGetter(ctx, cfg)
			if err != nil {
				return err
			}
			products, err := catalog.LoadSeed(ctx, cfg.CatalogSeedPath, getter)
			if err != nil {
				return err
			}
			pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := catalog.NewPostgresStore(pool).Upsert(ctx, products...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products from %s\n", n, cfg.CatalogSeedPath)
			return nil
		},
	}
}
