package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/wolfman30/medorder-assistant/cmd/mainconfig"
	"github.com/wolfman30/medorder-assistant/internal/app/bootstrap"
	"github.com/wolfman30/medorder-assistant/internal/catalog"
	appconfig "github.com/wolfman30/medorder-assistant/internal/config"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

// cliOptions are the persistent flags shared by every subcommand.
type cliOptions struct {
	seedPath string
	logLevel string
}

func (o *cliOptions) config() *appconfig.Config {
	cfg := appconfig.Load()
	if o.seedPath != "" {
		cfg.CatalogSeedPath = o.seedPath
	}
	return cfg
}

func (o *cliOptions) logger(cmd *cobra.Command) *logging.Logger {
	return logging.NewWithWriter(cmd.ErrOrStderr(), o.logLevel, "text")
}

// seedGetter returns an S3 client when the seed lives in a bucket.
func seedGetter(ctx context.Context, cfg *appconfig.Config) (catalog.ObjectGetter, error) {
	if !bootstrap.SeedFromS3(cfg) {
		return nil, nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return mainconfig.NewS3Client(awsCfg, cfg), nil
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:   "orderctl",
		Short: "Operate the medicine ordering assistant",
		Long: `orderctl runs the ordering engine locally.

Available subcommands:
  chat    - talk to the engine turn by turn
  reindex - rebuild the match index and print its stats
  seed    - load a catalog seed file into Postgres`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.seedPath, "seed", "", "catalog seed file or s3:// URI (defaults to CATALOG_SEED_PATH)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	root.AddCommand(newChatCmd(opts), newReindexCmd(opts), newSeedCmd(opts))
	return root
}
