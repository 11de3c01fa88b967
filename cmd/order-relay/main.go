package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"

	"github.com/wolfman30/medorder-assistant/cmd/mainconfig"
	"github.com/wolfman30/medorder-assistant/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medorder-assistant/internal/config"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.ForEnv(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("order relay failed", "error", err)
		os.Exit(1)
	}
	logger.Info("order relay stopped")
}

// run relays pending outbox rows until ctx is cancelled.
func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	var awsCfg *aws.Config
	if cfg.OrderEventsQueueURL != "" {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return err
		}
		awsCfg = &loaded
	} else {
		logger.Warn("ORDER_EVENTS_QUEUE_URL not set; events will only be logged")
	}

	relay := bootstrap.BuildOutboxDeliverer(cfg, pool, awsCfg, nil, logger)
	logger.Info("order relay started",
		"batch_size", cfg.OutboxBatchSize,
		"interval", cfg.OutboxPollInterval.String(),
	)
	relay.Start(ctx)
	return nil
}
