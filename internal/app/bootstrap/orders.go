package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	appconfig "github.com/wolfman30/medorder-assistant/internal/config"
	"github.com/wolfman30/medorder-assistant/internal/dialogue"
	"github.com/wolfman30/medorder-assistant/internal/events"
	"github.com/wolfman30/medorder-assistant/internal/observability/metrics"
	"github.com/wolfman30/medorder-assistant/internal/orders"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

// BuildIdempotencyStore prefers Redis, then Postgres, then process memory.
func BuildIdempotencyStore(redisClient *redis.Client, pool *pgxpool.Pool, logger *logging.Logger) orders.IdempotencyStore {
	if logger == nil {
		logger = logging.Default()
	}
	switch {
	case redisClient != nil:
		logger.Info("order idempotency backed by redis")
		return orders.NewRedisIdempotencyStore(redisClient)
	case pool != nil:
		logger.Info("order idempotency backed by postgres")
		return orders.NewPostgresIdempotencyStore(pool)
	default:
		logger.Warn("order idempotency is process-local; replays across replicas are not deduplicated")
		return orders.NewMemoryIdempotencyStore()
	}
}

// OrderDeps are the collaborators shared by the order service and engine.
type OrderDeps struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Catalog catalog.Reader
	Matcher dialogue.Resolver
	Metrics *metrics.TurnMetrics
	Logger  *logging.Logger
}

// BuildOrderService wires the repository and idempotency store. Orders land
// in Postgres together with their outbox event when a pool is available.
func BuildOrderService(cfg *appconfig.Config, deps OrderDeps) (*orders.Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	var repo orders.Repository
	if deps.Pool != nil {
		repo = orders.NewPostgresRepository(deps.Pool)
	} else {
		deps.Logger.Warn("orders are kept in memory; set DATABASE_URL to persist them")
		repo = orders.NewInMemoryRepository()
	}
	return orders.NewService(repo, orders.ServiceOptions{
		Catalog:        deps.Catalog,
		Idempotency:    BuildIdempotencyStore(deps.Redis, deps.Pool, deps.Logger),
		IdempotencyTTL: cfg.OrderIdempotencyTTL,
		PaymentMethod:  cfg.PaymentMethod,
		Metrics:        deps.Metrics,
		Logger:         deps.Logger,
	}), nil
}

// BuildEngine returns the turn engine. submitter may be nil, in which case
// confirmed orders are handed back to the caller as order_ready data.
func BuildEngine(cfg *appconfig.Config, deps OrderDeps, submitter dialogue.OrderSubmitter) (*dialogue.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Catalog == nil || deps.Matcher == nil {
		return nil, fmt.Errorf("bootstrap: catalog and matcher are required")
	}
	d := dialogue.Deps{
		Catalog: deps.Catalog,
		Matcher: deps.Matcher,
		Metrics: deps.Metrics,
		Logger:  deps.Logger,
	}
	if submitter != nil {
		d.Orders = submitter
	}
	return dialogue.NewEngine(d, dialogue.Options{
		MaxQuantityPerLine: cfg.MaxQuantityPerLine,
		PaymentMethod:      cfg.PaymentMethod,
		Currency:           cfg.Currency,
	}), nil
}

// BuildOutboxDeliverer returns a relay over the Postgres outbox, or nil
// without a pool. Events go to SQS when a queue URL and AWS config are set,
// otherwise they are logged and acknowledged.
func BuildOutboxDeliverer(cfg *appconfig.Config, pool *pgxpool.Pool, awsCfg *aws.Config, m *metrics.TurnMetrics, logger *logging.Logger) *events.Deliverer {
	if cfg == nil || pool == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	var handler events.DeliveryHandler = events.LogHandler{Logger: logger}
	if queueURL := strings.TrimSpace(cfg.OrderEventsQueueURL); queueURL != "" && awsCfg != nil {
		handler = events.NewSQSPublisher(sqs.NewFromConfig(*awsCfg), queueURL)
		logger.Info("outbox relay publishing to sqs", "queue_url", queueURL)
	}
	return events.NewDeliverer(events.NewOutboxStore(pool), handler, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval).
		WithResultHook(m.ObserveOutbox)
}
