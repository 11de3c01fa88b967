package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/medorder-assistant/cmd/mainconfig"
	"github.com/wolfman30/medorder-assistant/internal/api/router"
	"github.com/wolfman30/medorder-assistant/internal/app/bootstrap"
	"github.com/wolfman30/medorder-assistant/internal/catalog"
	appconfig "github.com/wolfman30/medorder-assistant/internal/config"
	"github.com/wolfman30/medorder-assistant/internal/events"
	"github.com/wolfman30/medorder-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medorder-assistant/internal/http/middleware"
	"github.com/wolfman30/medorder-assistant/internal/observability/metrics"
	"github.com/wolfman30/medorder-assistant/internal/orders"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.ForEnv(cfg.Env, cfg.LogLevel)
	logger.Info("starting medorder-assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// server is everything run needs once wiring is done.
type server struct {
	handler http.Handler
	limiter *httpmiddleware.RateLimiter
	relay   *events.Deliverer
	pool    *pgxpool.Pool
	redis   *redis.Client
}

func (s *server) close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer srv.close()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		srv.limiter.RunSweeper(gctx, time.Minute)
		return nil
	})
	if srv.relay != nil {
		g.Go(func() error {
			logger.Info("outbox relay running in-process")
			srv.relay.Start(gctx)
			return nil
		})
	}
	return g.Wait()
}

// buildServer wires stores, matcher, engine and router from cfg. With no
// DATABASE_URL or REDIS_ADDR everything runs in memory from the seed file.
func buildServer(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*server, error) {
	srv := &server{}
	ok := false
	defer func() {
		if !ok {
			srv.close()
		}
	}()

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.pool = pool
	srv.redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	var awsCfg *aws.Config
	if mainconfig.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		awsCfg = &loaded
	}
	var getter catalog.ObjectGetter
	if bootstrap.SeedFromS3(cfg) && awsCfg != nil {
		getter = mainconfig.NewS3Client(*awsCfg, cfg)
	}

	reader, err := bootstrap.BuildCatalog(ctx, cfg, pool, getter, logger)
	if err != nil {
		return nil, err
	}
	embedder, err := bootstrap.BuildEmbedder(cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	matcher, index, err := bootstrap.BuildMatcher(ctx, cfg, reader, embedder, logger)
	if err != nil {
		return nil, err
	}

	metricsHandler, turnMetrics := setupMetrics()
	deps := bootstrap.OrderDeps{
		Pool:    pool,
		Redis:   srv.redis,
		Catalog: reader,
		Matcher: matcher,
		Metrics: turnMetrics,
		Logger:  logger,
	}
	orderService, err := bootstrap.BuildOrderService(cfg, deps)
	if err != nil {
		return nil, err
	}
	engine, err := bootstrap.BuildEngine(cfg, deps, orderService)
	if err != nil {
		return nil, err
	}

	adminCfg := handlers.AdminCatalogConfig{
		Index:   index,
		Catalog: reader,
		Metrics: turnMetrics,
		Logger:  logger,
	}
	if pool != nil {
		adminCfg.Events = events.NewOutboxStore(pool)
	}

	srv.limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	srv.handler = router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        handlers.NewChatHandler(engine, logger),
		OrdersHandler:      orders.NewHandler(orderService, logger),
		AdminCatalog:       handlers.NewAdminCatalogHandler(adminCfg),
		HealthHandler:      handlers.NewHealthHandler(healthChecks(pool, srv.redis), logger),
		MetricsHandler:     metricsHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        srv.limiter,
		RequestTimeout:     20 * time.Second,
	})

	if cfg.OrderEventsQueueURL != "" {
		srv.relay = bootstrap.BuildOutboxDeliverer(cfg, pool, awsCfg, turnMetrics, logger)
	}
	ok = true
	return srv, nil
}

// setupMetrics registers the turn collectors on a private registry.
func setupMetrics() (http.Handler, *metrics.TurnMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewTurnMetrics(reg)
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
