package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/medorder-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medorder-assistant/internal/http/middleware"
	"github.com/wolfman30/medorder-assistant/internal/orders"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

// Config holds router configuration. Handlers left nil are not mounted.
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *handlers.ChatHandler
	OrdersHandler      *orders.Handler
	AdminCatalog       *handlers.AdminCatalogHandler
	HealthHandler      *handlers.HealthHandler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CORSAllowedOrigins []string
	// RateLimiter throttles the chat and order endpoints per session or client.
	RateLimiter    *httpmiddleware.RateLimiter
	RequestTimeout time.Duration
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	health := cfg.HealthHandler
	if health == nil {
		health = handlers.NewHealthHandler(nil, cfg.Logger)
	}
	r.Get("/health", health.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(requireJSON)
		if cfg.RequestTimeout > 0 {
			api.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		if cfg.RateLimiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimiter, httpmiddleware.ClientKey))
		}
		if cfg.ChatHandler != nil {
			api.Post("/chat", cfg.ChatHandler.Chat)
			api.Post("/rag/query", cfg.ChatHandler.Query)
		}
		if cfg.OrdersHandler != nil {
			api.Post("/orders", cfg.OrdersHandler.CreateOrder)
			api.Get("/orders/{orderID}", cfg.OrdersHandler.GetOrder)
		}
	})

	// Operator routes exist only when a signing secret is configured.
	if cfg.AdminAuthSecret != "" && cfg.AdminCatalog != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, httpmiddleware.ScopeCatalogAdmin))
			admin.Post("/catalog/reindex", cfg.AdminCatalog.Reindex)
			admin.Get("/catalog/index", cfg.AdminCatalog.IndexStats)
		})
	}

	return r
}
