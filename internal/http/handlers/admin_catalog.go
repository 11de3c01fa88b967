package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	"github.com/wolfman30/medorder-assistant/internal/events"
	httpmiddleware "github.com/wolfman30/medorder-assistant/internal/http/middleware"
	"github.com/wolfman30/medorder-assistant/internal/match"
	"github.com/wolfman30/medorder-assistant/internal/observability/metrics"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

type indexBuilder interface {
	Build(ctx context.Context, reader catalog.Reader) (match.IndexStats, error)
	Stats() (match.IndexStats, error)
}

type eventAppender interface {
	Append(ctx context.Context, aggregate, correlationID string, evt events.Event, opts ...events.EnvelopeOption) (events.Envelope, error)
}

// AdminCatalogConfig wires the operator catalog endpoints. Events is
// optional; when set every successful rebuild is recorded in the outbox.
type AdminCatalogConfig struct {
	Index   indexBuilder
	Catalog catalog.Reader
	Events  eventAppender
	Metrics *metrics.TurnMetrics
	Logger  *logging.Logger
}

// AdminCatalogHandler rebuilds and reports on the match index.
type AdminCatalogHandler struct {
	index   indexBuilder
	catalog catalog.Reader
	events  eventAppender
	metrics *metrics.TurnMetrics
	logger  *logging.Logger
}

func NewAdminCatalogHandler(cfg AdminCatalogConfig) *AdminCatalogHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AdminCatalogHandler{
		index:   cfg.Index,
		catalog: cfg.Catalog,
		events:  cfg.Events,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Reindex rebuilds the embedding index from the live catalog.
// Route: POST /admin/catalog/reindex
func (h *AdminCatalogHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.index == nil || h.catalog == nil {
		http.Error(w, "index not configured", http.StatusServiceUnavailable)
		return
	}

	requester := ""
	if claims, ok := httpmiddleware.AdminClaimsFromContext(r.Context()); ok {
		requester = claims.Subject
	}

	stats, err := h.index.Build(r.Context(), h.catalog)
	h.metrics.ObserveReindex(err == nil)
	if err != nil {
		h.logger.Error("catalog reindex failed", "error", err, "requester", requester)
		if errors.Is(err, catalog.ErrUnavailable) {
			http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "reindex failed", http.StatusInternalServerError)
		return
	}

	if h.events != nil {
		evt := events.CatalogReindexedV1{
			Products:  stats.Products,
			Vectors:   stats.Vectors,
			BuiltAt:   stats.BuiltAt,
			Requester: requester,
		}
		if _, err := h.events.Append(r.Context(), events.CatalogIndexAggregate, requester, evt); err != nil {
			h.logger.Warn("failed to record reindex event", "error", err)
		}
	}

	h.logger.Info("catalog reindexed", "products", stats.Products, "vectors", stats.Vectors, "requester", requester)
	writeJSON(w, http.StatusOK, stats)
}

// IndexStats reports the index currently serving searches.
// Route: GET /admin/catalog/index
func (h *AdminCatalogHandler) IndexStats(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.index == nil {
		http.Error(w, "index not configured", http.StatusServiceUnavailable)
		return
	}
	stats, err := h.index.Stats()
	if errors.Is(err, match.ErrIndexNotReady) {
		http.Error(w, "index not built yet", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
