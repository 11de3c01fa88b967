package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	"github.com/wolfman30/medorder-assistant/internal/dialogue"
	"github.com/wolfman30/medorder-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medorder-assistant/internal/http/middleware"
	"github.com/wolfman30/medorder-assistant/internal/match"
	"github.com/wolfman30/medorder-assistant/internal/observability/metrics"
	"github.com/wolfman30/medorder-assistant/internal/orders"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

const testSecret = "router-secret"

func newTestRouter(t *testing.T, limiter *httpmiddleware.RateLimiter) http.Handler {
	t.Helper()

	logger := logging.Default()
	store := catalog.NewMemoryStore(
		catalog.Product{ID: "panadol-advance-24", Name: "Panadol Advance", PackSize: "24 tablets", Description: "Paracetamol for pain and fever", Price: 450, Stock: 50, Status: catalog.StatusAvailable},
		catalog.Product{ID: "brufen-400mg-30", Name: "Brufen 400mg", PackSize: "30 tablets", Description: "Ibuprofen", Price: 515, Stock: 50, Status: catalog.StatusAvailable},
	)
	reg := prometheus.NewRegistry()
	m := metrics.NewTurnMetrics(reg)
	index := match.NewIndex(match.NewHashEmbedder(64), match.IndexOptions{}, logger)
	matcher := match.NewMatcher(store, index, match.DefaultOptions(), logger)

	svc := orders.NewService(orders.NewInMemoryRepository(), orders.ServiceOptions{Catalog: store, Metrics: m, Logger: logger})
	engine := dialogue.NewEngine(dialogue.Deps{Catalog: store, Matcher: matcher, Orders: svc, Metrics: m, Logger: logger}, dialogue.Options{})

	return New(&Config{
		Logger:             logger,
		ChatHandler:        handlers.NewChatHandler(engine, logger),
		OrdersHandler:      orders.NewHandler(svc, logger),
		AdminCatalog:       handlers.NewAdminCatalogHandler(handlers.AdminCatalogConfig{Index: index, Catalog: store, Metrics: m, Logger: logger}),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AdminAuthSecret:    testSecret,
		CORSAllowedOrigins: []string{"https://shop.example.com"},
		RateLimiter:        limiter,
	})
}

func serve(router http.Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthEndpoint(t *testing.T) {
	rec := serve(newTestRouter(t, nil), http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouterChatThenMetrics(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, http.MethodPost, "/api/chat", []byte(`{"message":"add 2 panadol advance","sessionId":"s-1"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Added 2")

	metricsRec := serve(router, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, metricsRec.Code)
	assert.Contains(t, metricsRec.Body.String(), `medorder_dialogue_turns_total{intent="add",mode="chat",outcome="ok"} 1`)
}

func TestRouterOrdersEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)
	body, err := json.Marshal(map[string]any{
		"customerName":    "Ama Mensah",
		"customerPhone":   "0244123456",
		"deliveryAddress": "12 Ring Road",
		"orderItems": []map[string]any{
			{"productId": "brufen-400mg-30", "productName": "Brufen 400mg", "quantity": 2, "unitPrice": 5.15},
		},
	})
	require.NoError(t, err)

	rec := serve(router, http.MethodPost, "/api/orders", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var receipt orders.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	require.NotEmpty(t, receipt.OrderID)

	got := serve(router, http.MethodGet, "/api/orders/"+receipt.OrderID, nil, nil)
	assert.Equal(t, http.StatusOK, got.Code)
}

func TestRouterRejectsNonJSON(t *testing.T) {
	router := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("message=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouterAdminRequiresToken(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, http.MethodPost, "/admin/catalog/reindex", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	claims := httpmiddleware.AdminClaims{
		Scope: httpmiddleware.ScopeCatalogAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec = serve(router, http.MethodPost, "/admin/catalog/reindex", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"products":2`)
}

func TestRouterRateLimitsChat(t *testing.T) {
	router := newTestRouter(t, httpmiddleware.NewRateLimiter(0.001, 1))
	headers := map[string]string{"X-Session-Id": "s-1"}
	body := []byte(`{"message":"hello"}`)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/api/chat", body, headers).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodPost, "/api/chat", body, headers).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health", nil, headers).Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(t, nil)
	rec := serve(router, http.MethodOptions, "/api/chat", nil, map[string]string{
		"Origin":                        "https://shop.example.com",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
