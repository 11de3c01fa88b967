package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/medorder-assistant/internal/config"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Port:                "0",
		CatalogSeedPath:     "../../testdata/catalog.yaml",
		EmbeddingProvider:   "hash",
		EmbeddingDimensions: 128,
		Currency:            "USD",
		PaymentMethod:       "cash_on_delivery",
		MaxQuantityPerLine:  999,
		RateLimitRPS:        100,
		RateLimitBurst:      100,
		ShutdownGrace:       time.Second,
	}
}

func TestSetupMetricsExposesTurnCounters(t *testing.T) {
	handler, m := setupMetrics()
	require.NotNil(t, handler)
	require.NotNil(t, m)

	m.ObserveTurn("chat", "add", "added", 0.01)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "medorder_dialogue_turns_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHealthChecksOnlyForConfiguredBackends(t *testing.T) {
	assert.Empty(t, healthChecks(nil, nil))
}

func TestBuildServerInMemory(t *testing.T) {
	srv, err := buildServer(context.Background(), testConfig(), logging.New("error"))
	require.NoError(t, err)
	t.Cleanup(srv.close)
	assert.Nil(t, srv.relay)

	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := `{"message":"add 2 panadol","sessionId":"api-test"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Response       string `json:"response"`
		UpdatedContext struct {
			Cart []struct {
				ProductID string `json:"productId"`
				Quantity  int    `json:"quantity"`
			} `json:"cart"`
		} `json:"updatedContext"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.UpdatedContext.Cart, 1)
	assert.Equal(t, 2, resp.UpdatedContext.Cart[0].Quantity)
}

func TestBuildServerWithRedisHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()

	srv, err := buildServer(context.Background(), cfg, logging.New("error"))
	require.NoError(t, err)
	t.Cleanup(srv.close)
	require.NotNil(t, srv.redis)

	mr.SetError("ERR injected failure")
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBuildServerBadSeed(t *testing.T) {
	cfg := testConfig()
	cfg.CatalogSeedPath = "missing.yaml"
	_, err := buildServer(context.Background(), cfg, logging.New("error"))
	require.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, testConfig(), logging.New("error")) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
