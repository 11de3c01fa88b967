package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

func newTestRouter(svc *Service) http.Handler {
	h := NewHandler(svc, logging.Default())
	r := chi.NewRouter()
	r.Post("/api/orders", h.CreateOrder)
	r.Get("/api/orders/{orderID}", h.GetOrder)
	return r
}

func postOrder(t *testing.T, router http.Handler, p Payload) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(p)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateOrder_Success(t *testing.T) {
	router := newTestRouter(NewService(NewInMemoryRepository(), ServiceOptions{}))

	w := postOrder(t, router, validPayload())
	require.Equal(t, http.StatusCreated, w.Code)

	var receipt Receipt
	require.NoError(t, json.NewDecoder(w.Body).Decode(&receipt))
	assert.NotEmpty(t, receipt.OrderID)

	get := httptest.NewRequest(http.MethodGet, "/api/orders/"+receipt.OrderID, nil)
	gw := httptest.NewRecorder()
	router.ServeHTTP(gw, get)
	require.Equal(t, http.StatusOK, gw.Code)

	var order Order
	require.NoError(t, json.NewDecoder(gw.Body).Decode(&order))
	assert.Equal(t, "Ama Mensah", order.CustomerName)
	assert.Equal(t, "14.15", order.Total.String())
}

func TestCreateOrder_ReplayReturnsOK(t *testing.T) {
	router := newTestRouter(NewService(NewInMemoryRepository(), ServiceOptions{Idempotency: NewMemoryIdempotencyStore()}))
	p := validPayload()
	p.IdempotencyKey = "same"

	require.Equal(t, http.StatusCreated, postOrder(t, router, p).Code)
	assert.Equal(t, http.StatusOK, postOrder(t, router, p).Code)
}

func TestCreateOrder_IdempotencyKeyHeader(t *testing.T) {
	repo := NewInMemoryRepository()
	router := newTestRouter(NewService(repo, ServiceOptions{Idempotency: NewMemoryIdempotencyStore()}))
	body, err := json.Marshal(validPayload())
	require.NoError(t, err)

	codes := make([]int, 0, 2)
	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
		req.Header.Set("Idempotency-Key", "client-key-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusOK}, codes)
	assert.Equal(t, 1, repo.Count())
}

func TestCreateOrder_Errors(t *testing.T) {
	failing := NewInMemoryRepository()
	failing.SetFailure(errors.New("db down"))

	soldOut := testCatalog()
	require.NoError(t, soldOut.SetStock("panadol-advance-24", 1))

	tests := []struct {
		name    string
		svc     *Service
		payload Payload
		want    int
	}{
		{"invalid", NewService(NewInMemoryRepository(), ServiceOptions{}), Payload{CustomerName: "x"}, http.StatusBadRequest},
		{"stock changed", NewService(NewInMemoryRepository(), ServiceOptions{Catalog: soldOut}), validPayload(), http.StatusConflict},
		{"store down", NewService(failing, ServiceOptions{}), validPayload(), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postOrder(t, newTestRouter(tt.svc), tt.payload)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCreateOrder_BadJSON(t *testing.T) {
	router := newTestRouter(NewService(NewInMemoryRepository(), ServiceOptions{}))
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrder_BodyTooLarge(t *testing.T) {
	repo := NewInMemoryRepository()
	router := newTestRouter(NewService(repo, ServiceOptions{}))
	body := `{"customerName":"` + strings.Repeat("a", maxOrderBody) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 0, repo.Count())
}

func TestGetOrder_NotFound(t *testing.T) {
	router := newTestRouter(NewService(NewInMemoryRepository(), ServiceOptions{}))
	req := httptest.NewRequest(http.MethodGet, "/api/orders/missing", nil).WithContext(context.Background())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
