package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockalloc/internal/app/apptest"
	"stockalloc/internal/core/apperror"
	"stockalloc/internal/domain/auth"
)

type testServer struct {
	t      *testing.T
	env    *apptest.Env
	router http.Handler
	token  string
}

func newTestServer(t *testing.T, required bool) *testServer {
	t.Helper()
	env := apptest.New(t)
	tokens := auth.NewTokenService(auth.DefaultConfig("test-secret"))
	token, _, err := tokens.Issue("u-1", "alice", nil)
	require.NoError(t, err)

	router := NewRouter(RouterConfig{
		Services:     env.Services,
		Tokens:       tokens,
		AuthRequired: required,
		Now:          func() time.Time { return env.Now },
	})
	return &testServer{t: t, env: env, router: router, token: token}
}

func (s *testServer) do(method, path string, body any) (int, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (s *testServer) mustCreate(path string, body any) string {
	s.t.Helper()
	code, out := s.do(http.MethodPost, path, body)
	require.Equal(s.t, http.StatusCreated, code, out)
	return out["id"].(string)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)
	code, out := s.do(http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", out["status"])

	code, _ = s.do(http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAllocateShipFlow(t *testing.T) {
	s := newTestServer(t, false)

	itemID := s.mustCreate("/api/v1/items", map[string]any{"sku": "SKU-A", "name": "Widget"})
	early := s.mustCreate("/api/v1/batches", map[string]any{
		"itemId": itemID, "lotNo": "L1", "qty": 50, "expiryDate": "2026-03-20",
	})
	late := s.mustCreate("/api/v1/batches", map[string]any{
		"itemId": itemID, "lotNo": "L2", "qty": 100, "expiryDate": "2026-04-15",
	})
	orderID := s.mustCreate("/api/v1/orders", map[string]any{
		"customerRef": "CUST-1",
		"lines":       []map[string]any{{"itemId": itemID, "qty": 75}},
	})

	code, rep := s.do(http.MethodPost, "/api/v1/orders/"+orderID+"/allocate", nil)
	require.Equal(t, http.StatusOK, code, rep)
	assert.Equal(t, "full", rep["outcome"])
	assert.Equal(t, "ALLOCATED", rep["status"])

	lines := rep["lines"].([]any)
	require.Len(t, lines, 1)
	draws := lines[0].(map[string]any)["allocations"].([]any)
	require.Len(t, draws, 2)
	assert.Equal(t, "L1", draws[0].(map[string]any)["batchLot"])
	assert.InDelta(t, 50, draws[0].(map[string]any)["qty"], 1e-9)
	assert.Equal(t, "L2", draws[1].(map[string]any)["batchLot"])
	assert.InDelta(t, 25, draws[1].(map[string]any)["qty"], 1e-9)

	code, b := s.do(http.MethodGet, "/api/v1/batches/"+early, nil)
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 0, b["availableQty"], 1e-9)
	assert.InDelta(t, 5, b["daysToExpiry"], 1e-9)

	code, b = s.do(http.MethodGet, "/api/v1/batches/"+late, nil)
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 75, b["availableQty"], 1e-9)

	code, txs := s.do(http.MethodGet, "/api/v1/transactions?order_id="+orderID+"&type=reserve", nil)
	require.Equal(t, http.StatusOK, code, txs)
	assert.Len(t, txs["items"].([]any), 2)

	code, shipped := s.do(http.MethodPost, "/api/v1/orders/"+orderID+"/ship", map[string]any{"carrier": "DHL"})
	require.Equal(t, http.StatusCreated, code, shipped)
	assert.Equal(t, "SHIPPED", shipped["order"].(map[string]any)["status"])
	assert.Equal(t, "alice", shipped["shipment"].(map[string]any)["actor"])
	assert.Len(t, shipped["consumptions"].([]any), 2)

	code, o := s.do(http.MethodGet, "/api/v1/orders/"+orderID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, o["shipments"].([]any), 1)
}

func TestUndoAllocation(t *testing.T) {
	s := newTestServer(t, false)

	itemID := s.mustCreate("/api/v1/items", map[string]any{"sku": "SKU-U", "name": "Undo me"})
	batchID := s.mustCreate("/api/v1/batches", map[string]any{"itemId": itemID, "lotNo": "L1", "qty": 10})
	orderID := s.mustCreate("/api/v1/orders", map[string]any{
		"customerRef": "CUST-U",
		"lines":       []map[string]any{{"itemId": itemID, "qty": 4}},
	})
	code, _ := s.do(http.MethodPost, "/api/v1/orders/"+orderID+"/allocate", nil)
	require.Equal(t, http.StatusOK, code)

	code, res := s.do(http.MethodPost, "/api/v1/undo", nil)
	require.Equal(t, http.StatusOK, code, res)
	assert.Len(t, res["messages"].([]any), 1)

	_, b := s.do(http.MethodGet, "/api/v1/batches/"+batchID, nil)
	assert.InDelta(t, 10, b["availableQty"], 1e-9)

	_, o := s.do(http.MethodGet, "/api/v1/orders/"+orderID, nil)
	assert.Equal(t, "NEW", o["status"])

	code, hist := s.do(http.MethodGet, "/api/v1/undo/history", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, hist["redo"].([]any), 1)
}

func TestErrors(t *testing.T) {
	s := newTestServer(t, false)

	code, out := s.do(http.MethodGet, "/api/v1/orders/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, apperror.CodeValidation, out["code"])

	code, out = s.do(http.MethodGet, "/api/v1/batches/00000000-0000-0000-0000-000000000001", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, apperror.CodeNotFound, out["code"])

	code, out = s.do(http.MethodPost, "/api/v1/items", map[string]any{"name": "no sku"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, apperror.CodeValidation, out["code"])

	s.mustCreate("/api/v1/items", map[string]any{"sku": "DUP", "name": "one"})
	code, out = s.do(http.MethodPost, "/api/v1/items", map[string]any{"sku": "dup", "name": "two"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, apperror.CodeDuplicate, out["code"])

	code, out = s.do(http.MethodGet, "/api/v1/transactions?type=BOGUS", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, apperror.CodeValidation, out["code"])
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, true)

	code, _ := s.do(http.MethodGet, "/api/v1/items", nil)
	assert.Equal(t, http.StatusOK, code)

	s.token = ""
	code, out := s.do(http.MethodGet, "/api/v1/items", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, apperror.CodeUnauthorized, out["code"])

	s.token = "garbage"
	code, _ = s.do(http.MethodGet, "/api/v1/items", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// health checks stay open
	code, _ = s.do(http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, code)
}
