package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/eis-ingest/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeStats struct {
	stats *model.LedgerStats
	err   error
}

func (f fakeStats) Stats(context.Context) (*model.LedgerStats, error) { return f.stats, f.err }

func TestHealth(t *testing.T) {
	h := NewRouter(fakeStats{}, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestStatus(t *testing.T) {
	last := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	h := NewRouter(fakeStats{stats: &model.LedgerStats{ProcessedFiles: 12, Contracts: 10, LastProcessedDate: &last}}, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got model.LedgerStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, int64(12), got.ProcessedFiles)
	assert.Equal(t, int64(10), got.Contracts)
	assert.True(t, last.Equal(*got.LastProcessedDate))
}

func TestStatus_StoreError(t *testing.T) {
	h := NewRouter(fakeStats{err: errors.New("conn refused")}, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestCORS(t *testing.T) {
	h := NewRouter(fakeStats{}, []string{"https://dash.example"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dash.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "https://dash.example", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	NewRouter(fakeStats{}, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestServe_Shutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, NewRouter(fakeStats{}, nil)) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestServe_ListenError(t *testing.T) {
	err := Serve(context.Background(), "bad-addr", NewRouter(fakeStats{}, nil))
	assert.Error(t, err)
}
