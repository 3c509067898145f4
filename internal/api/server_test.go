package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/netixx/flexsentry/internal/fleet"
	"github.com/netixx/flexsentry/internal/registry"
	"github.com/netixx/flexsentry/internal/runner"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) *fleet.Manager {
	t.Helper()
	toolPath, err := exec.LookPath("true")
	require.NoError(t, err)

	cfg := fleet.Config{
		CurrentHost:    "SERVER1",
		HostsToMonitor: []string{"SERVER1"},
		FeatureName:    "DOORS",
		ToolPath:       toolPath,
		Vendor:         "reprise",
		OptionFilePath: filepath.Join(t.TempDir(), "reprise.opt"),
		Mock:           true,
	}
	m, err := fleet.NewManager(cfg, runner.New(0, 0), nil, nil, registry.New(), zerolog.Nop())
	require.NoError(t, err)
	return m
}

func TestHandleHealthzReturnsOK(t *testing.T) {
	s := New(testManager(t), ":0", 0)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleStatusReportsEveryMonitoredHost(t *testing.T) {
	s := New(testManager(t), ":0", 0)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Hosts, 1)
	assert.Equal(t, "SERVER1", resp.Hosts[0].Host)
}

func TestHandleMetricsServesPrometheusFormat(t *testing.T) {
	s := New(testManager(t), ":0", 0)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestRateLimitRejectsBurstAboveLimit(t *testing.T) {
	s := New(testManager(t), ":0", 1)
	handler := s.routes()

	var last *httptest.ResponseRecorder
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "203.0.113.1:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
}

func TestRateLimitDisabledWhenNonPositive(t *testing.T) {
	s := New(testManager(t), ":0", 0)
	handler := s.routes()

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "203.0.113.2:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
