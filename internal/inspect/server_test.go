package inspect

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/options"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/region"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
)

func newBlock(t *testing.T, finalize bool) *rtconfig.Block {
	t.Helper()
	r, err := region.Reserve()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Release() })

	b := rtconfig.New(r)
	if !finalize {
		return b
	}
	require.NoError(t, b.InitializeOnce(rtconfig.Registration{Name: "options", Register: func(b *rtconfig.Builder) error {
		return b.Options().SetOptions("maxCallStackDepth=64", false)
	}}))
	_, err = b.Finalize()
	require.NoError(t, err)
	return b
}

func newServer(t *testing.T, b *rtconfig.Block, cfg *config.Config) (*Server, *monitoring.Metrics) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
		cfg.RateLimit.Enabled = false
	}
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)
	return New(b, cfg, reg, m, nil), m
}

func get(t *testing.T, s *Server, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w
}

func TestHealth(t *testing.T) {
	var body struct {
		Status string `json:"status"`
		State  string `json:"state"`
		Frozen bool   `json:"frozen"`
	}

	s, _ := newServer(t, newBlock(t, true), nil)
	w := get(t, s, "/health", &body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "frozen", body.State)
	assert.True(t, body.Frozen)

	s, _ = newServer(t, newBlock(t, false), nil)
	w = get(t, s, "/health", &body)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "starting", body.Status)
	assert.Equal(t, "uninitialized", body.State)
}

func TestConfig(t *testing.T) {
	b := newBlock(t, true)
	s, _ := newServer(t, b, nil)

	var snap rtconfig.Snapshot
	w := get(t, s, "/config", &snap)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, b.Snapshot(), snap)
	assert.Equal(t, "frozen", snap.State)
}

func TestOptions(t *testing.T) {
	s, _ := newServer(t, newBlock(t, true), nil)

	var all struct {
		Options []options.Entry `json:"options"`
		Count   int             `json:"count"`
	}
	get(t, s, "/options", &all)
	assert.Equal(t, int(options.NumOptions), all.Count)

	var changed struct {
		Options []options.Entry `json:"options"`
		Count   int             `json:"count"`
	}
	get(t, s, "/options?changed=true", &changed)
	require.Equal(t, 1, changed.Count)
	assert.Equal(t, "maxCallStackDepth", changed.Options[0].Name)

	var one options.Entry
	w := get(t, s, "/options/maxCallStackDepth", &one)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "64", one.Value)
	assert.False(t, one.IsDefault)

	w = get(t, s, "/options/useWarpDrive", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompressedResponses(t *testing.T) {
	s, _ := newServer(t, newBlock(t, true), nil)

	req := httptest.NewRequest(http.MethodGet, "/options", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(zr).Decode(&body))
	assert.Equal(t, int(options.NumOptions), body.Count)
}

func TestMetricsEndpoint(t *testing.T) {
	s, m := newServer(t, newBlock(t, true), nil)
	m.VMCreated()

	get(t, s, "/health", nil)
	w := get(t, s, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "jsruntime_vms_active 1")
	assert.Contains(t, w.Body.String(), `jsruntime_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestRoutesAreReadOnly(t *testing.T) {
	b := newBlock(t, true)
	s, _ := newServer(t, b, nil)
	before := b.Snapshot()

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		for _, path := range []string{"/config", "/options", "/options/useJIT"} {
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(method, path, nil))
			assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", method, path)
		}
	}
	assert.Equal(t, before, b.Snapshot())
}

func TestRateLimited(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1, Enabled: true}
	s, _ := newServer(t, newBlock(t, true), cfg)

	assert.Equal(t, http.StatusOK, get(t, s, "/health", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, s, "/health", nil).Code)
}

func TestServeShutsDown(t *testing.T) {
	s, _ := newServer(t, newBlock(t, true), nil)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
