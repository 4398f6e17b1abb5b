package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Live(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})
	rec := do(t, s.Handler(), "/live")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"status":"alive"`)
}

func TestServer_Ready(t *testing.T) {
	health := NewHealthChecker("test")
	ready := make(chan struct{})
	health.AddCheck("postgres", PingCheck(pingerFunc(func(context.Context) error { return nil })))
	health.AddCheck("voice_events", ReadyCheck(ready))

	s := NewServer(DefaultConfig(), Dependencies{Health: health})

	rec := do(t, s.Handler(), "/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: voice_events", status.Message)
	assert.True(t, status.Checks["postgres"].Healthy)
	assert.Equal(t, ErrNotReady.Error(), status.Checks["voice_events"].Message)

	close(ready)
	rec = do(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthChecker_Timeout(t *testing.T) {
	health := NewHealthChecker("test")
	health.SetTimeout(20 * time.Millisecond)
	health.AddCheck("redis", PingCheck(pingerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))
	health.AddCheck("broken", func(context.Context) error { return errors.New("down") })

	status := health.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: broken, redis", status.Message)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["redis"].Message)
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "xpbot_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := NewServer(DefaultConfig(), Dependencies{Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})
	rec := do(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "xpbot_test_total 1")

	without := NewServer(DefaultConfig(), Dependencies{})
	assert.Equal(t, http.StatusNotFound, do(t, without.Handler(), "/metrics").Code)
}

func TestServer_RecoversPanics(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})
	s.router.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := do(t, s.Handler(), "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
