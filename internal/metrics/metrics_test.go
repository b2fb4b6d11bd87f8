package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	srv := NewServer(":0")

	rec := get(t, srv.Handler, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(t, srv.Handler, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ReadyFailsWithDependency(t *testing.T) {
	down := func(context.Context) error { return errors.New("db down") }
	srv := NewServer(":0", func(context.Context) error { return nil }, down)

	rec := get(t, srv.Handler, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestServer_ExposesDomainMetrics(t *testing.T) {
	RouteDecisions.WithLabelValues("rewrite").Inc()

	rec := get(t, NewServer(":0").Handler, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "domains_route_decisions_total")
}

func TestRegisterPoolMetrics_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	reg := prometheus.NewRegistry()
	RegisterPoolMetrics(reg, nil, rdb)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "redis_pool_total_conns")
	assert.Contains(t, names, "redis_pool_timeouts_total")
	assert.NotContains(t, names, "pgxpool_max_conns")
}
