package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/confirmations/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/v1/rates", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for _, path := range []string{"/v1/confirmations/abc", "/v1/rates"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.InDelta(t, 1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "503")), 0)
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
