package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsMiddleware_LabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /protocol-applications/{application_id}/schedule", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := MetricsMiddleware(mux)

	route := "GET /protocol-applications/{application_id}/schedule"
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(route, "GET", "404"))

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/protocol-applications/"+id+"/schedule", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	}

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(route, "GET", "404"))
	assert.Equal(t, before+2, after)
}

func TestRouteLabel_Unmatched(t *testing.T) {
	assert.Equal(t, "unmatched", routeLabel(httptest.NewRequest("GET", "/nowhere", nil)))
}
