package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()

	metrics, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewHTTPMetrics returned error: %v", err)
	}

	r := gin.New()
	r.Use(metrics.Handler())
	r.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}

	count := testutil.ToFloat64(metrics.Requests.WithLabelValues("GET", "/ping", "200"))
	if count != 3 {
		t.Fatalf("expected 3 recorded requests, got %v", count)
	}
}

func TestHTTPMetricsDoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()

	if _, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry}); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry}); err != nil {
		t.Fatalf("second registration should reuse collectors, got error: %v", err)
	}
}
