package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_CountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/model/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/model/1", "/api/model/2", "/nowhere"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/model/:id", "200")); got != 2 {
		t.Fatalf("expected 2 requests on the model route, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}
}

func TestHandler_ExposesNamespace(t *testing.T) {
	m := New()
	m.ModelsCreated.Inc()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "fitsbook_models_created_total 1") {
		t.Fatalf("metric missing from exposition:\n%s", body)
	}
}

func TestEventLabel(t *testing.T) {
	cases := map[string]string{
		"history-42":     "history",
		"model-created":  "model-created",
		"training-ended": "training-ended",
		"news":           "news",
	}
	for in, want := range cases {
		if got := EventLabel(in); got != want {
			t.Fatalf("EventLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
