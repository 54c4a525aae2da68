package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestPing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/ping", Ping)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "PONG [") || !strings.HasSuffix(body, " GMT]") {
		t.Fatalf("unexpected body %q", body)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(body, "PONG ["), "]")
	if _, err := time.Parse(http.TimeFormat, stamp); err != nil {
		t.Fatalf("timestamp %q: %v", stamp, err)
	}
}

func TestVersionCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &VersionHandler{
		Version:       "1.2.3",
		TargetSchema:  3,
		StoredVersion: func() (int, error) { return 2, nil },
	}
	r := gin.New()
	r.GET("/api/version", h.Check)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["version"] != "1.2.3" || resp["schema_version"] != float64(2) || resp["schema_current"] != false {
		t.Fatalf("unexpected response %v", resp)
	}
}
