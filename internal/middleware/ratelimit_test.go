package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimiter_AllowAndDeny(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiterWithNow(2, time.Minute, func() time.Time { return clock })
	defer rl.Close()

	if ok, _ := rl.Allow("ip"); !ok {
		t.Fatalf("expected allow")
	}
	if ok, _ := rl.Allow("ip"); !ok {
		t.Fatalf("expected allow")
	}
	clock = clock.Add(20 * time.Second)
	ok, retry := rl.Allow("ip")
	if ok {
		t.Fatalf("expected deny")
	}
	if retry != 40*time.Second {
		t.Fatalf("expected 40s until reset, got %v", retry)
	}
	if ok, _ := rl.Allow("other"); !ok {
		t.Fatalf("keys must be limited independently")
	}

	clock = clock.Add(time.Minute)
	if ok, _ := rl.Allow("ip"); !ok {
		t.Fatalf("expected allow after window")
	}
}

func TestRateLimiter_Evict(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiterWithNow(1, time.Minute, func() time.Time { return clock })
	defer rl.Close()

	rl.Allow("a")
	clock = clock.Add(2 * time.Minute)
	rl.evict()

	rl.mu.Lock()
	n := len(rl.windows)
	rl.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected expired windows to be evicted, %d left", n)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()

	var rejected []string
	r := gin.New()
	r.POST("/api/token", RateLimitMiddleware(rl, func(route string) { rejected = append(rejected, route) }), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/token", nil))
		if w.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, w.Code)
		}
		if want == http.StatusTooManyRequests && w.Header().Get("Retry-After") == "" {
			t.Fatalf("expected Retry-After header")
		}
	}
	if len(rejected) != 1 || rejected[0] != "/api/token" {
		t.Fatalf("unexpected rejections %v", rejected)
	}
}
