package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimitGroupsHaveSeparateBuckets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{
		GroupFor: func(c *gin.Context) string {
			if c.FullPath() == "/api/v1/runs" {
				return "LIST"
			}
			return ""
		},
		Limiter: NewRateLimiter(func() time.Time { return now }),
		Rules: map[string]RateLimitRule{
			"DEFAULT": {Rate: 5, Burst: 10},
			"LIST":    {Rate: 1, Burst: 2},
		},
	}))
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	r.GET("/api/v1/runs/:id", ok)
	r.GET("/api/v1/runs", ok)

	steps := []struct {
		path string
		want int
	}{
		{"/api/v1/runs/r1", http.StatusNoContent},
		{"/api/v1/runs", http.StatusNoContent},
		{"/api/v1/runs/r2", http.StatusNoContent},
		{"/api/v1/runs", http.StatusNoContent},
		{"/api/v1/runs", http.StatusTooManyRequests},
		{"/api/v1/runs/r3", http.StatusNoContent},
	}
	for i, step := range steps {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, step.path, nil))
		if resp.Code != step.want {
			t.Fatalf("step %d %s: status = %d, want %d", i, step.path, resp.Code, step.want)
		}
	}
}

func TestRateLimit429IncludesRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })

	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{
		Limiter: limiter,
		Rules: map[string]RateLimitRule{
			"DEFAULT": {Rate: 1, Burst: 1},
		},
	}))
	r.GET("/api/v1/limited", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	resp1 := httptest.NewRecorder()
	r.ServeHTTP(resp1, httptest.NewRequest(http.MethodGet, "/api/v1/limited", nil))
	if resp1.Code != http.StatusOK {
		t.Fatalf("expected first request 200, got %d", resp1.Code)
	}

	resp2 := httptest.NewRecorder()
	r.ServeHTTP(resp2, httptest.NewRequest(http.MethodGet, "/api/v1/limited", nil))
	if resp2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp2.Code)
	}
	if resp2.Header().Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q, want 1", resp2.Header().Get("Retry-After"))
	}

	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				RetryAfterMs int `json:"retryAfterMs"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error.Code != "rate_limited" || payload.Error.Details.RetryAfterMs != 1000 {
		t.Fatalf("error = %+v, want rate_limited after 1000ms", payload.Error)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })
	rule := RateLimitRule{Rate: 2, Burst: 1}

	if ok, _ := limiter.Allow("k", rule); !ok {
		t.Fatalf("first request denied")
	}
	ok, wait := limiter.Allow("k", rule)
	if ok || wait != 500*time.Millisecond {
		t.Fatalf("Allow = %v, %s; want denied for 500ms", ok, wait)
	}
	now = now.Add(500 * time.Millisecond)
	if ok, _ := limiter.Allow("k", rule); !ok {
		t.Fatalf("request after refill denied")
	}
}
