package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/finvue/resilience/middleware"
	"github.com/finvue/resilience/ratelimit"
)

var testSecret = []byte("test-secret")

func newRouter(cfg middleware.RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RateLimit(cfg))
	r.GET("/balance", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func signedToken(t *testing.T, subject, tier string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"tier": tier,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func tinyLimiter() *ratelimit.Limiter {
	return ratelimit.NewLimiter(ratelimit.Config{
		Tiers: []ratelimit.Tier{
			{Name: "free", MaxTokens: 2, RefillPerSecond: 0.001, CostPerRequest: 1},
			{Name: "pro", MaxTokens: 100, RefillPerSecond: 10, CostPerRequest: 1},
		},
	})
}

func TestRateLimit_AllowsWithinBudget(t *testing.T) {
	r := newRouter(middleware.RateLimitConfig{Limiter: tinyLimiter()})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/balance", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get(ratelimit.HeaderLimit) == "" {
		t.Error("expected X-RateLimit-Limit header on allowed response")
	}
	if rr.Header().Get(ratelimit.HeaderRemaining) == "" {
		t.Error("expected X-RateLimit-Remaining header on allowed response")
	}
}

func TestRateLimit_DeniesOverBudget(t *testing.T) {
	r := newRouter(middleware.RateLimitConfig{Limiter: tinyLimiter()})

	var rr *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		rr = httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest("GET", "/balance", http.NoBody))
	}

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	retryAfter, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	if err != nil || retryAfter <= 0 {
		t.Errorf("expected positive Retry-After, got %q", rr.Header().Get("Retry-After"))
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body["error"] != "Rate limit exceeded" {
		t.Errorf("unexpected error message: %v", body["error"])
	}
}

func TestRateLimit_JWTIdentityAndTier(t *testing.T) {
	r := newRouter(middleware.RateLimitConfig{
		Limiter:   tinyLimiter(),
		JWTSecret: testSecret,
	})

	// The pro tier admits well beyond the free budget.
	token := signedToken(t, "user-7", "pro")
	for i := 0; i < 10; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/balance", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 for pro tier, got %d", i+1, rr.Code)
		}
	}
}

func TestRateLimit_UnknownTierUsesMostRestrictive(t *testing.T) {
	r := newRouter(middleware.RateLimitConfig{
		Limiter:   tinyLimiter(),
		JWTSecret: testSecret,
	})

	token := signedToken(t, "user-8", "platinum")
	var rr *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		rr = httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/balance", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(rr, req)
	}

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected unknown tier denied at free budget, got %d", rr.Code)
	}
}

func TestRateLimit_InvalidTokenFallsBackToIP(t *testing.T) {
	r := newRouter(middleware.RateLimitConfig{
		Limiter:   tinyLimiter(),
		JWTSecret: testSecret,
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/balance", http.NoBody)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected invalid token to fall back to IP keying, got %d", rr.Code)
	}
}

func TestRateLimit_IdentitiesAreIndependent(t *testing.T) {
	r := newRouter(middleware.RateLimitConfig{
		Limiter:   tinyLimiter(),
		JWTSecret: testSecret,
	})

	// Exhaust one identity's budget.
	tokenA := signedToken(t, "user-a", "free")
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/balance", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+tokenA)
		r.ServeHTTP(rr, req)
	}

	// Another identity still gets through.
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/balance", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "user-b", "free"))
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected independent identity admitted, got %d", rr.Code)
	}
}
