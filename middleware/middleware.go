// Package middleware protects an inbound Gin API with the tiered rate
// limiter. Requests are keyed by caller identity, taken from a JWT
// subject claim when a secret is configured, falling back to client IP.
package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/finvue/resilience/logger"
	"github.com/finvue/resilience/ratelimit"
)

// DefaultTierClaim is the JWT claim carrying the caller's tier name.
const DefaultTierClaim = "tier"

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Limiter answers admit/deny. Defaults to a limiter over the default
	// tier table.
	Limiter *ratelimit.Limiter
	// KeyFunc extracts the identity and tier from a request. Defaults to
	// JWTKey when JWTSecret is set, IPKey otherwise.
	KeyFunc func(*gin.Context) (identity, tier string)
	// JWTSecret is the HMAC secret for bearer-token identity extraction.
	JWTSecret []byte
	// TierClaim is the claim name the tier is read from. Defaults to
	// DefaultTierClaim.
	TierClaim string
	// Logger defaults to the global logger.
	Logger *logger.Logger
}

// RateLimit returns a Gin middleware that applies per-identity,
// per-tier token bucket rate limiting. Every response carries the
// X-RateLimit-* headers; denials answer 429 with Retry-After.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NewLimiter(ratelimit.Config{})
	}
	if cfg.TierClaim == "" {
		cfg.TierClaim = DefaultTierClaim
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetGlobalLogger()
	}
	if cfg.KeyFunc == nil {
		if len(cfg.JWTSecret) > 0 {
			cfg.KeyFunc = JWTKey(cfg.JWTSecret, cfg.TierClaim)
		} else {
			cfg.KeyFunc = IPKey
		}
	}
	log := cfg.Logger.WithComponent("ratelimit-middleware")

	return func(c *gin.Context) {
		identity, tier := cfg.KeyFunc(c)
		res := cfg.Limiter.Check(identity, tier)
		res.SetHeaders(c.Writer.Header())

		if !res.Allowed {
			retryAfter := int(math.Ceil(res.ResetIn.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			log.Debug("request denied", logger.Fields(
				logger.FieldIdentity, identity,
				logger.FieldTier, tier,
			))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":               "Rate limit exceeded",
				"retry_after_seconds": retryAfter,
			})
			return
		}
		c.Next()
	}
}

// IPKey keys requests by client IP with no tier claim; unknown tiers
// resolve to the most restrictive configured tier.
func IPKey(c *gin.Context) (string, string) {
	return c.ClientIP(), ""
}

// JWTKey returns a key function that reads the caller identity from the
// bearer token's subject claim and the tier from tierClaim. Requests
// without a valid token fall back to IPKey.
func JWTKey(secret []byte, tierClaim string) func(*gin.Context) (string, string) {
	return func(c *gin.Context) (string, string) {
		raw := bearerToken(c)
		if raw == "" {
			return IPKey(c)
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil || !token.Valid {
			return IPKey(c)
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return IPKey(c)
		}
		subject, err := claims.GetSubject()
		if err != nil || subject == "" {
			return IPKey(c)
		}
		tier, _ := claims[tierClaim].(string)
		return subject, tier
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
