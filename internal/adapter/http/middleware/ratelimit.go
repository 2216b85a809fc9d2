package middleware

import (
	"maps"
	"strconv"
	"time"

	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule is the budget of one endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the rate limits per endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"ledger_write": {Limit: 30, Window: time.Minute},
		"topups":       {Limit: 20, Window: time.Minute},
		"reads":        {Limit: 120, Window: time.Minute},
		"rates_public": {Limit: 60, Window: time.Minute},
		"rates_feed":   {Limit: 10, Window: time.Minute},
		"webhooks":     {Limit: 600, Window: time.Minute},
	}
}

// MergeRateLimitRules lays overrides over the defaults.
func MergeRateLimitRules(overrides map[string]RateLimitRule) map[string]RateLimitRule {
	rules := DefaultRateLimitRules()
	maps.Copy(rules, overrides)
	return rules
}

// RateLimiter throttles one endpoint group. Limiter errors fail open.
func RateLimiter(limiter ports.RateLimiter, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitSubject(c) + ":" + group

		d, err := limiter.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retryAfter := max(int64(time.Until(d.ResetAt).Seconds()), 1)
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// rateLimitSubject keys authenticated callers by user and everyone else by IP.
func rateLimitSubject(c *gin.Context) string {
	if p, ok := PrincipalFrom(c); ok {
		return "user:" + p.UserID
	}
	return "ip:" + c.ClientIP()
}
