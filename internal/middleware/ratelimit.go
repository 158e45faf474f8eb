package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/symptom-checker-server/internal/domain"
)

// ClientRateLimiter keeps one token bucket per client IP. Idle clients expire from the
// table after the configured TTL.
type ClientRateLimiter struct {
	limit   rate.Limit
	burst   int
	clients *expirable.LRU[string, *rate.Limiter]
}

// NewClientRateLimiter creates a limiter from configuration.
func NewClientRateLimiter(cfg domain.RateLimitConfig) *ClientRateLimiter {
	rps := cfg.ImageRequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.ImageBurst
	if burst <= 0 {
		burst = 5
	}
	size := cfg.MaxClients
	if size <= 0 {
		size = 10000
	}
	ttl := cfg.ClientTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ClientRateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		clients: expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
	}
}

// Allow reports whether the client may proceed now.
func (l *ClientRateLimiter) Allow(client string) bool {
	lim, ok := l.clients.Get(client)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	// Re-adding refreshes the idle TTL.
	l.clients.Add(client, lim)
	return lim.Allow()
}

// Clients returns the number of tracked clients.
func (l *ClientRateLimiter) Clients() int {
	return l.clients.Len()
}

// Middleware rejects requests over the client's budget with 429.
func (l *ClientRateLimiter) Middleware() gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(1 / float64(l.limit))))
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewAPIError(
				domain.ErrRateLimit, "Too many image uploads. Please wait a moment and try again.", "", GetRequestID(c)))
			return
		}
		c.Next()
	}
}
