package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"groundedtheory.dev/core/internal/ratelimit"
)

// RateLimit enforces a sliding-window quota per (client_ip, owner_id)
// ahead of an expensive endpoint (task creation). 429 with Retry-After on
// exceeded.
func RateLimit(limiter ratelimit.Limiter, namespace ratelimit.Namespace, window time.Duration, max int) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := OwnerID(c.Request.Context())
		if session == "" {
			session = "anonymous"
		}

		res, err := limiter.Check(c.Request.Context(), namespace, c.ClientIP(), session, window, max)
		if err != nil {
			c.Next() // fail open: a limiter outage shouldn't block the pipeline
			return
		}
		if !res.Allowed {
			c.Header("Retry-After", formatSeconds(res.RetryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "RATE_LIMITED"})
			return
		}
		c.Next()
	}
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
