package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BBbrighton/qr-suite/internal/rate"
)

// RateLimit enforces a per-IP token bucket for the current route. A nil
// limiter lets everything through.
func RateLimit(lim *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !lim.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
			return
		}
		c.Next()
	}
}
