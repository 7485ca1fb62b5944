package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeout bounds the request context. Paths ending in one of the skip suffixes (the SSE
// stream) keep the connection's own context.
func Timeout(d time.Duration, skipSuffixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, suffix := range skipSuffixes {
			if strings.HasSuffix(c.Request.URL.Path, suffix) {
				c.Next()
				return
			}
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
