package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/okasha/maarif/internal/app/models"
	"github.com/okasha/maarif/internal/pkg/apperrors"
	"github.com/okasha/maarif/internal/pkg/ratelimit"
)

// RateLimitMiddleware rejects requests over the class ceiling before
// any business logic runs.
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
}

// NewRateLimitMiddleware creates a new RateLimitMiddleware
func NewRateLimitMiddleware(limiter *ratelimit.Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

// Limit enforces the given class. Counters are keyed by client IP, plus
// the user ID when the request is already authenticated. Admins are
// exempt.
func (m *RateLimitMiddleware) Limit(class ratelimit.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if user, ok := GetCurrentUser(c); ok {
			if user.Role == models.RoleAdmin {
				c.Next()
				return
			}
			key = fmt.Sprintf("%s:%d", key, user.ID)
		}

		if !m.limiter.Allow(c.Request.Context(), key, class) {
			HandleAPIError(c, apperrors.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
