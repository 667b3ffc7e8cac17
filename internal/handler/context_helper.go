package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cadenza-app/lesson-api/internal/middleware"
	"github.com/cadenza-app/lesson-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// dateQuery parses a YYYY-MM-DD query parameter, falling back to def when
// the parameter is absent.
func dateQuery(c *gin.Context, name string, def time.Time) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return time.Parse("2006-01-02", raw)
}
