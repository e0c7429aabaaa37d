package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/questland/heimdall/service"
)

// Context keys populated by the auth middleware.
const (
	ContextIdentity = "identity"
	ContextRole     = "role"
)

// AuthMiddleware creates middleware that verifies the bearer claim token
// statelessly on every protected request.
func AuthMiddleware(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		bundle, err := auth.VerifyClaimToken(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			c.Abort()
			return
		}

		c.Set(ContextIdentity, bundle.Subject)
		c.Set(ContextRole, bundle.Role)
		c.Next()
	}
}
