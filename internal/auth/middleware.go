package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinMiddleware returns a gin.HandlerFunc that guards a route group with
// bearer-token JWT validation, generalizing AuthMiddleware.ExtractAndValidateToken
// to the gin surfaces cmd/http-wrapper and cmd/query-http-wrapper serve on.
// Validated claims are stashed on the context under "claims" for handlers
// that want tenant/user identity.
func (am *AuthMiddleware) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		claims, err := am.ExtractAndValidateToken(c.Request.Context(), header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}
