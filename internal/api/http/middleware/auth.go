package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gpufleet/fleet/internal/auth"
	"github.com/gpufleet/fleet/internal/registry"
)

// AgentAuth authenticates dispatch-protocol calls by resolving the
// bearer credential through the registry. Authentication happens before
// the handler runs, so a bad credential can never cause a side effect.
// A successful lookup also refreshes the agent's last_contact, which is
// the fleet's only liveness signal.
func AgentAuth(registrySvc *registry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		credential := strings.TrimPrefix(header, "Bearer ")
		agent, err := registrySvc.Authenticate(c.Request.Context(), credential)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
			return
		}

		c.Set("agent_id", agent.ID)
		c.Next()
	}
}

// JWTAuth guards operator endpoints with a session token.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := auth.ValidateToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}
