package security

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderAPIKey is the header carrying the caller's API key.
const HeaderAPIKey = "X-API-Key"

// ContextKeyClientID is the gin context key holding the authenticated client id.
const ContextKeyClientID = "clientID"

// APIKeyMiddleware authenticates requests by API key. keys maps key values
// to client ids. A nil or empty map disables authentication and lets every
// request through, which is the local-development default.
func APIKeyMiddleware(keys map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(keys) == 0 {
			c.Next()
			return
		}
		clientID, ok := keys[c.GetHeader(HeaderAPIKey)]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
			return
		}
		c.Set(ContextKeyClientID, clientID)
		c.Next()
	}
}
