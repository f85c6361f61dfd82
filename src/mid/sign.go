package mid

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Sign rejects requests whose bearer token is not accepted by valid. A
// token may also be passed as the token query parameter.
func Sign(valid func(token string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		sign := c.GetHeader("Authorization")
		if sign == "" || !strings.HasPrefix(sign, "Bearer ") {
			if c.Query("token") == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
				return
			}
			sign = c.Query("token")
		}
		sign = strings.TrimPrefix(sign, "Bearer ")
		if !valid(sign) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}
		c.Set(TokenKey, sign)
		c.Next()
	}
}

// TokenKey is the gin context key holding the accepted token.
const TokenKey = "token"
