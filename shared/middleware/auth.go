package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const tokenContextKey = "token"

// TokenMiddleware resolves the bearer credential for the request: the
// ":token" path segment when present, otherwise an "Authorization: Bearer"
// header. It never rejects; handlers decide what an absent token means.
func TokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		if token == "" {
			token = bearerToken(c.GetHeader("Authorization"))
		}
		c.Set(tokenContextKey, token)
		c.Next()
	}
}

func bearerToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetToken returns the token resolved by TokenMiddleware, falling back to
// the path parameter when the middleware is not installed.
func GetToken(c *gin.Context) string {
	if token, ok := c.Get(tokenContextKey); ok {
		return token.(string)
	}
	return c.Param("token")
}

// RedactToken keeps the first four characters of a token for log lines.
func RedactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
