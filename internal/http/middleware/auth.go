// README: JWT auth middleware; pins caller identity onto the gin context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CallerUIDKey  = "caller_uid"
	CallerRoleKey = "caller_role"
)

// Claims is the token payload: subject is the requester or vehicle id,
// role is "requester", "driver", or "operator".
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth validates the bearer token and, when roles are given, requires one of
// them. Websocket clients may pass the token as a "token" query parameter
// since browsers cannot set headers on an upgrade request.
func Auth(secret string, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth token"})
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if len(roles) > 0 && !roleAllowed(claims.Role, roles) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}

		c.Set(CallerUIDKey, claims.Subject)
		c.Set(CallerRoleKey, claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

func roleAllowed(role string, allowed []string) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// CallerUID returns the authenticated subject.
func CallerUID(c *gin.Context) string {
	return c.GetString(CallerUIDKey)
}

// CallerRole returns the authenticated role.
func CallerRole(c *gin.Context) string {
	return c.GetString(CallerRoleKey)
}
