package httpx

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// contextUserIDKey and contextRoleKey are the gin context keys the auth
// middleware sets; handlers read them via UserID/Role helpers.
const (
	contextUserIDKey = "userId"
	contextRoleKey   = "role"
)

// Claims is the minimal identity the HTTP edge needs out of a verified
// token, per spec.md §6: "payload yields {userId, role}".
type Claims struct {
	UserID string
	Role   string
}

// TokenVerifier is satisfied by internal/auth.Verifier; declared here so
// the edge depends only on a contract, not on the auth package's
// internals.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

// extractToken reads the bearer token from either the Authorization
// header or the x-auth-token header, per spec.md §6's auth contract.
func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimPrefix(header, "Bearer ")
		}
	}
	return c.GetHeader("x-auth-token")
}

// Auth verifies the bearer token and sets userId/role on the context.
// Missing or invalid token -> 401, per spec.md §6.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			Fail(c, http.StatusUnauthorized, "missing authorization")
			return
		}
		claims, err := verifier.Verify(token)
		if err != nil {
			Fail(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(contextUserIDKey, claims.UserID)
		c.Set(contextRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated user's role is
// one of roles. Must run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(contextRoleKey)
		roleStr, _ := role.(string)
		for _, r := range roles {
			if r == roleStr {
				c.Next()
				return
			}
		}
		Fail(c, http.StatusForbidden, "insufficient role")
	}
}

// UserID returns the authenticated caller's id, set by Auth.
func UserID(c *gin.Context) string {
	v, _ := c.Get(contextUserIDKey)
	s, _ := v.(string)
	return s
}

// Role returns the authenticated caller's role, set by Auth.
func Role(c *gin.Context) string {
	v, _ := c.Get(contextRoleKey)
	s, _ := v.(string)
	return s
}
