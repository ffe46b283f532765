package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// Principal is the authenticated caller.
type Principal struct {
	ID   string
	Role string
}

func (p Principal) IsAdmin() bool   { return p.Role == RoleAdmin }
func (p Principal) IsTeacher() bool { return p.Role == RoleTeacher }
func (p Principal) IsStudent() bool { return p.Role == RoleStudent }

// Authenticate enforces bearer JWT tokens signed with HS256.
func Authenticate(s *Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "code": "unauthenticated"})
			return
		}
		claims, err := s.Parse(strings.TrimSpace(authz[len("bearer "):]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthenticated"})
			return
		}
		c.Set(principalKey, Principal{ID: claims.Subject, Role: claims.Role})
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := FromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated", "code": "unauthenticated"})
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role", "code": "forbidden"})
	}
}

// FromContext returns the principal set by Authenticate.
func FromContext(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
