package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BBbrighton/qr-suite/internal/auth"
	"github.com/BBbrighton/qr-suite/internal/core"
)

const principalKey = "qrsuite.principal"

// Authenticate resolves the bearer token into a principal. Requests without
// credentials act as Guest. Bad credentials are rejected with 401 when strict
// is set and downgraded to Guest otherwise.
func Authenticate(a *auth.Authenticator, strict bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		p := core.Guest
		if header != "" && a.Enabled() {
			var err error
			p, err = a.FromHeader(header)
			if err != nil {
				if strict {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
					return
				}
				p = core.Guest
			}
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// RequireRole rejects Guest with 401 and principals holding none of roles
// with 403.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal(c)
		if len(p.Roles) == 0 && p.Name == core.Guest.Name {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !p.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// Principal returns the principal set by Authenticate, or Guest.
func Principal(c *gin.Context) core.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(core.Principal); ok {
			return p
		}
	}
	return core.Guest
}
