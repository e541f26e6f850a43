package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userKey = "auth_user"

// Middleware rejects requests without a valid token. The token comes from
// the Authorization header or, for websocket upgrades, the token query
// parameter. A nil service lets everything through.
func Middleware(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s == nil {
			c.Next()
			return
		}
		token := TokenFrom(c.Request)
		user, err := s.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// TokenFrom extracts the bearer token of r.
func TokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// UserFrom returns the user the middleware stored on c.
func UserFrom(c *gin.Context) (User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return User{}, false
	}
	u, ok := v.(User)
	return u, ok
}
