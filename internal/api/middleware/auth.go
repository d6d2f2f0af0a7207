package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kastrel/nest/internal/auth"
)

// SessionCookie is the cookie carrying the dashboard session token.
const SessionCookie = "nest_session"

// openPrefixes are never protected: perch ingestion must stay reachable
// without a dashboard session, and login/health/metrics must work before
// one exists.
var openPrefixes = []string{
	"/api/v1/",
	"/login",
	"/logout",
	"/health",
	"/metrics",
}

// SessionAuth protects dashboard routes with session-token auth. With no
// password configured the middleware is a pass-through.
func SessionAuth(sessions *auth.Sessions, password string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if password == "" || !isProtected(c.Request.URL.Path) {
			c.Next()
			return
		}

		token := bearerToken(c)
		if token == "" {
			if cookie, err := c.Cookie(SessionCookie); err == nil {
				token = cookie
			}
		}

		if !sessions.Verify(token) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func isProtected(path string) bool {
	for _, prefix := range openPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
