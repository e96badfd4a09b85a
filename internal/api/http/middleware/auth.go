// Package middleware holds the control plane's Gin middleware: session-based
// admin authentication, adapted from the teacher's own
// internal/http/middleware/auth.go (Basic/session/Bearer triad) down to just
// the session leg, since the pool's only principal is "an operator who can
// restart/end a worker" — no channel-level permission set is needed here.
package middleware

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const sessionUserKey = "uid"

// RequireSession aborts with 401 unless the request carries a valid admin
// session, set by the login handler.
func RequireSession(c *gin.Context) {
	session := sessions.Default(c)
	uid, _ := session.Get(sessionUserKey).(string)
	if uid == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Set(sessionUserKey, uid)
	c.Next()
}
