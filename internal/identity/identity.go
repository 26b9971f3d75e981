// Package identity exposes the current session's user id. Authentication
// itself happens upstream (API gateway authorizer); this layer only reads
// the identity it forwarded and distinguishes guests from customers.
package identity

import (
	"github.com/gin-gonic/gin"
)

// UserHeader carries the authenticated user id set by the upstream
// authorizer. Absent header means guest.
const UserHeader = "X-User-Id"

const contextKey = "identity.user_id"

// Session reports the current user, or nothing for guests.
type Session interface {
	UserID() (string, bool)
}

// StaticSession is a fixed session, used by the client core and tests.
type StaticSession string

func (s StaticSession) UserID() (string, bool) {
	return string(s), s != ""
}

// Guest is the unauthenticated session.
var Guest Session = StaticSession("")

// Middleware binds the forwarded user id into the request context.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader(UserHeader); id != "" {
			c.Set(contextKey, id)
		}
		c.Next()
	}
}

// CurrentUserID reads the bound user id; ok is false for guests.
func CurrentUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return "", false
	}
	id, _ := v.(string)
	return id, id != ""
}
