package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/pixsearch-identity/pkg/helpers"
)

// Context keys set by Auth.
const (
	CtxUserIDKey = "userID"
	CtxUserKey   = "user"
)

// sessionToken reads the token from "Authorization: Bearer ..." or, failing
// that, from the session cookie.
func sessionToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if token, err := c.Cookie(helpers.SessionCookieName); err == nil {
		return token
	}
	return ""
}
