package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/pixsearch-identity/internal/domain/entity"
	"github.com/oksasatya/pixsearch-identity/pkg/response"
)

// Authenticator resolves a session token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*entity.User, error)
}

// Auth requires a valid session token and sets userID and user in the Gin context.
func Auth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
		if token == "" {
			response.Fail(c, http.StatusUnauthorized, "missing session token", nil)
			return
		}
		u, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Fail(c, http.StatusUnauthorized, "invalid session token", nil)
			return
		}
		c.Set(CtxUserIDKey, u.ID)
		c.Set(CtxUserKey, u)
		c.Next()
	}
}
