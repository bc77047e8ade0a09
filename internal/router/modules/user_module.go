package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/pixsearch-identity/internal/interface/http"
	"github.com/oksasatya/pixsearch-identity/internal/interface/middleware"
)

// UserModule wires the user directory behind a session token.
// Protected: GET /api/users, GET /api/users/me, PUT /api/users/:id, DELETE /api/users/:id
type UserModule struct {
	Handler *handlers.UserHandler
	Authn   middleware.Authenticator
}

func NewUserModule(h *handlers.UserHandler, authn middleware.Authenticator) *UserModule {
	return &UserModule{Handler: h, Authn: authn}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/users")
	auth.Use(middleware.Auth(m.Authn))
	{
		auth.GET("", m.Handler.List)
		auth.GET("/me", m.Handler.Me)
		auth.PUT("/:id", m.Handler.Update)
		auth.DELETE("/:id", m.Handler.Delete)
	}
}
