package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/pixsearch-identity/internal/interface/http"
)

// AuthModule serves signup, verification, login and password reset.
// The /users and /auth paths are kept as aliases of the primary routes.
type AuthModule struct {
	Handler *handlers.AuthHandler
}

func NewAuthModule(h *handlers.AuthHandler) *AuthModule {
	return &AuthModule{Handler: h}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	rg.POST("/signup", m.Handler.Signup)
	rg.POST("/users", m.Handler.Signup)
	rg.GET("/users/:id/verify/:token", m.Handler.Verify)

	rg.POST("/login", m.Handler.Login)
	rg.POST("/auth", m.Handler.Login)
	rg.POST("/logout", m.Handler.Logout)

	rg.POST("/reset-password", m.Handler.ResetRequest)
	rg.POST("/auth/reset-password", m.Handler.ResetRequest)
	rg.POST("/reset-password-update", m.Handler.ResetApply)
	rg.POST("/auth/reset-password-update", m.Handler.ResetApply)
}
