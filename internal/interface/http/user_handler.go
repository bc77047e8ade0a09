package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pixsearch-identity/internal/application"
	"github.com/oksasatya/pixsearch-identity/internal/interface/middleware"
	"github.com/oksasatya/pixsearch-identity/pkg/helpers"
	"github.com/oksasatya/pixsearch-identity/pkg/response"
)

type UserHandler struct {
	Users  *application.UserService
	Logger logrus.FieldLogger
}

func NewUserHandler(users *application.UserService, logger logrus.FieldLogger) *UserHandler {
	if logger == nil {
		logger = helpers.NewNopLogger()
	}
	return &UserHandler{Users: users, Logger: logger}
}

type updateUserRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// List GET /api/users?q=
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.Users.List(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toUserResponses(users), "users", gin.H{"count": len(users)})
}

// Me GET /api/users/me
func (h *UserHandler) Me(c *gin.Context) {
	u, err := h.Users.Get(c.Request.Context(), c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toUserResponse(u), "profile", nil)
}

// Update PUT /api/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	u, err := h.Users.Update(c.Request.Context(), c.Param("id"), application.UpdateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, toUserResponse(u), "user updated", nil)
}

// Delete DELETE /api/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.Users.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Message(c, http.StatusOK, "user deleted")
}
