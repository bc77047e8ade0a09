package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pixsearch-identity/internal/application"
	"github.com/oksasatya/pixsearch-identity/pkg/helpers"
	"github.com/oksasatya/pixsearch-identity/pkg/response"
)

// maxSignupBody caps multipart signups: a 5 MiB image plus form fields.
const maxSignupBody = 6 << 20

type AuthHandler struct {
	Auth    *application.AuthService
	Logger  logrus.FieldLogger
	Cookies *helpers.Manager
}

func NewAuthHandler(auth *application.AuthService, logger logrus.FieldLogger, cookieDomain string, cookieSecure bool) *AuthHandler {
	if logger == nil {
		logger = helpers.NewNopLogger()
	}
	return &AuthHandler{Auth: auth, Logger: logger, Cookies: helpers.NewCookie(cookieDomain, cookieSecure)}
}

type signupRequest struct {
	FirstName    string `json:"firstName" form:"firstName"`
	LastName     string `json:"lastName" form:"lastName"`
	Email        string `json:"email" form:"email"`
	Password     string `json:"password" form:"password"`
	ProfileImage string `json:"profileImage" form:"-"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetUpdateRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Signup POST /api/signup, JSON, urlencoded form or multipart/form-data with a profileImage file.
func (h *AuthHandler) Signup(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSignupBody)

	var req signupRequest
	if err := c.ShouldBind(&req); err != nil {
		bindError(c, err)
		return
	}
	in := application.SignupInput{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Password:     req.Password,
		ProfileImage: req.ProfileImage,
	}

	ct := c.ContentType()
	multipartForm := strings.HasPrefix(ct, "multipart/")
	if multipartForm || ct == binding.MIMEPOSTForm {
		in.ProfileImage = c.PostForm("profileImage")
	}
	if multipartForm {
		fh, err := c.FormFile("profileImage")
		switch {
		case err == nil:
			f, err := fh.Open()
			if err != nil {
				bindError(c, err)
				return
			}
			defer func() { _ = f.Close() }()
			in.Upload = &application.ImageUpload{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
				Body:        f,
			}
		case errors.Is(err, http.ErrMissingFile):
		default:
			bindError(c, err)
			return
		}
	}

	u, err := h.Auth.Signup(c.Request.Context(), in)
	if err != nil {
		if errors.Is(err, application.ErrDelivery) && u != nil {
			response.Error[any](c, http.StatusServiceUnavailable,
				"account created but the verification email could not be sent; log in to receive a new one",
				gin.H{"user": toUserResponse(u)})
			return
		}
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusCreated, toUserResponse(u), "account created; check your email to verify it", nil)
}

// Verify GET /api/users/:id/verify/:token
func (h *AuthHandler) Verify(c *gin.Context) {
	err := h.Auth.Verify(c.Request.Context(), c.Param("id"), c.Param("token"))
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			response.Fail(c, http.StatusBadRequest, "invalid verification link", nil)
			return
		}
		writeError(c, h.Logger, err)
		return
	}
	response.Message(c, http.StatusOK, "email verified successfully")
}

// Login POST /api/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.Auth.Login(c.Request.Context(), application.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	h.Cookies.SetSession(c, res.Token, res.ExpiresAt)
	response.Success(c, http.StatusOK, gin.H{
		"user":  toSessionUser(res.User),
		"token": res.Token,
	}, "logged in successfully", gin.H{"expires_at": res.ExpiresAt})
}

// Logout POST /api/logout clears the session cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.Cookies.Clear(c)
	response.Message(c, http.StatusOK, "logged out")
}

// ResetRequest POST /api/reset-password. The reply never reveals whether the email exists.
func (h *AuthHandler) ResetRequest(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.Auth.ResetRequest(c.Request.Context(), application.ResetRequestInput{Email: req.Email}); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Message(c, http.StatusOK, "if that email is registered, a reset code has been sent")
}

// ResetApply POST /api/reset-password-update
func (h *AuthHandler) ResetApply(c *gin.Context) {
	var req resetUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.Auth.ResetApply(c.Request.Context(), application.ResetApplyInput{Token: req.Token, Password: req.Password}); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Message(c, http.StatusOK, "password updated successfully")
}
