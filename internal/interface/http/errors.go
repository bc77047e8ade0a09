package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pixsearch-identity/internal/application"
	"github.com/oksasatya/pixsearch-identity/pkg/helpers"
	"github.com/oksasatya/pixsearch-identity/pkg/response"
)

const genericFailure = "something went wrong, please try again later"

// statusFor maps the application error classes to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, application.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, application.ErrUnverifiedAccount):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrDelivery):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a failure envelope. Unclassified errors are
// logged in full and answered with a generic message.
func writeError(c *gin.Context, logger logrus.FieldLogger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		helpers.LogError(logger, "request failed", err, logrus.Fields{
			"request_id": c.GetString("request_id"),
			"path":       c.FullPath(),
		})
		response.Fail(c, status, genericFailure, nil)
		return
	}

	var verr *application.ValidationError
	if errors.As(err, &verr) {
		response.Fail(c, status, "invalid payload", verr.Details)
		return
	}
	var derr *application.DeliveryError
	if errors.As(err, &derr) {
		response.Fail(c, status, application.ErrDelivery.Error(), nil)
		return
	}
	response.Fail(c, status, err.Error(), nil)
}

// bindError answers a body that could not be decoded at all.
func bindError(c *gin.Context, err error) {
	response.Fail(c, http.StatusBadRequest, "invalid payload", map[string]string{"payload": "malformed request body"})
	_ = c.Error(err)
}
