package http

import (
	"errors"
	"net/http"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
	"github.com/FilipeAphrody/secure-wallet/internal/usecase"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// statusFor maps domain errors to a status code and a client-safe message.
// The second return is false for errors that must not be shown to clients.
func statusFor(err error) (int, string, bool) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials", true
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized", true
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "Forbidden", true
	case errors.Is(err, domain.ErrAccountLocked):
		return http.StatusLocked, "Account is locked. Please contact support.", true
	case errors.Is(err, domain.ErrTooManyAttempts):
		return http.StatusLocked, "Account temporarily locked due to repeated failures", true
	case errors.Is(err, domain.ErrLockedAfterAttempt):
		return http.StatusLocked, "Account locked after repeated failed attempts", true
	case errors.Is(err, domain.ErrAccountNotActive):
		return http.StatusLocked, "Account is not active", true
	case errors.Is(err, domain.ErrEmailTaken):
		return http.StatusConflict, "Email already registered", true
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "User not found", true
	case errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest, "Invalid status", true
	case errors.Is(err, domain.ErrInvalidPolicy):
		return http.StatusBadRequest, err.Error(), true
	case errors.Is(err, domain.ErrInvalidMFACode):
		return http.StatusBadRequest, "Invalid MFA code", true
	}
	return http.StatusInternalServerError, "Internal error", false
}

// respondError writes the JSON error body for err. Unknown errors are logged
// and reported as a bare 500.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Validation failed", "fields": reqErr.fields})
	}
	var valErr *usecase.ValidationError
	if errors.As(err, &valErr) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":  "Validation failed",
			"fields": []fieldError{{Field: valErr.Field, Message: valErr.Message}},
		})
	}

	code, msg, known := statusFor(err)
	if !known {
		log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.JSON(code, echo.Map{"error": msg})
}
