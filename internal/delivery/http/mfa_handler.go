package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// MFAHandler handles MFA enrollment and management.
type MFAHandler struct {
	usecase AuthService
	log     *zap.Logger
}

// NewMFAHandler registers the MFA management routes. Both require a session.
func NewMFAHandler(g *echo.Group, u AuthService, log *zap.Logger) {
	handler := &MFAHandler{usecase: u, log: log}
	requireAuth := JWTMiddleware(u)

	g.POST("/mfa/setup", handler.Setup, requireAuth)
	g.POST("/mfa/enable", handler.Enable, requireAuth)
}

// mfaSetupResponse returns the provisioning URI to the frontend.
type mfaSetupResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

// mfaEnableRequest is used to verify the first code before enabling MFA.
type mfaEnableRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// Setup generates a new TOTP secret for the session's user. MFA stays
// disabled until Enable confirms a code.
func (h *MFAHandler) Setup(c echo.Context) error {
	secret, err := h.usecase.SetupMFA(c.Request().Context(), claimsFrom(c).Subject)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, mfaSetupResponse{Secret: secret.Secret, URI: secret.URI})
}

// Enable verifies the provided code and turns on MFA for the user account.
func (h *MFAHandler) Enable(c echo.Context) error {
	var req mfaEnableRequest
	if err := bindRequest(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	if err := h.usecase.EnableMFA(c.Request().Context(), claimsFrom(c).Subject, req.Code, clientFrom(c)); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"mfaEnabled": true})
}
