package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
	"github.com/FilipeAphrody/secure-wallet/internal/usecase"
	"github.com/FilipeAphrody/secure-wallet/pkg/security"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthService is the authentication surface the handlers depend on.
type AuthService interface {
	TokenAuthenticator
	Register(ctx context.Context, in usecase.RegisterInput) (*usecase.Session, error)
	Login(ctx context.Context, in usecase.LoginInput) (*usecase.LoginResult, error)
	ChangePassword(ctx context.Context, userID, current, next string, client usecase.Client) error
	Logout(ctx context.Context, claims *security.Claims, client usecase.Client) error
	Me(ctx context.Context, userID string) (*domain.User, error)
	SetupMFA(ctx context.Context, userID string) (security.MFASecret, error)
	EnableMFA(ctx context.Context, userID, code string, client usecase.Client) error
}

// AuthHandler represents the HTTP delivery layer for authentication.
type AuthHandler struct {
	usecase AuthService
	log     *zap.Logger
}

// NewAuthHandler registers the authentication routes to the provided echo group.
// loginLimiter, if set, is applied to the login route only.
func NewAuthHandler(g *echo.Group, u AuthService, loginLimiter echo.MiddlewareFunc, log *zap.Logger) {
	handler := &AuthHandler{usecase: u, log: log}
	requireAuth := JWTMiddleware(u)

	g.POST("/register", handler.Register)
	var loginMW []echo.MiddlewareFunc
	if loginLimiter != nil {
		loginMW = append(loginMW, loginLimiter)
	}
	g.POST("/login", handler.Login, loginMW...)
	g.POST("/logout", handler.Logout, requireAuth)
	g.POST("/change-password", handler.ChangePassword, requireAuth)
	g.GET("/me", handler.Me, requireAuth)
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	Role        string `json:"role" validate:"omitempty,oneof=USER ADMIN"`
	Phone       string `json:"phone" validate:"omitempty,max=64"`
	Address     string `json:"address" validate:"omitempty,max=512"`
	DateOfBirth string `json:"dateOfBirth" validate:"omitempty,max=32"`
}

// loginRequest defines the expected JSON payload for the login endpoint.
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfaCode" validate:"omitempty,len=6,numeric"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

type loginResponse struct {
	Token   string                   `json:"token"`
	User    *domain.User             `json:"user"`
	Anomaly domain.AnomalyAssessment `json:"anomaly"`
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindRequest(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	session, err := h.usecase.Register(c.Request().Context(), usecase.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		Role:        domain.Role(req.Role),
		Phone:       req.Phone,
		Address:     req.Address,
		DateOfBirth: req.DateOfBirth,
		Client:      clientFrom(c),
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, sessionResponse{Token: session.Token, User: session.User})
}

// Login handles the authentication request. Lockout outcomes are 423 and
// carry the anomaly assessment when one was computed.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindRequest(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	res, err := h.usecase.Login(c.Request().Context(), usecase.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		MFACode:  req.MFACode,
		Client:   clientFrom(c),
	})
	if err != nil {
		// Handle the specific MFA required case
		if errors.Is(err, domain.ErrMFARequired) {
			return c.JSON(http.StatusAccepted, echo.Map{"mfaRequired": true})
		}

		var loginErr *usecase.LoginError
		if errors.As(err, &loginErr) {
			code, msg, _ := statusFor(loginErr.Err)
			body := echo.Map{"error": msg}
			if loginErr.Anomaly != nil {
				body["anomaly"] = loginErr.Anomaly
			}
			return c.JSON(code, body)
		}
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, loginResponse{Token: res.Token, User: res.User, Anomaly: res.Anomaly})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.usecase.Logout(c.Request().Context(), claimsFrom(c), clientFrom(c)); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := bindRequest(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing password fields"})
	}

	err := h.usecase.ChangePassword(c.Request().Context(), claimsFrom(c).Subject, req.CurrentPassword, req.NewPassword, clientFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) Me(c echo.Context) error {
	user, err := h.usecase.Me(c.Request().Context(), claimsFrom(c).Subject)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": user})
}
