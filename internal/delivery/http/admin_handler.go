package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
	"github.com/FilipeAphrody/secure-wallet/internal/usecase"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AdminService is the admin surface the handlers depend on.
type AdminService interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUserStatus(ctx context.Context, actor usecase.Actor, id string, status domain.Status, reason string) (*domain.User, error)
	ListLoginEvents(ctx context.Context, limit int) ([]domain.LoginEvent, error)
	ListAlerts(ctx context.Context) ([]domain.Alert, error)
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLogEntry, error)
	GetPolicy(ctx context.Context) domain.SecurityPolicy
	UpdatePolicy(ctx context.Context, actor usecase.Actor, patch usecase.PolicyPatch) (domain.SecurityPolicy, error)
	SimulateBruteForce(ctx context.Context, actor usecase.Actor, email string) (int, string, error)
	SimulateUnusualLogin(ctx context.Context, actor usecase.Actor, in usecase.UnusualLoginInput) (string, error)
}

type AdminHandler struct {
	usecase AdminService
	log     *zap.Logger
}

// NewAdminHandler registers the admin routes behind session and ADMIN role checks.
func NewAdminHandler(g *echo.Group, u AdminService, auth TokenAuthenticator, log *zap.Logger) {
	handler := &AdminHandler{usecase: u, log: log}
	g.Use(JWTMiddleware(auth), RoleMiddleware(domain.RoleAdmin))

	g.GET("/users", handler.ListUsers)
	g.PATCH("/users/:id/status", handler.UpdateUserStatus)
	g.GET("/login-events", handler.ListLoginEvents)
	g.GET("/alerts", handler.ListAlerts)
	g.GET("/audit-logs", handler.ListAuditLogs)
	g.GET("/policies", handler.GetPolicy)
	g.POST("/policies", handler.UpdatePolicy)
	g.POST("/demo/bruteforce", handler.SimulateBruteForce)
	g.POST("/demo/unusual-login", handler.SimulateUnusualLogin)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"omitempty,max=256"`
}

type bruteForceRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

type unusualLoginRequest struct {
	Email     string `json:"email" validate:"omitempty,email"`
	IPAddress string `json:"ipAddress" validate:"omitempty,ip"`
	UserAgent string `json:"userAgent" validate:"omitempty,max=256"`
}

func actorFrom(c echo.Context) usecase.Actor {
	actor := usecase.Actor{IP: c.RealIP()}
	if claims := claimsFrom(c); claims != nil {
		actor.Email = claims.Email
	}
	return actor
}

// queryLimit returns 0 (use the default) when the parameter is absent or bad.
func queryLimit(c echo.Context) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil {
		return 0
	}
	return n
}

func items[T any](list []T) echo.Map {
	if list == nil {
		list = []T{}
	}
	return echo.Map{"items": list}
}

func (h *AdminHandler) ListUsers(c echo.Context) error {
	users, err := h.usecase.ListUsers(c.Request().Context())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, items(users))
}

func (h *AdminHandler) UpdateUserStatus(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid user id"})
	}

	var req updateStatusRequest
	if err := bindRequest(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid status"})
	}
	status := domain.Status(strings.ToUpper(strings.TrimSpace(req.Status)))

	user, err := h.usecase.UpdateUserStatus(c.Request().Context(), actorFrom(c), id, status, req.Reason)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "updated", "user": user})
}

func (h *AdminHandler) ListLoginEvents(c echo.Context) error {
	events, err := h.usecase.ListLoginEvents(c.Request().Context(), queryLimit(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, items(events))
}

func (h *AdminHandler) ListAlerts(c echo.Context) error {
	alerts, err := h.usecase.ListAlerts(c.Request().Context())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, items(alerts))
}

func (h *AdminHandler) ListAuditLogs(c echo.Context) error {
	logs, err := h.usecase.ListAuditLogs(c.Request().Context(), queryLimit(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, items(logs))
}

func (h *AdminHandler) GetPolicy(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"policy": h.usecase.GetPolicy(c.Request().Context())})
}

func (h *AdminHandler) UpdatePolicy(c echo.Context) error {
	var patch usecase.PolicyPatch
	if err := c.Bind(&patch); err != nil {
		return respondError(c, h.log, &requestError{fields: []fieldError{{Field: "body", Message: "malformed request body"}}})
	}

	policy, err := h.usecase.UpdatePolicy(c.Request().Context(), actorFrom(c), patch)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "updated", "policy": policy})
}

func (h *AdminHandler) SimulateBruteForce(c echo.Context) error {
	var req bruteForceRequest
	if err := bindRequest(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	inserted, email, err := h.usecase.SimulateBruteForce(c.Request().Context(), actorFrom(c), req.Email)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"inserted": inserted, "email": email})
}

func (h *AdminHandler) SimulateUnusualLogin(c echo.Context) error {
	var req unusualLoginRequest
	if err := bindRequest(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	email, err := h.usecase.SimulateUnusualLogin(c.Request().Context(), actorFrom(c), usecase.UnusualLoginInput{
		Email:     req.Email,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"inserted": 1, "email": email})
}
