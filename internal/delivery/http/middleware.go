package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
	"github.com/FilipeAphrody/secure-wallet/internal/usecase"
	"github.com/FilipeAphrody/secure-wallet/pkg/security"
	"github.com/labstack/echo/v4"
)

const (
	ctxClaims = "claims"
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// TokenAuthenticator validates a bearer token, including revocation.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*security.Claims, error)
}

// JWTMiddleware intercepts the request to validate the JWT token in the Authorization header.
func JWTMiddleware(auth TokenAuthenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Missing bearer token"})
			}

			// Expected format: "Bearer <token>"
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Missing bearer token"})
			}

			claims, err := auth.Authenticate(c.Request().Context(), strings.TrimSpace(token))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid or expired token"})
			}

			// Inject extracted user information into Echo context.
			c.Set(ctxClaims, claims)
			c.Set(ctxUserID, claims.Subject)
			c.Set(ctxRole, claims.Role)

			return next(c)
		}
	}
}

// RoleMiddleware only lets through sessions holding one of roles. It must run
// after JWTMiddleware.
func RoleMiddleware(roles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(ctxRole).(string)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
			}
			for _, r := range roles {
				if string(r) == role {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "Forbidden"})
		}
	}
}

func claimsFrom(c echo.Context) *security.Claims {
	claims, _ := c.Get(ctxClaims).(*security.Claims)
	return claims
}

// clientFrom resolves the caller's IP (X-Forwarded-For, X-Real-IP, then the
// socket address) and user agent.
func clientFrom(c echo.Context) usecase.Client {
	ua := c.Request().UserAgent()
	if ua == "" {
		ua = "unknown"
	}
	return usecase.Client{IP: c.RealIP(), UserAgent: ua}
}
