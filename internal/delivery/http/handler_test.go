package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
	"github.com/FilipeAphrody/secure-wallet/internal/usecase"
	"github.com/FilipeAphrody/secure-wallet/pkg/security"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	userToken  = "user-token"
	adminToken = "admin-token"
	userID     = "6f1c2f0e-7f59-4c39-a0a4-5a7d1d3f8d21"
)

type stubAuth struct {
	register  func(usecase.RegisterInput) (*usecase.Session, error)
	login     func(usecase.LoginInput) (*usecase.LoginResult, error)
	change    func(userID, current, next string) error
	loggedOut []string
	lastLogin usecase.LoginInput
}

func (s *stubAuth) Authenticate(_ context.Context, token string) (*security.Claims, error) {
	switch token {
	case userToken:
		return &security.Claims{Email: "alice@example.com", Role: "USER", RegisteredClaims: jwt.RegisteredClaims{Subject: userID, ID: "jti-user"}}, nil
	case adminToken:
		return &security.Claims{Email: "admin@example.com", Role: "ADMIN", RegisteredClaims: jwt.RegisteredClaims{Subject: "admin-id", ID: "jti-admin"}}, nil
	}
	return nil, domain.ErrUnauthorized
}

func (s *stubAuth) Register(_ context.Context, in usecase.RegisterInput) (*usecase.Session, error) {
	return s.register(in)
}

func (s *stubAuth) Login(_ context.Context, in usecase.LoginInput) (*usecase.LoginResult, error) {
	s.lastLogin = in
	return s.login(in)
}

func (s *stubAuth) ChangePassword(_ context.Context, id, current, next string, _ usecase.Client) error {
	return s.change(id, current, next)
}

func (s *stubAuth) Logout(_ context.Context, claims *security.Claims, _ usecase.Client) error {
	s.loggedOut = append(s.loggedOut, claims.ID)
	return nil
}

func (s *stubAuth) Me(_ context.Context, id string) (*domain.User, error) {
	if id != userID {
		return nil, domain.ErrNotFound
	}
	return &domain.User{ID: id, Email: "alice@example.com", Role: domain.RoleUser, Status: domain.StatusActive}, nil
}

func (s *stubAuth) SetupMFA(context.Context, string) (security.MFASecret, error) {
	return security.MFASecret{Secret: "JBSWY3DPEHPK3PXP", URI: "otpauth://totp/SecureWallet:alice@example.com"}, nil
}

func (s *stubAuth) EnableMFA(_ context.Context, _, code string, _ usecase.Client) error {
	if code != "123456" {
		return domain.ErrInvalidMFACode
	}
	return nil
}

func newTestServer(auth *stubAuth, admin AdminService) *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	log := zap.NewNop()

	authGroup := e.Group("/auth")
	NewAuthHandler(authGroup, auth, nil, log)
	NewMFAHandler(authGroup, auth, log)
	if admin != nil {
		NewAdminHandler(e.Group("/admin"), admin, auth, log)
	}
	return e
}

func doJSON(e *echo.Echo, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.9")
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRegisterHandler(t *testing.T) {
	auth := &stubAuth{register: func(in usecase.RegisterInput) (*usecase.Session, error) {
		if in.Email == "taken@example.com" {
			return nil, domain.ErrEmailTaken
		}
		if len(in.Password) < 12 {
			return nil, &usecase.ValidationError{Field: "password", Message: "must be at least 12 characters"}
		}
		return &usecase.Session{Token: "tok", User: &domain.User{ID: userID, Email: in.Email, Role: domain.RoleUser}}, nil
	}}
	e := newTestServer(auth, nil)

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "created", body: `{"email":"alice@example.com","password":"Password123!"}`, code: http.StatusCreated},
		{name: "duplicate", body: `{"email":"taken@example.com","password":"Password123!"}`, code: http.StatusConflict},
		{name: "bad email", body: `{"email":"nope","password":"Password123!"}`, code: http.StatusBadRequest},
		{name: "bad role", body: `{"email":"alice@example.com","password":"Password123!","role":"ROOT"}`, code: http.StatusBadRequest},
		{name: "short password", body: `{"email":"alice@example.com","password":"short"}`, code: http.StatusBadRequest},
		{name: "malformed", body: `{"email":`, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(e, http.MethodPost, "/auth/register", tt.body, "")
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	rec := doJSON(e, http.MethodPost, "/auth/register", `{"email":"nope","password":""}`, "")
	body := decode(t, rec)
	assert.Equal(t, "Validation failed", body["error"])
	fields, ok := body["fields"].([]any)
	require.True(t, ok)
	assert.Len(t, fields, 2)
}

func TestLoginHandler(t *testing.T) {
	anomaly := &domain.AnomalyAssessment{Score: 0.3, Reasons: []string{"baseline"}}
	outcomes := map[string]error{
		"wrong@example.com":    &usecase.LoginError{Err: domain.ErrInvalidCredentials, Anomaly: anomaly},
		"locked@example.com":   &usecase.LoginError{Err: domain.ErrLockedAfterAttempt, Anomaly: anomaly},
		"precheck@example.com": &usecase.LoginError{Err: domain.ErrTooManyAttempts},
		"disabled@example.com": &usecase.LoginError{Err: domain.ErrAccountLocked},
		"pending@example.com":  &usecase.LoginError{Err: domain.ErrAccountNotActive, Anomaly: anomaly},
		"mfa@example.com":      &usecase.LoginError{Err: domain.ErrMFARequired, Anomaly: anomaly},
		"broken@example.com":   errors.New("connection refused"),
	}
	auth := &stubAuth{login: func(in usecase.LoginInput) (*usecase.LoginResult, error) {
		if err, ok := outcomes[in.Email]; ok {
			return nil, err
		}
		return &usecase.LoginResult{
			Session: usecase.Session{Token: "tok", User: &domain.User{ID: userID, Email: in.Email}},
			Anomaly: *anomaly,
		}, nil
	}}
	e := newTestServer(auth, nil)

	tests := []struct {
		email   string
		code    int
		message string
		anomaly bool
	}{
		{email: "wrong@example.com", code: http.StatusUnauthorized, message: "Invalid credentials", anomaly: true},
		{email: "locked@example.com", code: http.StatusLocked, message: "Account locked after repeated failed attempts", anomaly: true},
		{email: "precheck@example.com", code: http.StatusLocked, message: "Account temporarily locked due to repeated failures"},
		{email: "disabled@example.com", code: http.StatusLocked, message: "Account is locked. Please contact support."},
		{email: "pending@example.com", code: http.StatusLocked, message: "Account is not active", anomaly: true},
		{email: "broken@example.com", code: http.StatusInternalServerError, message: "Internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			rec := doJSON(e, http.MethodPost, "/auth/login", `{"email":"`+tt.email+`","password":"x"}`, "")
			assert.Equal(t, tt.code, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.message, body["error"])
			_, hasAnomaly := body["anomaly"]
			assert.Equal(t, tt.anomaly, hasAnomaly)
		})
	}

	rec := doJSON(e, http.MethodPost, "/auth/login", `{"email":"mfa@example.com","password":"x"}`, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, decode(t, rec)["mfaRequired"])

	rec = doJSON(e, http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"Password123!"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "tok", body["token"])
	assert.Equal(t, "alice@example.com", body["user"].(map[string]any)["email"])
	assert.Contains(t, body, "anomaly")
	assert.Equal(t, "203.0.113.9", auth.lastLogin.Client.IP)
	assert.Equal(t, "unknown", auth.lastLogin.Client.UserAgent)

	rec = doJSON(e, http.MethodPost, "/auth/login", `{"email":"alice@example.com"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangePasswordHandler(t *testing.T) {
	auth := &stubAuth{change: func(id, current, next string) error {
		if current != "Password123!" {
			return domain.ErrInvalidCredentials
		}
		return nil
	}}
	e := newTestServer(auth, nil)

	rec := doJSON(e, http.MethodPost, "/auth/change-password", `{"currentPassword":"Password123!","newPassword":"AnotherPass456!"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodPost, "/auth/change-password", `{"currentPassword":"Password123!"}`, userToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing password fields", decode(t, rec)["error"])

	rec = doJSON(e, http.MethodPost, "/auth/change-password", `{"currentPassword":"bad","newPassword":"AnotherPass456!"}`, userToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodPost, "/auth/change-password", `{"currentPassword":"Password123!","newPassword":"AnotherPass456!"}`, userToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSessionRoutes(t *testing.T) {
	auth := &stubAuth{}
	e := newTestServer(auth, nil)

	rec := doJSON(e, http.MethodGet, "/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing bearer token", decode(t, rec)["error"])

	rec = doJSON(e, http.MethodGet, "/auth/me", "", "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", decode(t, rec)["error"])

	rec = doJSON(e, http.MethodGet, "/auth/me", "", userToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, decode(t, rec)["user"].(map[string]any)["id"])

	rec = doJSON(e, http.MethodPost, "/auth/logout", "", userToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"jti-user"}, auth.loggedOut)
}

func TestMFARoutes(t *testing.T) {
	e := newTestServer(&stubAuth{}, nil)

	rec := doJSON(e, http.MethodPost, "/auth/mfa/setup", "", userToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", decode(t, rec)["secret"])

	rec = doJSON(e, http.MethodPost, "/auth/mfa/enable", `{"code":"654321"}`, userToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/auth/mfa/enable", `{"code":"12"}`, userToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/auth/mfa/enable", `{"code":"123456"}`, userToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRateLimiter(t *testing.T) {
	auth := &stubAuth{login: func(in usecase.LoginInput) (*usecase.LoginResult, error) {
		return nil, &usecase.LoginError{Err: domain.ErrInvalidCredentials}
	}}
	e := echo.New()
	e.Validator = NewValidator()
	NewAuthHandler(e.Group("/auth"), auth, LoginRateLimiter(NewMemoryRateLimitStore(2, time.Minute)), zap.NewNop())

	body := `{"email":"alice@example.com","password":"x"}`
	assert.Equal(t, http.StatusUnauthorized, doJSON(e, http.MethodPost, "/auth/login", body, "").Code)
	assert.Equal(t, http.StatusUnauthorized, doJSON(e, http.MethodPost, "/auth/login", body, "").Code)

	rec := doJSON(e, http.MethodPost, "/auth/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many login attempts, please try again later.", decode(t, rec)["error"])

	rec = doJSON(e, http.MethodPost, "/auth/register", `{"email":"nope"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "only the login route is limited")
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	e := echo.New()
	NewHealthHandler(e, fakePinger{}, zap.NewNop())
	rec := doJSON(e, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["db"])

	e = echo.New()
	NewHealthHandler(e, fakePinger{err: errors.New("down")}, zap.NewNop())
	rec = doJSON(e, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}
