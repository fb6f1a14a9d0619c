package http

import (
	"context"
	"net/http"
	"testing"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
	"github.com/FilipeAphrody/secure-wallet/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdmin struct {
	lastStatus domain.Status
	lastActor  usecase.Actor
	lastLimit  int
	policy     domain.SecurityPolicy
}

func (s *stubAdmin) ListUsers(context.Context) ([]domain.User, error) {
	return []domain.User{{ID: userID, Email: "alice@example.com"}}, nil
}

func (s *stubAdmin) UpdateUserStatus(_ context.Context, actor usecase.Actor, id string, status domain.Status, _ string) (*domain.User, error) {
	s.lastActor = actor
	s.lastStatus = status
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	if id != userID {
		return nil, domain.ErrNotFound
	}
	return &domain.User{ID: id, Status: status}, nil
}

func (s *stubAdmin) ListLoginEvents(_ context.Context, limit int) ([]domain.LoginEvent, error) {
	s.lastLimit = limit
	return nil, nil
}

func (s *stubAdmin) ListAlerts(context.Context) ([]domain.Alert, error) {
	return []domain.Alert{{LoginEvent: domain.LoginEvent{ID: 1, Email: "b@example.com"}, Severity: "high", Reasons: []string{"Failed login"}}}, nil
}

func (s *stubAdmin) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLogEntry, error) {
	s.lastLimit = limit
	return []domain.AuditLogEntry{{ID: 1, Actor: "system", Action: domain.ActionAccountLocked}}, nil
}

func (s *stubAdmin) GetPolicy(context.Context) domain.SecurityPolicy { return s.policy }

func (s *stubAdmin) UpdatePolicy(_ context.Context, actor usecase.Actor, patch usecase.PolicyPatch) (domain.SecurityPolicy, error) {
	s.lastActor = actor
	next := s.policy
	if patch.MaxLoginAttempts != nil {
		next.MaxLoginAttempts = *patch.MaxLoginAttempts
	}
	if err := next.Validate(); err != nil {
		return domain.SecurityPolicy{}, err
	}
	s.policy = next
	return next, nil
}

func (s *stubAdmin) SimulateBruteForce(_ context.Context, _ usecase.Actor, email string) (int, string, error) {
	if email == "" {
		email = "bruteforce@example.com"
	}
	return 6, email, nil
}

func (s *stubAdmin) SimulateUnusualLogin(_ context.Context, _ usecase.Actor, in usecase.UnusualLoginInput) (string, error) {
	if in.Email == "" {
		return "anomaly@example.com", nil
	}
	return in.Email, nil
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	e := newTestServer(&stubAuth{}, &stubAdmin{})

	assert.Equal(t, http.StatusUnauthorized, doJSON(e, http.MethodGet, "/admin/users", "", "").Code)
	assert.Equal(t, http.StatusForbidden, doJSON(e, http.MethodGet, "/admin/users", "", userToken).Code)

	rec := doJSON(e, http.MethodGet, "/admin/users", "", adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	list, ok := decode(t, rec)["items"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)
}

func TestAdminUpdateUserStatus(t *testing.T) {
	admin := &stubAdmin{}
	e := newTestServer(&stubAuth{}, admin)
	path := "/admin/users/" + userID + "/status"

	rec := doJSON(e, http.MethodPatch, path, `{"status":" disabled ","reason":"fraud review"}`, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusDisabled, admin.lastStatus)
	assert.Equal(t, "admin@example.com", admin.lastActor.Email)
	assert.Equal(t, "updated", decode(t, rec)["status"])

	rec = doJSON(e, http.MethodPatch, path, `{"status":"FROZEN"}`, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid status", decode(t, rec)["error"])

	rec = doJSON(e, http.MethodPatch, "/admin/users/not-a-uuid/status", `{"status":"ACTIVE"}`, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid user id", decode(t, rec)["error"])

	rec = doJSON(e, http.MethodPatch, "/admin/users/00000000-0000-0000-0000-000000000000/status", `{"status":"ACTIVE"}`, adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminListViews(t *testing.T) {
	admin := &stubAdmin{}
	e := newTestServer(&stubAuth{}, admin)

	rec := doJSON(e, http.MethodGet, "/admin/login-events?limit=25", "", adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25, admin.lastLimit)
	assert.Equal(t, []any{}, decode(t, rec)["items"], "empty lists render as []")

	rec = doJSON(e, http.MethodGet, "/admin/audit-logs?limit=abc", "", adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, admin.lastLimit)

	rec = doJSON(e, http.MethodGet, "/admin/alerts", "", adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	alerts := decode(t, rec)["items"].([]any)
	require.Len(t, alerts, 1)
	alert := alerts[0].(map[string]any)
	assert.Equal(t, "high", alert["severity"])
	assert.Equal(t, "b@example.com", alert["email"])
}

func TestAdminPolicies(t *testing.T) {
	admin := &stubAdmin{policy: domain.DefaultSecurityPolicy()}
	e := newTestServer(&stubAuth{}, admin)

	rec := doJSON(e, http.MethodGet, "/admin/policies", "", adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	policy := decode(t, rec)["policy"].(map[string]any)
	assert.Equal(t, float64(5), policy["maxLoginAttempts"])

	rec = doJSON(e, http.MethodPost, "/admin/policies", `{"maxLoginAttempts":3}`, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, admin.policy.MaxLoginAttempts)

	rec = doJSON(e, http.MethodPost, "/admin/policies", `{"maxLoginAttempts":0}`, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminDemoScenarios(t *testing.T) {
	e := newTestServer(&stubAuth{}, &stubAdmin{})

	rec := doJSON(e, http.MethodPost, "/admin/demo/bruteforce", `{}`, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(6), body["inserted"])
	assert.Equal(t, "bruteforce@example.com", body["email"])

	rec = doJSON(e, http.MethodPost, "/admin/demo/unusual-login", `{"ipAddress":"not-an-ip"}`, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/admin/demo/unusual-login", `{"email":"carol@example.com"}`, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "carol@example.com", decode(t, rec)["email"])
}
