package usecase

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
	"github.com/FilipeAphrody/secure-wallet/pkg/fieldcrypt"
	"github.com/FilipeAphrody/secure-wallet/pkg/security"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errStoreDown = errors.New("store unavailable")

// testClock advances one millisecond per reading so events are strictly ordered.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock { return &testClock{t: time.Now().UTC()} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

// --- users ---

type fakeUserRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.User
	now  func() time.Time
	seq  int
	err  error
}

func newFakeUserRepo(now func() time.Time) *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]*domain.User{}, now: now}
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, u := range r.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *fakeUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == user.Email {
			return domain.ErrEmailTaken
		}
	}
	r.seq++
	user.ID = "user-" + strconv.Itoa(r.seq)
	user.CreatedAt = r.now()
	user.UpdatedAt = user.CreatedAt
	c := *user
	r.byID[user.ID] = &c
	return nil
}

func (r *fakeUserRepo) List(_ context.Context, limit int) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeUserRepo) UpdateStatus(_ context.Context, id string, status domain.Status, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok || u.Status == status {
		return false, nil
	}
	if status != domain.StatusDisabled {
		u.LockoutResetAt = &at
	}
	u.Status = status
	return true, nil
}

func (r *fakeUserRepo) update(id string, fn func(u *domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(u)
	return nil
}

func (r *fakeUserRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *domain.User) { u.LastLoginAt = &at })
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id, hash string) error {
	return r.update(id, func(u *domain.User) { u.PasswordHash = hash })
}

func (r *fakeUserRepo) UpdateMFA(_ context.Context, id string, enabled bool, secret fieldcrypt.Value) error {
	return r.update(id, func(u *domain.User) {
		u.MFAEnabled = enabled
		u.MFASecret = secret
	})
}

func (r *fakeUserRepo) stored(t *testing.T, email string) domain.User {
	t.Helper()
	u, err := r.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return *u
}

// --- login events ---

type fakeLoginEventRepo struct {
	mu     sync.Mutex
	events []domain.LoginEvent
}

func (r *fakeLoginEventRepo) Create(_ context.Context, ev *domain.LoginEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, *ev)
	return nil
}

func (r *fakeLoginEventRepo) CountFailuresSince(_ context.Context, email string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Email == email && !ev.Success && !ev.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeLoginEventRepo) ListRecent(_ context.Context, since time.Time, limit int) ([]domain.LoginEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LoginEvent
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if since.IsZero() || !r.events[i].CreatedAt.Before(since) {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

func (r *fakeLoginEventRepo) all() []domain.LoginEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LoginEvent(nil), r.events...)
}

// --- audit ---

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
	err     error
}

func (r *fakeAuditRepo) Create(_ context.Context, e *domain.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	e.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, *e)
	return nil
}

func (r *fakeAuditRepo) ListRecent(_ context.Context, limit int) ([]domain.AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditLogEntry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

func (r *fakeAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func (r *fakeAuditRepo) byAction(action string) []domain.AuditLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditLogEntry
	for _, e := range r.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// --- policy ---

type fakePolicyRepo struct {
	mu      sync.Mutex
	rows    []domain.SecurityPolicy
	err     error
	created int
}

func (r *fakePolicyRepo) Latest(context.Context) (*domain.SecurityPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if len(r.rows) == 0 {
		return nil, domain.ErrNotFound
	}
	p := r.rows[len(r.rows)-1]
	return &p, nil
}

func (r *fakePolicyRepo) Create(_ context.Context, p *domain.SecurityPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.created++
	r.rows = append(r.rows, *p)
	return nil
}

// --- sessions ---

type fakeTokenRepo struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
	err     error
}

func (r *fakeTokenRepo) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revoked == nil {
		r.revoked = map[string]time.Duration{}
	}
	r.revoked[jti] = ttl
	return nil
}

func (r *fakeTokenRepo) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	_, ok := r.revoked[jti]
	return ok, nil
}

type fakeScorer struct {
	assessment domain.AnomalyAssessment
	err        error
	calls      int
}

func (s *fakeScorer) Score(context.Context, domain.LoginSignal) (domain.AnomalyAssessment, error) {
	s.calls++
	return s.assessment, s.err
}

// --- harness ---

var fastHashParams = security.HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type harness struct {
	clock    *testClock
	users    *fakeUserRepo
	events   *fakeLoginEventRepo
	audits   *fakeAuditRepo
	policies *fakePolicyRepo
	tokens   *fakeTokenRepo
	scorer   *fakeScorer
	codec    *fieldcrypt.Codec
	hasher   *security.PasswordHasher
	auth     *AuthUsecase
	admin    *AdminUsecase
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ring, err := fieldcrypt.NewKeyring("k1", fieldcrypt.Key{ID: "k1", Material: bytes.Repeat([]byte{7}, fieldcrypt.KeySize)})
	require.NoError(t, err)

	h := &harness{
		clock:    newTestClock(),
		events:   &fakeLoginEventRepo{},
		audits:   &fakeAuditRepo{},
		policies: &fakePolicyRepo{},
		tokens:   &fakeTokenRepo{},
		scorer:   &fakeScorer{assessment: domain.AnomalyAssessment{Score: 0.2, Reasons: []string{"baseline"}}},
		codec:    fieldcrypt.NewCodec(ring),
		hasher:   security.NewPasswordHasher(fastHashParams),
	}
	h.users = newFakeUserRepo(h.clock.Now)

	log := zap.NewNop()
	ledger := NewLoginLedger(h.events)
	ledger.now = h.clock.Now
	audit := NewAuditRecorder(h.audits, log)
	audit.now = h.clock.Now
	guard := NewLockoutGuard(ledger, h.users, audit, log)
	guard.now = h.clock.Now
	policies := NewPolicyProvider(h.policies, log)

	h.auth = NewAuthUsecase(AuthDeps{
		Users:    h.users,
		Tokens:   h.tokens,
		Policies: policies,
		Ledger:   ledger,
		Guard:    guard,
		Audit:    audit,
		Scorer:   h.scorer,
		Hasher:   h.hasher,
		Issuer:   security.NewTokenIssuer("test-secret", 15*time.Minute),
		Codec:    h.codec,
		Log:      log,
	})
	h.auth.now = h.clock.Now

	h.admin = NewAdminUsecase(h.users, ledger, guard, audit, policies, h.codec, log)
	h.admin.now = h.clock.Now
	return h
}

func (h *harness) register(t *testing.T, email, password string) *Session {
	t.Helper()
	s, err := h.auth.Register(context.Background(), RegisterInput{Email: email, Password: password})
	require.NoError(t, err)
	return s
}

func (h *harness) login(email, password string) (*LoginResult, error) {
	return h.auth.Login(context.Background(), LoginInput{
		Email:    email,
		Password: password,
		Client:   Client{IP: "198.51.100.7", UserAgent: "test-agent"},
	})
}
