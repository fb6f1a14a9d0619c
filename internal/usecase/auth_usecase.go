package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
	"github.com/FilipeAphrody/secure-wallet/internal/metrics"
	"github.com/FilipeAphrody/secure-wallet/pkg/fieldcrypt"
	"github.com/FilipeAphrody/secure-wallet/pkg/security"
	"go.uber.org/zap"
)

// AuthDeps wires the authentication pipeline.
type AuthDeps struct {
	Users    domain.UserRepository
	Tokens   domain.TokenRepository
	Policies *PolicyProvider
	Ledger   *LoginLedger
	Guard    *LockoutGuard
	Audit    *AuditRecorder
	Scorer   domain.AnomalyScorer
	Hasher   *security.PasswordHasher
	Issuer   *security.TokenIssuer
	Codec    *fieldcrypt.Codec
	Log      *zap.Logger
}

type AuthUsecase struct {
	users    domain.UserRepository
	tokens   domain.TokenRepository
	policies *PolicyProvider
	ledger   *LoginLedger
	guard    *LockoutGuard
	audit    *AuditRecorder
	scorer   domain.AnomalyScorer
	hasher   *security.PasswordHasher
	issuer   *security.TokenIssuer
	codec    *fieldcrypt.Codec
	log      *zap.Logger
	now      func() time.Time
}

func NewAuthUsecase(d AuthDeps) *AuthUsecase {
	return &AuthUsecase{
		users:    d.Users,
		tokens:   d.Tokens,
		policies: d.Policies,
		ledger:   d.Ledger,
		guard:    d.Guard,
		audit:    d.Audit,
		scorer:   d.Scorer,
		hasher:   d.Hasher,
		issuer:   d.Issuer,
		codec:    d.Codec,
		log:      d.Log,
		now:      time.Now,
	}
}

// Client identifies where a request came from.
type Client struct {
	IP        string
	UserAgent string
}

type RegisterInput struct {
	Email       string
	Password    string
	Role        domain.Role
	Phone       string
	Address     string
	DateOfBirth string
	Client      Client
}

type LoginInput struct {
	Email    string
	Password string
	MFACode  string
	Client   Client
}

// Session is an issued token and the sanitized user it belongs to.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

type LoginResult struct {
	Session
	Anomaly domain.AnomalyAssessment
}

// LoginError is a rejected login. Err is one of the domain sentinels and
// Anomaly is set once the scorer has run.
type LoginError struct {
	Err     error
	Anomaly *domain.AnomalyAssessment
}

func (e *LoginError) Error() string { return e.Err.Error() }
func (e *LoginError) Unwrap() error { return e.Err }

// ValidationError is a single rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func (u *AuthUsecase) checkPasswordLength(ctx context.Context, field, password string) error {
	policy := u.policies.GetPolicy(ctx)
	if len([]rune(password)) < policy.PasswordMinLength {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be at least %d characters", policy.PasswordMinLength)}
	}
	return nil
}

// Register creates an ACTIVE account and signs the first session.
func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := domain.NormalizeEmail(in.Email)
	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, &ValidationError{Field: "role", Message: "must be USER or ADMIN"}
	}
	if err := u.checkPasswordLength(ctx, "password", in.Password); err != nil {
		return nil, err
	}

	// 1. Cheap duplicate pre-check; the unique index is the backstop.
	exists, err := u.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrEmailTaken
	}

	// 2. Hash and seal
	hash, err := u.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       domain.StatusActive,
		Phone:        fieldcrypt.Optional(in.Phone),
		Address:      fieldcrypt.Optional(in.Address),
		DateOfBirth:  fieldcrypt.Optional(in.DateOfBirth),
	}
	if err := u.codec.EncryptFields(user.PIIFields(), domain.UserNamespace); err != nil {
		return nil, err
	}

	// 3. Persist
	if err := u.users.Create(ctx, user); err != nil {
		return nil, err
	}

	session, err := u.newSession(user)
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, u.audit, u.log, AuditEvent{
		Actor:     email,
		UserID:    user.ID,
		Action:    domain.ActionRegister,
		Details:   map[string]any{"role": role},
		IPAddress: in.Client.IP,
	})
	return session, nil
}

// Login runs the full authentication sequence. Unknown emails follow the
// same path as wrong passwords and produce the same error.
func (u *AuthUsecase) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := domain.NormalizeEmail(in.Email)
	ip := in.Client.IP
	policy := u.policies.GetPolicy(ctx)

	// 1. Resolve the account; absence is never revealed.
	user, err := u.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// 2. Disabled accounts short-circuit regardless of the password or the
	// failure count.
	if user != nil && user.Status == domain.StatusDisabled {
		u.recordAttempt(ctx, email, user, in.Client, false, domain.AnomalyAssessment{}, domain.ReasonAccountDisabled)
		recordAudit(ctx, u.audit, u.log, AuditEvent{
			Actor:     email,
			UserID:    user.ID,
			Action:    domain.ActionLoginBlocked,
			Details:   "account disabled",
			IPAddress: ip,
		})
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return nil, &LoginError{Err: domain.ErrAccountLocked}
	}

	// 3. Lockout pre-check
	if err := u.guard.PreCheck(ctx, email, user, policy, ip); err != nil {
		if !errors.Is(err, domain.ErrTooManyAttempts) {
			return nil, err
		}
		u.recordAttempt(ctx, email, user, in.Client, false, domain.AnomalyAssessment{}, domain.ReasonLockoutThreshold)
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return nil, &LoginError{Err: domain.ErrTooManyAttempts}
	}

	// 4. Advisory anomaly score
	anomaly := u.score(ctx, in.Client)

	// 5. Verify credentials
	valid := user != nil && u.hasher.Verify(in.Password, user.PasswordHash)
	reason := domain.ReasonInvalidCredentials
	if valid && user.MFAEnabled {
		if in.MFACode == "" {
			metrics.LoginAttemptsTotal.WithLabelValues("mfa_required").Inc()
			return nil, &LoginError{Err: domain.ErrMFARequired, Anomaly: &anomaly}
		}
		if !u.verifyMFA(user, in.MFACode) {
			valid = false
			reason = domain.ReasonInvalidMFACode
		}
	}

	// 6. Ledger entry, success or not
	if valid {
		reason = ""
	}
	u.recordAttempt(ctx, email, user, in.Client, valid, anomaly, reason)

	if anomaly.Score >= policy.AnomalyAlertThreshold {
		recordAudit(ctx, u.audit, u.log, AuditEvent{
			Actor:     email,
			UserID:    userID(user),
			Action:    domain.ActionAIAlert,
			Details:   map[string]any{"score": anomaly.Score, "reasons": anomaly.Reasons},
			IPAddress: ip,
		})
	}

	// 7. Failure: audit, then post-check
	if !valid {
		recordAudit(ctx, u.audit, u.log, AuditEvent{
			Actor:     email,
			UserID:    userID(user),
			Action:    domain.ActionLoginFailed,
			Details:   fmt.Sprintf("anomaly=%.2f", anomaly.Score),
			IPAddress: ip,
		})

		locked, err := u.guard.PostCheck(ctx, email, user, policy, ip)
		if err != nil {
			u.log.Error("lockout post-check failed", zap.Error(err))
		}
		if locked {
			metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
			return nil, &LoginError{Err: domain.ErrLockedAfterAttempt, Anomaly: &anomaly}
		}
		metrics.LoginAttemptsTotal.WithLabelValues("invalid").Inc()
		return nil, &LoginError{Err: domain.ErrInvalidCredentials, Anomaly: &anomaly}
	}

	// 8. Valid credentials on a non-active account
	if user.Status != domain.StatusActive {
		recordAudit(ctx, u.audit, u.log, AuditEvent{
			Actor:     email,
			UserID:    user.ID,
			Action:    domain.ActionLoginBlocked,
			Details:   "status=" + string(user.Status),
			IPAddress: ip,
		})
		metrics.LoginAttemptsTotal.WithLabelValues("blocked").Inc()
		return nil, &LoginError{Err: domain.ErrAccountNotActive, Anomaly: &anomaly}
	}

	// 9. Success
	now := u.now().UTC()
	if err := u.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		u.log.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}
	u.rehashIfNeeded(ctx, user, in.Password)

	session, err := u.newSession(user)
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, u.audit, u.log, AuditEvent{
		Actor:     email,
		UserID:    user.ID,
		Action:    domain.ActionLogin,
		Details:   fmt.Sprintf("anomaly=%.2f", anomaly.Score),
		IPAddress: ip,
	})
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()

	return &LoginResult{Session: *session, Anomaly: anomaly}, nil
}

// ChangePassword verifies the current password before storing the new one.
func (u *AuthUsecase) ChangePassword(ctx context.Context, userID, current, next string, client Client) error {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.hasher.Verify(current, user.PasswordHash) {
		return domain.ErrInvalidCredentials
	}
	if err := u.checkPasswordLength(ctx, "newPassword", next); err != nil {
		return err
	}

	hash, err := u.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := u.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	recordAudit(ctx, u.audit, u.log, AuditEvent{
		Actor:     user.Email,
		UserID:    user.ID,
		Action:    domain.ActionChangePassword,
		IPAddress: client.IP,
	})
	return nil
}

// Authenticate validates a bearer token and rejects revoked ones. Any
// failure, including an unreachable denylist, is ErrUnauthorized.
func (u *AuthUsecase) Authenticate(ctx context.Context, token string) (*security.Claims, error) {
	claims, err := u.issuer.Validate(token)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	revoked, err := u.tokens.IsRevoked(ctx, claims.ID)
	if err != nil {
		u.log.Warn("token denylist unavailable", zap.Error(err))
		return nil, domain.ErrUnauthorized
	}
	if revoked {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// Logout revokes the presented token until it would have expired anyway.
func (u *AuthUsecase) Logout(ctx context.Context, claims *security.Claims, client Client) error {
	var ttl time.Duration
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(u.now())
	}
	if err := u.tokens.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	recordAudit(ctx, u.audit, u.log, AuditEvent{
		Actor:     claims.Email,
		UserID:    claims.Subject,
		Action:    domain.ActionLogout,
		IPAddress: client.IP,
	})
	return nil
}

// Me returns the sanitized account behind a session.
func (u *AuthUsecase) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return presentUser(u.codec, user)
}

// SetupMFA generates a new TOTP secret and stores it sealed. MFA stays off
// until EnableMFA confirms a code.
func (u *AuthUsecase) SetupMFA(ctx context.Context, userID string) (security.MFASecret, error) {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return security.MFASecret{}, err
	}

	secret, err := security.GenerateMFASecret(user.Email)
	if err != nil {
		return security.MFASecret{}, fmt.Errorf("generate mfa secret: %w", err)
	}
	env, err := u.codec.Encrypt(secret.Secret, fieldcrypt.AAD(domain.UserNamespace, "mfa_secret"))
	if err != nil {
		return security.MFASecret{}, fmt.Errorf("seal mfa secret: %w", err)
	}
	if err := u.users.UpdateMFA(ctx, user.ID, false, fieldcrypt.Sealed(env)); err != nil {
		return security.MFASecret{}, err
	}
	return secret, nil
}

func (u *AuthUsecase) EnableMFA(ctx context.Context, userID, code string, client Client) error {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.verifyMFA(user, code) {
		return domain.ErrInvalidMFACode
	}
	if err := u.users.UpdateMFA(ctx, user.ID, true, user.MFASecret); err != nil {
		return err
	}

	recordAudit(ctx, u.audit, u.log, AuditEvent{
		Actor:     user.Email,
		UserID:    user.ID,
		Action:    domain.ActionMFAEnabled,
		IPAddress: client.IP,
	})
	return nil
}

func (u *AuthUsecase) verifyMFA(user *domain.User, code string) bool {
	var secret string
	if env, ok := user.MFASecret.Envelope(); ok {
		pt, err := u.codec.Decrypt(env, fieldcrypt.AAD(domain.UserNamespace, "mfa_secret"))
		if err != nil {
			u.log.Error("mfa secret unreadable", zap.String("user_id", user.ID), zap.Error(err))
			return false
		}
		secret = pt
	} else if pt, ok := user.MFASecret.Plaintext(); ok {
		secret = pt
	} else if user.MFASecret.IsEncrypted() {
		u.log.Error("mfa secret malformed", zap.String("user_id", user.ID))
		return false
	}
	return security.VerifyMFACode(code, secret)
}

// score never fails: scorer errors become the neutral assessment.
func (u *AuthUsecase) score(ctx context.Context, client Client) domain.AnomalyAssessment {
	a, err := u.scorer.Score(ctx, domain.LoginSignal{
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Timestamp: u.now().UTC(),
	})
	if err != nil {
		label := "unreachable"
		if errors.Is(err, context.DeadlineExceeded) {
			label = "timeout"
		}
		metrics.AnomalyScorerFallbacksTotal.WithLabelValues(label).Inc()
		u.log.Warn("anomaly scorer failed, using neutral score", zap.Error(err))
		return domain.NeutralAssessment("unreachable")
	}
	return a
}

func (u *AuthUsecase) recordAttempt(ctx context.Context, email string, user *domain.User, client Client, success bool, anomaly domain.AnomalyAssessment, reason string) {
	metadata := map[string]any{"aiResult": anomaly}
	if reason != "" {
		metadata["reason"] = reason
	}
	event := &domain.LoginEvent{
		UserID:    userID(user),
		Email:     email,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Success:   success,
		Anomaly:   anomaly.Score,
		Metadata:  metadata,
	}
	if err := u.ledger.Record(ctx, event); err != nil {
		u.log.Error("failed to record login event", zap.String("email", email), zap.Error(err))
	}
}

func (u *AuthUsecase) rehashIfNeeded(ctx context.Context, user *domain.User, password string) {
	if !u.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := u.hasher.Hash(password)
	if err == nil {
		err = u.users.UpdatePassword(ctx, user.ID, hash)
	}
	if err != nil {
		u.log.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	user.PasswordHash = hash
}

func (u *AuthUsecase) newSession(user *domain.User) (*Session, error) {
	token, claims, err := u.issuer.Issue(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	view, err := presentUser(u.codec, user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: view}, nil
}

// presentUser returns a copy of user with PII decrypted. Secrets are kept
// out of JSON by the struct tags.
func presentUser(codec *fieldcrypt.Codec, user *domain.User) (*domain.User, error) {
	view := *user
	view.PasswordHash = ""
	view.MFASecret = fieldcrypt.Value{}
	if err := codec.DecryptFields(view.PIIFields(), domain.UserNamespace); err != nil {
		return nil, err
	}
	return &view, nil
}

func userID(u *domain.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
