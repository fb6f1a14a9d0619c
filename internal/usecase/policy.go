package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
	"go.uber.org/zap"
)

// PolicyProvider is the single source of lockout and anomaly tunables.
// Reads never fail: storage problems fall back to the defaults.
type PolicyProvider struct {
	repo domain.PolicyRepository
	log  *zap.Logger
}

func NewPolicyProvider(repo domain.PolicyRepository, log *zap.Logger) *PolicyProvider {
	return &PolicyProvider{repo: repo, log: log}
}

func (p *PolicyProvider) GetPolicy(ctx context.Context) domain.SecurityPolicy {
	latest, err := p.repo.Latest(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Warn("falling back to default security policy", zap.Error(err))
		}
		return domain.DefaultSecurityPolicy()
	}
	if err := latest.Validate(); err != nil {
		p.log.Warn("stored security policy is invalid, using defaults", zap.Error(err))
		return domain.DefaultSecurityPolicy()
	}
	return *latest
}

// PolicyPatch is a partial policy update; nil fields keep their current value.
type PolicyPatch struct {
	MaxLoginAttempts      *int     `json:"maxLoginAttempts"`
	LockoutMinutes        *int     `json:"lockoutMinutes"`
	AnomalyAlertThreshold *float64 `json:"anomalyAlertThreshold"`
	RateLimitPerMin       *int     `json:"rateLimitPerMin"`
	PasswordMinLength     *int     `json:"passwordMinLength"`
	MFARequired           *bool    `json:"mfaRequired"`
}

func (pp PolicyPatch) apply(p domain.SecurityPolicy) domain.SecurityPolicy {
	if pp.MaxLoginAttempts != nil {
		p.MaxLoginAttempts = *pp.MaxLoginAttempts
	}
	if pp.LockoutMinutes != nil {
		p.LockoutMinutes = *pp.LockoutMinutes
	}
	if pp.AnomalyAlertThreshold != nil {
		p.AnomalyAlertThreshold = *pp.AnomalyAlertThreshold
	}
	if pp.RateLimitPerMin != nil {
		p.RateLimitPerMin = *pp.RateLimitPerMin
	}
	if pp.PasswordMinLength != nil {
		p.PasswordMinLength = *pp.PasswordMinLength
	}
	if pp.MFARequired != nil {
		p.MFARequired = *pp.MFARequired
	}
	return p
}

// Update stores a new policy document built from the current one.
func (p *PolicyProvider) Update(ctx context.Context, patch PolicyPatch) (domain.SecurityPolicy, error) {
	next := patch.apply(p.GetPolicy(ctx))
	if err := next.Validate(); err != nil {
		return domain.SecurityPolicy{}, err
	}
	if err := p.repo.Create(ctx, &next); err != nil {
		return domain.SecurityPolicy{}, fmt.Errorf("store policy: %w", err)
	}
	return next, nil
}
