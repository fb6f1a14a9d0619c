package domain

import (
	"context"
	"time"
)

// LoginSignal is what the anomaly scorer sees about an attempt.
type LoginSignal struct {
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	Timestamp time.Time `json:"timestamp"`
}

// AnomalyAssessment is an advisory 0..1 risk score.
type AnomalyAssessment struct {
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

type AnomalyScorer interface {
	Score(ctx context.Context, signal LoginSignal) (AnomalyAssessment, error)
}

// TokenRepository tracks revoked session tokens by jti until they expire.
type TokenRepository interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// NeutralAnomalyScore is used whenever the scorer cannot produce a score.
const NeutralAnomalyScore = 0.1

// NeutralAssessment is the advisory default substituted for a missing score.
func NeutralAssessment(reason string) AnomalyAssessment {
	return AnomalyAssessment{Score: NeutralAnomalyScore, Reasons: []string{reason}}
}
