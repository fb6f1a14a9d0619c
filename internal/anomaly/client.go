// Package anomaly talks to the external login risk scorer.
package anomaly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/FilipeAphrody/secure-wallet/internal/domain"
)

var ErrMalformedResponse = errors.New("anomaly: malformed scorer response")

// Client posts login signals to {baseURL}/ai/score. Every call is bounded by
// the configured timeout.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{},
	}
}

func (c *Client) Score(ctx context.Context, signal domain.LoginSignal) (domain.AnomalyAssessment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(signal)
	if err != nil {
		return domain.AnomalyAssessment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ai/score", bytes.NewReader(body))
	if err != nil {
		return domain.AnomalyAssessment{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.AnomalyAssessment{}, fmt.Errorf("anomaly: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return domain.AnomalyAssessment{}, fmt.Errorf("anomaly: scorer returned %d", resp.StatusCode)
	}

	var out struct {
		Score   *float64 `json:"score"`
		Reasons []string `json:"reasons"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return domain.AnomalyAssessment{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Score == nil || math.IsNaN(*out.Score) || *out.Score < 0 || *out.Score > 1 {
		return domain.AnomalyAssessment{}, fmt.Errorf("%w: score missing or outside [0,1]", ErrMalformedResponse)
	}
	if out.Reasons == nil {
		out.Reasons = []string{}
	}
	return domain.AnomalyAssessment{Score: *out.Score, Reasons: out.Reasons}, nil
}

// Stub scores every login with the neutral default. Used when no scorer URL
// is configured.
type Stub struct{}

func (Stub) Score(context.Context, domain.LoginSignal) (domain.AnomalyAssessment, error) {
	return domain.NeutralAssessment("stubbed"), nil
}
