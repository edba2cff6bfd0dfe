package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "go-cleanup-agent/internal/errors"
)

// Location is one sample of the operator's position. Samples are ephemeral:
// each successful read replaces the previous one whole, never merged.
type Location struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy"`
	Timestamp      time.Time `json:"timestamp"`
}

// Provider supplies a one-shot position read. Implementations must honor the
// context deadline and must not serve cached samples.
type Provider interface {
	Current(ctx context.Context) (*Location, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (*Location, error)

func (f ProviderFunc) Current(ctx context.Context) (*Location, error) {
	return f(ctx)
}

// Static always returns a fixed position. Useful for kiosk deployments with
// a known mount point, and for tests.
type Static struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
}

func (s Static) Current(ctx context.Context) (*Location, error) {
	return &Location{
		Latitude:       s.Latitude,
		Longitude:      s.Longitude,
		AccuracyMeters: s.AccuracyMeters,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// HTTPProvider reads the current position from a companion GPS device that
// serves a JSON document {"latitude": .., "longitude": .., "accuracy": ..}.
type HTTPProvider struct {
	url    string
	client *http.Client
}

// NewHTTPProvider creates a provider for the given device endpoint.
func NewHTTPProvider(url string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *HTTPProvider) Current(ctx context.Context) (*Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, apperrors.NewLocationUnavailableError("invalid location endpoint", err)
	}

	// Stale fixes are never acceptable for proximity gating
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewLocationUnavailableError("location request timed out", err)
		}
		return nil, apperrors.NewLocationUnavailableError("location device unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.NewLocationUnavailableError("location access denied", nil)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.NewLocationUnavailableError(
			fmt.Sprintf("location device returned status %d", resp.StatusCode), nil)
	}

	var loc Location
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return nil, apperrors.NewLocationUnavailableError("malformed location response", err)
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now().UTC()
	}
	return &loc, nil
}
