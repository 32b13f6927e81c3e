// Package nws implements lookup.Alerts with the US National Weather Service alerts API.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
)

const (
	defaultBaseURL   = "https://api.weather.gov"
	DefaultUserAgent = "vai-triage/1.0 (+https://github.com/vango-go/vai-triage)"
)

type Client struct {
	userAgent  string
	baseURL    string
	httpClient *http.Client
}

func NewClient(userAgent, baseURL string, httpClient *http.Client) *Client {
	if strings.TrimSpace(userAgent) == "" {
		userAgent = DefaultUserAgent
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		userAgent:  userAgent,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// ActiveAlerts lists alerts in effect at the point. Points outside NWS
// coverage return an error status, which callers treat as no alerts.
func (c *Client) ActiveAlerts(ctx context.Context, at lookup.Coords) ([]lookup.Alert, error) {
	endpoint := fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f", c.baseURL, at.Lat, at.Lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("nws error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded struct {
		Features []struct {
			Properties struct {
				ID       string `json:"id"`
				Event    string `json:"event"`
				Severity string `json:"severity"`
				Headline string `json:"headline"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	alerts := make([]lookup.Alert, 0, len(decoded.Features))
	for _, f := range decoded.Features {
		p := f.Properties
		alerts = append(alerts, lookup.Alert{
			ID:       p.ID,
			Event:    p.Event,
			Severity: p.Severity,
			Headline: p.Headline,
		})
	}
	return alerts, nil
}
