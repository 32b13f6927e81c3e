// Package nominatim implements lookup.Geocoder with the OpenStreetMap Nominatim search API.
//
// The public instance allows one request per second and requires an identifying
// User-Agent; wrap the client in lookup.RateLimitedGeocoder.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
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

// Geocode returns the best match for query, or lookup.ErrNotFound.
func (c *Client) Geocode(ctx context.Context, query string) (lookup.Coords, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return lookup.Coords{}, lookup.ErrNotFound
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return lookup.Coords{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return lookup.Coords{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return lookup.Coords{}, fmt.Errorf("nominatim error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return lookup.Coords{}, fmt.Errorf("decode response: %w", err)
	}
	if len(results) == 0 {
		return lookup.Coords{}, lookup.ErrNotFound
	}
	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return lookup.Coords{}, fmt.Errorf("parse lat %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return lookup.Coords{}, fmt.Errorf("parse lon %q: %w", results[0].Lon, err)
	}
	return lookup.Coords{Lat: lat, Lon: lon}, nil
}
