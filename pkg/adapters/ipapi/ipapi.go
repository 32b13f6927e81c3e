// Package ipapi implements lookup.IPLocator with the ip-api.com JSON endpoint.
package ipapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
)

// The free tier is HTTP only.
const defaultBaseURL = "http://ip-api.com"

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Locate resolves the caller's public IP.
func (c *Client) Locate(ctx context.Context) (lookup.IPInfo, error) {
	endpoint := c.baseURL + "/json/?fields=status,message,city,regionName,country,lat,lon"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return lookup.IPInfo{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return lookup.IPInfo{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return lookup.IPInfo{}, fmt.Errorf("ip-api error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded struct {
		Status     string   `json:"status"`
		Message    string   `json:"message"`
		City       string   `json:"city"`
		RegionName string   `json:"regionName"`
		Country    string   `json:"country"`
		Lat        *float64 `json:"lat"`
		Lon        *float64 `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return lookup.IPInfo{}, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Status != "success" {
		return lookup.IPInfo{}, fmt.Errorf("ip-api lookup failed: %s", decoded.Message)
	}

	info := lookup.IPInfo{
		City:    decoded.City,
		Region:  decoded.RegionName,
		Country: decoded.Country,
	}
	if decoded.Lat != nil && decoded.Lon != nil {
		info.Coords = &lookup.Coords{Lat: *decoded.Lat, Lon: *decoded.Lon}
	}
	return info, nil
}
