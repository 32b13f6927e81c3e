// Package gplaces implements lookup.Places with the Google Places nearby search API.
package gplaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
)

const (
	defaultBaseURL = "https://maps.googleapis.com"
	DefaultRadius  = 5000
)

// DefaultTypes are searched when the caller has no intents.
var DefaultTypes = []string{"hospital", "police", "fire_station", "doctor"}

type Client struct {
	apiKey     string
	baseURL    string
	radius     int
	httpClient *http.Client
}

func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		radius:     DefaultRadius,
		httpClient: httpClient,
	}
}

// WithRadius sets the search radius in meters.
func (c *Client) WithRadius(meters int) *Client {
	if meters > 0 {
		c.radius = meters
	}
	return c
}

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type nearbyResult struct {
	PlaceID  string   `json:"place_id"`
	Name     string   `json:"name"`
	Vicinity string   `json:"vicinity"`
	Types    []string `json:"types"`
	Rating   float64  `json:"rating"`
}

// Nearby runs one search per intent keyword, or one per DefaultTypes entry
// when intents is empty, and merges results by place ID in first-seen order.
// It fails only when every search fails.
func (c *Client) Nearby(ctx context.Context, at lookup.Coords, intents []string) ([]lookup.Place, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: google maps api key is not configured", lookup.ErrUnavailable)
	}

	type search struct{ param, value string }
	var searches []search
	for _, intent := range intents {
		if intent = strings.TrimSpace(intent); intent != "" {
			searches = append(searches, search{"keyword", intent})
		}
	}
	if len(searches) == 0 {
		for _, typ := range DefaultTypes {
			searches = append(searches, search{"type", typ})
		}
	}

	var (
		order  []string
		byID   = map[string]*lookup.Place{}
		errs   []error
		failed int
	)
	for _, s := range searches {
		results, err := c.nearby(ctx, at, s.param, s.value)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			errs = append(errs, fmt.Errorf("%s=%s: %w", s.param, s.value, err))
			continue
		}
		for _, r := range results {
			id := r.PlaceID
			if id == "" {
				id = r.Name + "|" + r.Vicinity
			}
			if p, ok := byID[id]; ok {
				p.Types = unionTypes(p.Types, r.Types)
				continue
			}
			order = append(order, id)
			byID[id] = &lookup.Place{
				ID:      r.PlaceID,
				Name:    r.Name,
				Address: r.Vicinity,
				Types:   unionTypes(nil, r.Types),
				Rating:  r.Rating,
			}
		}
	}
	if failed == len(searches) {
		return nil, errors.Join(errs...)
	}

	places := make([]lookup.Place, 0, len(order))
	for _, id := range order {
		places = append(places, *byID[id])
	}
	return places, nil
}

func (c *Client) nearby(ctx context.Context, at lookup.Coords, param, value string) ([]nearbyResult, error) {
	q := url.Values{}
	q.Set("location", strconv.FormatFloat(at.Lat, 'f', -1, 64)+","+strconv.FormatFloat(at.Lon, 'f', -1, 64))
	q.Set("radius", strconv.Itoa(c.radius))
	q.Set(param, value)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/maps/api/place/nearbysearch/json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("places error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded struct {
		Status       string         `json:"status"`
		ErrorMessage string         `json:"error_message"`
		Results      []nearbyResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	switch decoded.Status {
	case "OK", "ZERO_RESULTS":
		return decoded.Results, nil
	default:
		return nil, fmt.Errorf("places status %s: %s", decoded.Status, decoded.ErrorMessage)
	}
}

func unionTypes(have, add []string) []string {
	for _, t := range add {
		dup := false
		for _, h := range have {
			if h == t {
				dup = true
				break
			}
		}
		if !dup {
			have = append(have, t)
		}
	}
	return have
}
