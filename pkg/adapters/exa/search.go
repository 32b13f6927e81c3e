// Package exa implements lookup.WebSearch with the Exa search API.
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
)

const defaultBaseURL = "https://api.exa.ai"

// maxDescription caps the page text kept when no summary or highlight exists.
const maxDescription = 400

type Client struct {
	apiKey     string
	baseURL    string
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
		httpClient: httpClient,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// SearchWeb searches the news category. The description is the summary, then
// the first highlight, then the start of the page text.
func (c *Client) SearchWeb(ctx context.Context, query string, maxResults int) ([]lookup.Article, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: exa api key is not configured", lookup.ErrUnavailable)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	body, err := json.Marshal(map[string]any{
		"query":      query,
		"numResults": maxResults,
		"category":   "news",
		"contents": map[string]any{
			"text": map[string]any{"maxCharacters": maxDescription},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("exa error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded struct {
		Results []struct {
			Title      string   `json:"title"`
			URL        string   `json:"url"`
			Text       string   `json:"text,omitempty"`
			Highlights []string `json:"highlights,omitempty"`
			Summary    string   `json:"summary,omitempty"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]lookup.Article, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		desc := strings.TrimSpace(r.Summary)
		if desc == "" && len(r.Highlights) > 0 {
			desc = strings.TrimSpace(r.Highlights[0])
		}
		if desc == "" {
			desc = strings.TrimSpace(r.Text)
		}
		out = append(out, lookup.Article{
			Title:       strings.TrimSpace(r.Title),
			Source:      hostOf(r.URL),
			URL:         r.URL,
			Description: desc,
		})
	}
	return out, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
