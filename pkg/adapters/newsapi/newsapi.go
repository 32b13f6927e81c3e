// Package newsapi implements lookup.News with the NewsAPI.org everything endpoint.
package newsapi

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

const defaultBaseURL = "https://newsapi.org"

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

// SearchNews returns the newest articles matching query.
func (c *Client) SearchNews(ctx context.Context, query string, pageSize int) ([]lookup.Article, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: newsapi key is not configured", lookup.ErrUnavailable)
	}
	if pageSize <= 0 {
		pageSize = 5
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("sortBy", "publishedAt")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/everything?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("newsapi error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			Title  string `json:"title"`
			Source struct {
				Name string `json:"name"`
			} `json:"source"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Status == "error" {
		return nil, fmt.Errorf("newsapi error: %s", decoded.Message)
	}

	out := make([]lookup.Article, 0, len(decoded.Articles))
	for _, a := range decoded.Articles {
		out = append(out, lookup.Article{
			Title:       a.Title,
			Source:      a.Source.Name,
			URL:         a.URL,
			Description: a.Description,
		})
	}
	return out, nil
}
