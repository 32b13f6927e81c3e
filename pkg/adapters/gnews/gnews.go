// Package gnews implements lookup.News with the keyless Google News RSS search feed.
package gnews

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
)

const defaultBaseURL = "https://news.google.com"

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

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Source      string `xml:"source"`
	Description string `xml:"description"`
}

// SearchNews returns at most pageSize feed items matching query.
func (c *Client) SearchNews(ctx context.Context, query string, pageSize int) ([]lookup.Article, error) {
	if pageSize <= 0 {
		pageSize = 5
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("hl", "en-US")
	q.Set("gl", "US")
	q.Set("ceid", "US:en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rss/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("google news error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var feed rssFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	items := feed.Channel.Items
	if len(items) > pageSize {
		items = items[:pageSize]
	}
	out := make([]lookup.Article, 0, len(items))
	for _, it := range items {
		out = append(out, lookup.Article{
			Title:       strings.TrimSpace(it.Title),
			Source:      strings.TrimSpace(it.Source),
			URL:         strings.TrimSpace(it.Link),
			Description: plainText(it.Description),
		})
	}
	return out, nil
}

// plainText strips the HTML that Google News embeds in item descriptions.
func plainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" || !strings.Contains(fragment, "<") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
