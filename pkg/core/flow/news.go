package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
)

const (
	newsPageSize = 3
	maxNewsItems = 3
)

// NewsQueries returns the queries used to summarise reports about a stored location.
func NewsQueries(location, emergencyType, city string) []string {
	var qs []string
	add := func(parts ...string) {
		var nonEmpty []string
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				nonEmpty = append(nonEmpty, p)
			}
		}
		if len(nonEmpty) == 0 {
			return
		}
		q := strings.Join(nonEmpty, " ")
		for _, existing := range qs {
			if existing == q {
				return
			}
		}
		qs = append(qs, q)
	}

	if emergencyType != "" {
		add(location, emergencyType)
		add(location, emergencyType, "last night")
		if city != "" {
			add(location, city, emergencyType)
			add(location, city, emergencyType, "last night")
		}
	}
	add(location)
	add(emergencyType)
	return qs
}

// collectNews runs queries in order and keeps up to limit articles with distinct
// headlines. Failed queries are skipped.
func collectNews(ctx context.Context, news lookup.News, queries []string, pageSize, limit int, logger *slog.Logger) ([]lookup.Article, error) {
	seen := make(map[string]bool)
	var out []lookup.Article
	var lastErr error
	succeeded := 0
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		articles, err := news.SearchNews(ctx, q, pageSize)
		if err != nil {
			logger.Debug("news query failed", "query", q, "error", err)
			lastErr = err
			continue
		}
		succeeded++
		for _, a := range articles {
			title := strings.TrimSpace(a.Title)
			if title == "" || seen[title] {
				continue
			}
			seen[title] = true
			a.Title = title
			out = append(out, a)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	if len(out) == 0 && succeeded == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// FormatNews renders the news summary reply.
func FormatNews(articles []lookup.Article) string {
	lines := make([]string, 0, len(articles))
	for _, a := range articles {
		line := "- " + a.Title
		if a.Source != "" {
			line += " (" + a.Source + ")"
		}
		if a.URL != "" {
			line += " - " + a.URL
		}
		lines = append(lines, line)
	}
	return joinLines(newsHeader, lines, newsFooter)
}
