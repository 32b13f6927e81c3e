// Package enrich runs detached news searches after an immediate safety reply and
// appends a follow-up to the conversation when a matching incident report is found.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
	"github.com/vango-go/vai-triage/pkg/core/memory"
)

const (
	DefaultStartDelay = 500 * time.Millisecond
	DefaultPageSize   = 5
	DefaultTimeout    = 20 * time.Second

	maxResults       = 3
	maxFollowUpItems = 2
	highConfidence   = 3

	followUpHeader = "I found recent reports that may match your incident:"
	followUpFooter = "Is any of these the incident you're experiencing? Reply 'yes' to confirm or give the exact address."
)

// Request describes one enrichment task.
type Request struct {
	SessionID     string
	Generation    uint64
	EmergencyType string
	Location      string
	City          string
	Coords        *lookup.Coords
}

// Result is one ranked incident report.
type Result struct {
	Title  string
	Source string
	URL    string
	Score  int
}

// HighConfidence reports whether the result is specific enough to show the user.
func (r Result) HighConfidence() bool { return r.Score >= highConfidence }

// FollowUp is a message appended to the session after enrichment.
type FollowUp struct {
	SessionID string
	Text      string
	Results   []Result
}

// Outcome labels how a task ended.
type Outcome string

const (
	OutcomeFollowUp Outcome = "follow_up"
	OutcomeNoMatch  Outcome = "no_match"
	OutcomeStale    Outcome = "stale"
	OutcomeSkipped  Outcome = "skipped"
)

var nonWord = regexp.MustCompile(`\W+`)

// BuildQueries returns the search queries for an incident in evaluation order.
func BuildQueries(emergencyType, location, city string, coords *lookup.Coords) []string {
	var qs []string
	if location != "" {
		qs = append(qs,
			`"`+location+`" `+emergencyType,
			location+" "+emergencyType,
			location+" "+emergencyType+" last night",
		)
		if city != "" {
			qs = append(qs,
				`"`+location+" "+city+`" `+emergencyType,
				location+" "+city+" "+emergencyType,
			)
		}
	}
	if coords != nil && location == "" {
		qs = append(qs, fmt.Sprintf("%s near %.4f,%.4f", emergencyType, coords.Lat, coords.Lon))
	}
	if len(qs) == 0 {
		if city != "" {
			qs = append(qs, city+" "+emergencyType)
		} else {
			qs = append(qs, emergencyType)
		}
	}
	return qs
}

// LocationTokens splits a location into lowercase match tokens.
func LocationTokens(location string) []string {
	var out []string
	for _, tk := range nonWord.Split(strings.ToLower(location), -1) {
		if tk != "" {
			out = append(out, tk)
		}
	}
	return out
}

// Score rates how well a report matches the incident.
func Score(blob, emergencyType, city string, locTokens []string) int {
	blob = strings.ToLower(blob)
	score := 0
	if emergencyType != "" && strings.Contains(blob, strings.ToLower(emergencyType)) {
		score += 2
	}
	if city != "" && strings.Contains(blob, strings.ToLower(city)) {
		score++
	}
	for _, tk := range locTokens {
		if strings.Contains(blob, tk) {
			score += 3
		}
	}
	return score
}

// FormatFollowUp renders up to two high-confidence results, or "" when none qualify.
func FormatFollowUp(results []Result) string {
	var lines []string
	for _, r := range results {
		if !r.HighConfidence() {
			continue
		}
		line := "- " + r.Title
		if r.Source != "" {
			line += " (" + r.Source + ")"
		}
		if r.URL != "" {
			line += " - " + r.URL
		}
		lines = append(lines, line)
		if len(lines) == maxFollowUpItems {
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return followUpHeader + "\n" + strings.Join(lines, "\n") + "\n" + followUpFooter
}

// Searcher runs the query plan against the configured news and web collaborators.
type Searcher struct {
	News     lookup.News
	Web      lookup.WebSearch
	PageSize int
	Logger   *slog.Logger
}

// Search returns at most three ranked results for req.
func (s Searcher) Search(ctx context.Context, req Request) []Result {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	queries := BuildQueries(req.EmergencyType, req.Location, req.City, req.Coords)
	tokens := LocationTokens(req.Location)
	seen := make(map[string]bool)
	var found []Result

	collect := func(articles []lookup.Article) []Result {
		ranked := make([]Result, 0, len(articles))
		for _, a := range articles {
			title := strings.TrimSpace(a.Title)
			if title == "" {
				continue
			}
			ranked = append(ranked, Result{
				Title:  title,
				Source: a.Source,
				URL:    a.URL,
				Score:  Score(title+" "+a.Description, req.EmergencyType, req.City, tokens),
			})
		}
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
		return ranked
	}

	if !lookup.IsUnavailable(s.News) {
		for _, q := range queries {
			articles, err := s.News.SearchNews(ctx, q, pageSize)
			if err != nil {
				logger.Debug("enrichment news query failed", "query", q, "error", err)
			}
			for _, r := range collect(articles) {
				if seen[r.Title] {
					continue
				}
				seen[r.Title] = true
				found = append(found, r)
				if len(found) >= maxResults {
					break
				}
			}
			if len(found) >= maxResults || ctx.Err() != nil {
				break
			}
		}
	}

	if hasHighConfidence(found) || lookup.IsUnavailable(s.Web) {
		return found
	}

	var web []Result
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		articles, err := s.Web.SearchWeb(ctx, q, pageSize)
		if err != nil {
			logger.Debug("enrichment web query failed", "query", q, "error", err)
			continue
		}
		web = append(web, collect(articles)...)
	}
	for _, r := range web {
		if seen[r.Title] {
			continue
		}
		seen[r.Title] = true
		found = append(found, r)
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].Score > found[j].Score })
	if len(found) > maxResults {
		found = found[:maxResults]
	}
	return found
}

func hasHighConfidence(rs []Result) bool {
	for _, r := range rs {
		if r.HighConfidence() {
			return true
		}
	}
	return false
}

// Worker executes single enrichment tasks against a session.
type Worker struct {
	Searcher   Searcher
	StartDelay time.Duration
	Timeout    time.Duration
	Logger     *slog.Logger
	Tracer     trace.Tracer

	// Notify, when set, receives every appended follow-up.
	Notify func(FollowUp)
}

// Run performs the task and appends a follow-up to sess when a high-confidence
// match exists and the session was not reset in the meantime.
func (w *Worker) Run(ctx context.Context, sess *memory.Session, req Request) Outcome {
	logger := w.Logger
	if logger == nil {
		logger = sess.Logger()
	}
	tracer := w.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/vango-go/vai-triage/pkg/core/enrich")
	}
	ctx, span := tracer.Start(ctx, "enrich.run", trace.WithAttributes(
		attribute.String("emergency_type", req.EmergencyType),
		attribute.Bool("has_location", req.Location != ""),
	))
	defer span.End()

	if w.StartDelay > 0 {
		t := time.NewTimer(w.StartDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return OutcomeSkipped
		case <-t.C:
		}
	}

	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := w.Searcher.Search(sctx, req)
	text := FormatFollowUp(results)
	if text == "" {
		logger.Debug("enrichment found no confident match", "emergency_type", req.EmergencyType, "results", len(results))
		span.SetAttributes(attribute.String("outcome", string(OutcomeNoMatch)))
		return OutcomeNoMatch
	}
	if !sess.AppendIfCurrent(req.Generation, memory.RoleAssistant, text) {
		logger.Info("dropping follow-up for cleared session", "generation", req.Generation)
		span.SetAttributes(attribute.String("outcome", string(OutcomeStale)))
		return OutcomeStale
	}
	logger.Info("appended enrichment follow-up", "results", len(results))
	span.SetAttributes(attribute.String("outcome", string(OutcomeFollowUp)))
	if w.Notify != nil {
		var shown []Result
		for _, r := range results {
			if r.HighConfidence() && len(shown) < maxFollowUpItems {
				shown = append(shown, r)
			}
		}
		w.Notify(FollowUp{SessionID: sess.ID, Text: text, Results: shown})
	}
	return OutcomeFollowUp
}
