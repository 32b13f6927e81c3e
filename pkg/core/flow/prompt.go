package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
	"github.com/vango-go/vai-triage/pkg/core/memory"
)

const (
	DefaultHistoryTurns  = 16
	DefaultMaxPinned     = 800
	DefaultLookupTimeout = 6 * time.Second
	DefaultModelTimeout  = 15 * time.Second

	maxPromptAlerts = 3
)

// PromptBuilder assembles the model prompt from the session memory, live lookups
// and recent conversation.
type PromptBuilder struct {
	Alerts lookup.Alerts
	News   lookup.News
	Places lookup.Places

	// LookupTimeout bounds each external lookup independently.
	LookupTimeout time.Duration
	HistoryTurns  int
	MaxPinned     int
	Logger        *slog.Logger
}

// Build returns the full prompt for the current state of sess.
func (b *PromptBuilder) Build(ctx context.Context, sess *memory.Session) string {
	snap := sess.Memory.Snapshot()

	n := b.HistoryTurns
	if n <= 0 {
		n = DefaultHistoryTurns
	}
	turns := sess.Log.Recent(n)
	rendered := make([]string, 0, len(turns))
	for _, t := range turns {
		rendered = append(rendered, t.Render())
	}

	return b.Pinned(snap) + "\n\n" + b.External(ctx, snap) + "\n\n" + strings.Join(rendered, "\n\n")
}

// Pinned renders the memory block, truncated to MaxPinned runes.
func (b *PromptBuilder) Pinned(snap memory.Snapshot) string {
	limit := b.MaxPinned
	if limit <= 0 {
		limit = DefaultMaxPinned
	}
	body := "None"
	if lines := snap.Lines(); len(lines) > 0 {
		body = strings.Join(lines, "\n")
	}
	block := "Pinned context:\n" + body
	if r := []rune(block); len(r) > limit {
		block = string(r[:limit]) + "…"
	}
	return block
}

// External renders the live-data block. Each lookup degrades on its own; the block
// is always produced.
func (b *PromptBuilder) External(ctx context.Context, snap memory.Snapshot) string {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := b.LookupTimeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}

	loc := snap.Get(memory.FactLocation)
	et := snap.Get(memory.FactEmergencyType)
	coords := snap.Coords

	var alertsLine, newsLine, placesLine string
	var g errgroup.Group

	if coords != nil {
		g.Go(func() error {
			alertsLine = b.alertsLine(ctx, *coords, timeout, logger)
			return nil
		})
		g.Go(func() error {
			placesLine = b.placesLine(ctx, *coords, et, timeout, logger)
			return nil
		})
	} else {
		placesLine = "- Nearby places: unknown (no coords)"
	}
	g.Go(func() error {
		newsLine = b.newsLine(ctx, loc, et, snap.City(), timeout, logger)
		return nil
	})
	_ = g.Wait()

	parts := []string{"External data:"}
	switch {
	case coords != nil:
		parts = append(parts, fmt.Sprintf("- Approx coords: %.4f,%.4f", coords.Lat, coords.Lon))
	case loc != "":
		parts = append(parts, "- Approx location: "+loc)
	default:
		parts = append(parts, "- Approx location: unknown")
	}
	if alertsLine != "" {
		parts = append(parts, alertsLine)
	}
	parts = append(parts, newsLine, placesLine)
	if et != "" {
		parts = append(parts, "- Safety hint: "+SafetyHint(et))
	}
	return strings.Join(parts, "\n")
}

func (b *PromptBuilder) alertsLine(ctx context.Context, at lookup.Coords, timeout time.Duration, logger *slog.Logger) string {
	if lookup.IsUnavailable(b.Alerts) {
		return "- Active alerts: unavailable"
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	alerts, err := b.Alerts.ActiveAlerts(ctx, at)
	if err != nil {
		logger.Debug("alerts lookup failed", "error", err)
		return "- Active alerts: unavailable"
	}
	if len(alerts) == 0 {
		return "- Active alerts: none"
	}
	items := make([]string, 0, maxPromptAlerts)
	for i, a := range alerts {
		if i == maxPromptAlerts {
			break
		}
		ev := a.Event
		if ev == "" {
			ev = a.Headline
		}
		if ev == "" {
			ev = a.ID
		}
		items = append(items, strings.TrimSpace(fmt.Sprintf("%s (%s)", ev, a.Severity)))
	}
	return "- Active alerts: " + strings.Join(items, ", ")
}

func (b *PromptBuilder) newsLine(ctx context.Context, loc, et, city string, timeout time.Duration, logger *slog.Logger) string {
	if lookup.IsUnavailable(b.News) {
		return "- Recent related news: unavailable"
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	queries := NewsQueries(loc, et, city)
	queries = append(queries, "emergency")
	articles, err := collectNews(ctx, b.News, queries, newsPageSize, maxNewsItems, logger)
	if err != nil {
		return "- Recent related news: unavailable"
	}
	if len(articles) == 0 {
		return "- Recent related news: none"
	}
	titles := make([]string, 0, len(articles))
	for _, a := range articles {
		titles = append(titles, a.Title)
	}
	return "- Recent related news: " + strings.Join(titles, " | ")
}

func (b *PromptBuilder) placesLine(ctx context.Context, at lookup.Coords, et string, timeout time.Duration, logger *slog.Logger) string {
	if lookup.IsUnavailable(b.Places) {
		return "- Nearby places: unavailable"
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	places, err := b.Places.Nearby(ctx, at, PlaceIntents(et))
	if err != nil {
		logger.Debug("places lookup failed", "error", err)
		return "- Nearby places: unavailable"
	}
	places = RankPlaces(et, places)
	if len(places) == 0 {
		return "- Nearby places: none found"
	}
	items := make([]string, 0, maxPlaces)
	for i, p := range places {
		if i == maxPlaces {
			break
		}
		item := p.Name
		if p.Address != "" {
			item += " - " + p.Address
		}
		items = append(items, item)
	}
	return "- Nearby places: " + strings.Join(items, " ; ")
}
