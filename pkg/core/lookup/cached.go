package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cached wraps lookup capabilities with a shared result cache.
// Only successful, non-empty results are stored.
type Cached struct {
	Cache Cache
	TTL   time.Duration
}

func (c Cached) load(ctx context.Context, key string, dst any) bool {
	if c.Cache == nil {
		return false
	}
	b, ok := c.Cache.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(b, dst) == nil
}

func (c Cached) store(ctx context.Context, key string, v any) {
	if c.Cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.Cache.Set(ctx, key, b, c.TTL)
}

// Geocoder returns a caching Geocoder.
func (c Cached) Geocoder(next Geocoder) Geocoder {
	return cachedGeocoder{c: c, next: next}
}

// Alerts returns a caching Alerts.
func (c Cached) Alerts(next Alerts) Alerts {
	return cachedAlerts{c: c, next: next}
}

// News returns a caching News.
func (c Cached) News(next News) News {
	return cachedNews{c: c, next: next}
}

// Places returns a caching Places.
func (c Cached) Places(next Places) Places {
	return cachedPlaces{c: c, next: next}
}

type cachedGeocoder struct {
	c    Cached
	next Geocoder
}

func (g cachedGeocoder) Geocode(ctx context.Context, query string) (Coords, error) {
	key := "geo:" + strings.ToLower(strings.TrimSpace(query))
	var out Coords
	if g.c.load(ctx, key, &out) {
		return out, nil
	}
	out, err := g.next.Geocode(ctx, query)
	if err != nil {
		return Coords{}, err
	}
	g.c.store(ctx, key, out)
	return out, nil
}

type cachedAlerts struct {
	c    Cached
	next Alerts
}

func (a cachedAlerts) ActiveAlerts(ctx context.Context, at Coords) ([]Alert, error) {
	key := "nws:" + at.String()
	var out []Alert
	if a.c.load(ctx, key, &out) {
		return out, nil
	}
	out, err := a.next.ActiveAlerts(ctx, at)
	if err != nil {
		return nil, err
	}
	a.c.store(ctx, key, out)
	return out, nil
}

type cachedNews struct {
	c    Cached
	next News
}

func (n cachedNews) SearchNews(ctx context.Context, query string, pageSize int) ([]Article, error) {
	key := fmt.Sprintf("news:%d:%s", pageSize, query)
	var out []Article
	if n.c.load(ctx, key, &out) {
		return out, nil
	}
	out, err := n.next.SearchNews(ctx, query, pageSize)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		n.c.store(ctx, key, out)
	}
	return out, nil
}

type cachedPlaces struct {
	c    Cached
	next Places
}

func (p cachedPlaces) Nearby(ctx context.Context, at Coords, intents []string) ([]Place, error) {
	key := "places:" + at.String() + ":" + strings.Join(intents, "|")
	var out []Place
	if p.c.load(ctx, key, &out) {
		return out, nil
	}
	out, err := p.next.Nearby(ctx, at, intents)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		p.c.store(ctx, key, out)
	}
	return out, nil
}
