package lookup

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// RateLimitedGeocoder spaces calls to a Geocoder. Public Nominatim allows one
// request per second.
type RateLimitedGeocoder struct {
	next    Geocoder
	limiter *rate.Limiter
}

// NewRateLimitedGeocoder allows one call per interval of limit, with the given burst.
func NewRateLimitedGeocoder(next Geocoder, limit rate.Limit, burst int) *RateLimitedGeocoder {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedGeocoder{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (g *RateLimitedGeocoder) Geocode(ctx context.Context, query string) (Coords, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Coords{}, err
	}
	return g.next.Geocode(ctx, query)
}

// FallbackNews queries Primary and falls back to Secondary when Primary fails.
// An empty but successful primary result is returned as is.
type FallbackNews struct {
	Primary   News
	Secondary News
}

func (f FallbackNews) SearchNews(ctx context.Context, query string, pageSize int) ([]Article, error) {
	if f.Primary != nil {
		out, err := f.Primary.SearchNews(ctx, query, pageSize)
		if err == nil {
			return out, nil
		}
		if f.Secondary == nil || ctx.Err() != nil {
			return nil, err
		}
	}
	if f.Secondary == nil {
		return nil, ErrUnavailable
	}
	return f.Secondary.SearchNews(ctx, query, pageSize)
}

// FallbackWeb queries Primary and falls back to Secondary when Primary fails or
// finds nothing.
type FallbackWeb struct {
	Primary   WebSearch
	Secondary WebSearch
}

func (f FallbackWeb) SearchWeb(ctx context.Context, query string, maxResults int) ([]Article, error) {
	var primaryErr error
	if f.Primary != nil {
		out, err := f.Primary.SearchWeb(ctx, query, maxResults)
		if err == nil && len(out) > 0 {
			return out, nil
		}
		if f.Secondary == nil || ctx.Err() != nil {
			return out, err
		}
		primaryErr = err
	}
	if f.Secondary == nil {
		return nil, ErrUnavailable
	}
	out, err := f.Secondary.SearchWeb(ctx, query, maxResults)
	if err != nil && primaryErr != nil {
		return nil, errors.Join(primaryErr, err)
	}
	return out, err
}

// Observer is notified about failed lookups, e.g. to count them.
type Observer func(provider string, err error)

// Observed reports errors from the wrapped capabilities under a provider label.
// ErrNotFound is not reported.
type Observed struct {
	Provider string
	Observe  Observer
}

func (o Observed) report(err error) {
	if err == nil || o.Observe == nil || errors.Is(err, ErrNotFound) {
		return
	}
	o.Observe(o.Provider, err)
}

func (o Observed) Geocoder(next Geocoder) Geocoder {
	return geocoderFunc(func(ctx context.Context, q string) (Coords, error) {
		c, err := next.Geocode(ctx, q)
		o.report(err)
		return c, err
	})
}

func (o Observed) Alerts(next Alerts) Alerts {
	return alertsFunc(func(ctx context.Context, at Coords) ([]Alert, error) {
		out, err := next.ActiveAlerts(ctx, at)
		o.report(err)
		return out, err
	})
}

func (o Observed) News(next News) News {
	return newsFunc(func(ctx context.Context, q string, n int) ([]Article, error) {
		out, err := next.SearchNews(ctx, q, n)
		o.report(err)
		return out, err
	})
}

func (o Observed) Places(next Places) Places {
	return placesFunc(func(ctx context.Context, at Coords, intents []string) ([]Place, error) {
		out, err := next.Nearby(ctx, at, intents)
		o.report(err)
		return out, err
	})
}

func (o Observed) Web(next WebSearch) WebSearch {
	return webFunc(func(ctx context.Context, q string, n int) ([]Article, error) {
		out, err := next.SearchWeb(ctx, q, n)
		o.report(err)
		return out, err
	})
}

type geocoderFunc func(ctx context.Context, q string) (Coords, error)

func (f geocoderFunc) Geocode(ctx context.Context, q string) (Coords, error) { return f(ctx, q) }

type alertsFunc func(ctx context.Context, at Coords) ([]Alert, error)

func (f alertsFunc) ActiveAlerts(ctx context.Context, at Coords) ([]Alert, error) { return f(ctx, at) }

type newsFunc func(ctx context.Context, q string, n int) ([]Article, error)

func (f newsFunc) SearchNews(ctx context.Context, q string, n int) ([]Article, error) {
	return f(ctx, q, n)
}

type placesFunc func(ctx context.Context, at Coords, intents []string) ([]Place, error)

func (f placesFunc) Nearby(ctx context.Context, at Coords, intents []string) ([]Place, error) {
	return f(ctx, at, intents)
}

type webFunc func(ctx context.Context, q string, n int) ([]Article, error)

func (f webFunc) SearchWeb(ctx context.Context, q string, n int) ([]Article, error) {
	return f(ctx, q, n)
}
