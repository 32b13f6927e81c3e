// Package lookup defines the external lookup capabilities used by the triage core:
// geocoding, official alerts, news, nearby places, web search and IP geolocation.
//
// Each capability is a small interface. Concrete HTTP clients live under
// pkg/adapters; Unavailable satisfies every interface for unconfigured providers.
package lookup

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable is returned by collaborators that are not configured.
var ErrUnavailable = errors.New("lookup: provider unavailable")

// ErrNotFound is returned by a Geocoder that has no match for the query.
var ErrNotFound = errors.New("lookup: not found")

// Coords is a latitude/longitude pair.
type Coords struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String renders the pair with four decimals, e.g. "42.3736,-72.5199".
func (c Coords) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// Alert is an active official alert.
type Alert struct {
	ID       string
	Event    string
	Severity string
	Headline string
}

// Article is a news item or web search hit.
type Article struct {
	Title       string
	Source      string
	URL         string
	Description string
}

// Place is a nearby facility.
type Place struct {
	ID      string
	Name    string
	Address string
	Types   []string
	Rating  float64
}

// IPInfo is the coarse location derived from the caller's public IP.
type IPInfo struct {
	City    string
	Region  string
	Country string
	Coords  *Coords
}

// Hint formats the location as "city, region, country", using N/A for blanks.
func (i IPInfo) Hint() string {
	na := func(s string) string {
		if s == "" {
			return "N/A"
		}
		return s
	}
	return na(i.City) + ", " + na(i.Region) + ", " + na(i.Country)
}

// Geocoder resolves free text to coordinates. Returns ErrNotFound when there is no match.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Coords, error)
}

// Alerts lists active official alerts for a point.
type Alerts interface {
	ActiveAlerts(ctx context.Context, at Coords) ([]Alert, error)
}

// News searches recent news.
type News interface {
	SearchNews(ctx context.Context, query string, pageSize int) ([]Article, error)
}

// Places lists facilities near a point. Intents are free-text categories such as
// "hospital" or "open ground"; an empty list means general emergency services.
type Places interface {
	Nearby(ctx context.Context, at Coords, intents []string) ([]Place, error)
}

// WebSearch is a general web search used as a secondary enrichment source.
type WebSearch interface {
	SearchWeb(ctx context.Context, query string, maxResults int) ([]Article, error)
}

// IPLocator resolves the public IP of the host to a coarse location.
type IPLocator interface {
	Locate(ctx context.Context) (IPInfo, error)
}

// Unavailable implements every lookup capability and always fails with ErrUnavailable.
type Unavailable struct{}

func (Unavailable) Geocode(context.Context, string) (Coords, error) {
	return Coords{}, ErrUnavailable
}

func (Unavailable) ActiveAlerts(context.Context, Coords) ([]Alert, error) {
	return nil, ErrUnavailable
}

func (Unavailable) SearchNews(context.Context, string, int) ([]Article, error) {
	return nil, ErrUnavailable
}

func (Unavailable) Nearby(context.Context, Coords, []string) ([]Place, error) {
	return nil, ErrUnavailable
}

func (Unavailable) SearchWeb(context.Context, string, int) ([]Article, error) {
	return nil, ErrUnavailable
}

func (Unavailable) Locate(context.Context) (IPInfo, error) {
	return IPInfo{}, ErrUnavailable
}

// IsUnavailable reports whether c is the Unavailable placeholder.
func IsUnavailable(c any) bool {
	switch c.(type) {
	case Unavailable, *Unavailable:
		return true
	}
	return c == nil
}
