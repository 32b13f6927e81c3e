package lookup

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

type countingNews struct {
	calls int
	out   []Article
	err   error
}

func (n *countingNews) SearchNews(context.Context, string, int) ([]Article, error) {
	n.calls++
	return n.out, n.err
}

type countingGeocoder struct {
	calls int
	out   Coords
	err   error
}

func (g *countingGeocoder) Geocode(context.Context, string) (Coords, error) {
	g.calls++
	return g.out, g.err
}

func TestMemoryCache_ExpiresEntries(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	c := NewMemoryCache(clk.Now)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	if got, ok := c.Get(ctx, "k"); !ok || string(got) != "v" {
		t.Fatalf("get=%q ok=%v, want v true", got, ok)
	}

	clk.t = clk.t.Add(time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected entry to expire")
	}
	if c.Len() != 0 {
		t.Fatalf("len=%d, want 0", c.Len())
	}
}

func TestCachedNews_ReusesNonEmptyResults(t *testing.T) {
	next := &countingNews{out: []Article{{Title: "Fire on Main St"}}}
	news := Cached{Cache: NewMemoryCache(nil), TTL: time.Minute}.News(next)

	for i := 0; i < 3; i++ {
		out, err := news.SearchNews(context.Background(), "main st fire", 3)
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		if len(out) != 1 || out[0].Title != "Fire on Main St" {
			t.Fatalf("out=%+v", out)
		}
	}
	if next.calls != 1 {
		t.Fatalf("calls=%d, want 1", next.calls)
	}
}

func TestCachedNews_DoesNotCacheEmpty(t *testing.T) {
	next := &countingNews{}
	news := Cached{Cache: NewMemoryCache(nil)}.News(next)

	_, _ = news.SearchNews(context.Background(), "q", 3)
	_, _ = news.SearchNews(context.Background(), "q", 3)
	if next.calls != 2 {
		t.Fatalf("calls=%d, want 2", next.calls)
	}
}

func TestCachedGeocoder_DoesNotCacheErrors(t *testing.T) {
	next := &countingGeocoder{err: ErrNotFound}
	geo := Cached{Cache: NewMemoryCache(nil)}.Geocoder(next)

	for i := 0; i < 2; i++ {
		if _, err := geo.Geocode(context.Background(), "Olympia Drive"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err=%v, want ErrNotFound", err)
		}
	}
	if next.calls != 2 {
		t.Fatalf("calls=%d, want 2", next.calls)
	}

	next.err = nil
	next.out = Coords{Lat: 1, Lon: 2}
	_, _ = geo.Geocode(context.Background(), "Olympia Drive")
	got, err := geo.Geocode(context.Background(), "  olympia drive ")
	if err != nil || got != next.out {
		t.Fatalf("got=%v err=%v", got, err)
	}
	if next.calls != 3 {
		t.Fatalf("calls=%d, want 3", next.calls)
	}
}

func TestFallbackNews(t *testing.T) {
	primary := &countingNews{err: errors.New("boom")}
	secondary := &countingNews{out: []Article{{Title: "rss"}}}

	out, err := FallbackNews{Primary: primary, Secondary: secondary}.SearchNews(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(out) != 1 || out[0].Title != "rss" {
		t.Fatalf("out=%+v", out)
	}

	primary.err = nil
	primary.out = nil
	secondary.calls = 0
	if _, err := (FallbackNews{Primary: primary, Secondary: secondary}).SearchNews(context.Background(), "q", 3); err != nil {
		t.Fatalf("err=%v", err)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary called on empty primary success")
	}

	if _, err := (FallbackNews{}).SearchNews(context.Background(), "q", 3); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err=%v, want ErrUnavailable", err)
	}
}

type stubWeb struct {
	calls int
	out   []Article
	err   error
}

func (s *stubWeb) SearchWeb(context.Context, string, int) ([]Article, error) {
	s.calls++
	return s.out, s.err
}

func TestFallbackWeb(t *testing.T) {
	primary := &stubWeb{}
	secondary := &stubWeb{out: []Article{{Title: "exa"}}}

	out, err := FallbackWeb{Primary: primary, Secondary: secondary}.SearchWeb(context.Background(), "q", 3)
	if err != nil || len(out) != 1 || out[0].Title != "exa" {
		t.Fatalf("empty primary: out=%+v err=%v", out, err)
	}

	primary.out = []Article{{Title: "tavily"}}
	secondary.calls = 0
	out, _ = FallbackWeb{Primary: primary, Secondary: secondary}.SearchWeb(context.Background(), "q", 3)
	if out[0].Title != "tavily" || secondary.calls != 0 {
		t.Fatalf("out=%+v secondary calls=%d", out, secondary.calls)
	}

	primary.out, primary.err = nil, errors.New("boom")
	secondary.out, secondary.err = nil, errors.New("bang")
	_, err = FallbackWeb{Primary: primary, Secondary: secondary}.SearchWeb(context.Background(), "q", 3)
	if err == nil || err.Error() != "boom\nbang" {
		t.Fatalf("err=%v", err)
	}

	if _, err := (FallbackWeb{}).SearchWeb(context.Background(), "q", 3); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err=%v, want ErrUnavailable", err)
	}
}

func TestRateLimitedGeocoder_HonoursContext(t *testing.T) {
	next := &countingGeocoder{out: Coords{Lat: 1, Lon: 1}}
	g := NewRateLimitedGeocoder(next, rate.Every(time.Hour), 1)

	if _, err := g.Geocode(context.Background(), "a"); err != nil {
		t.Fatalf("first call err=%v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := g.Geocode(ctx, "b"); err == nil {
		t.Fatal("expected limiter wait to fail")
	}
	if next.calls != 1 {
		t.Fatalf("calls=%d, want 1", next.calls)
	}
}

func TestObserved_SkipsNotFound(t *testing.T) {
	var reported []string
	obs := Observed{Provider: "nominatim", Observe: func(p string, err error) {
		reported = append(reported, p)
	}}

	geo := obs.Geocoder(&countingGeocoder{err: ErrNotFound})
	_, _ = geo.Geocode(context.Background(), "x")
	if len(reported) != 0 {
		t.Fatalf("reported=%v, want none", reported)
	}

	geo = obs.Geocoder(&countingGeocoder{err: errors.New("timeout")})
	_, _ = geo.Geocode(context.Background(), "x")
	if len(reported) != 1 || reported[0] != "nominatim" {
		t.Fatalf("reported=%v", reported)
	}
}

func TestIPInfoHint(t *testing.T) {
	got := IPInfo{City: "Amherst", Region: "Massachusetts"}.Hint()
	if got != "Amherst, Massachusetts, N/A" {
		t.Fatalf("hint=%q", got)
	}
}

func TestUnavailable(t *testing.T) {
	var u Unavailable
	if _, err := u.SearchNews(context.Background(), "q", 1); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err=%v", err)
	}
	if !IsUnavailable(u) || !IsUnavailable(nil) {
		t.Fatal("expected Unavailable to be detected")
	}
	if IsUnavailable(&countingNews{}) {
		t.Fatal("real provider reported unavailable")
	}
}
