package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
	"github.com/vango-go/vai-triage/pkg/core/memory"
)

type stubGeocoder struct {
	coords  lookup.Coords
	err     error
	queries []string
}

func (g *stubGeocoder) Geocode(_ context.Context, q string) (lookup.Coords, error) {
	g.queries = append(g.queries, q)
	return g.coords, g.err
}

type blockingGeocoder struct{}

func (blockingGeocoder) Geocode(ctx context.Context, _ string) (lookup.Coords, error) {
	<-ctx.Done()
	return lookup.Coords{}, ctx.Err()
}

func TestLocationCandidate(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"I'm near Olympia Drive, send help", "Olympia Drive"},
		{"There's a fire in my apartment, I'm alone", ""},
		{"I was at the mall and now I'm on   Main   Street.", "Main Street"},
		{"water is rising near the river. I don't know where to go.", "the river"},
		{"help me", ""},
		{"stuck in", ""},
		{"we are AT Elm? please hurry", "Elm"},
	}
	for _, tt := range tests {
		if got := LocationCandidate(tt.text); got != tt.want {
			t.Fatalf("LocationCandidate(%q)=%q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestExtract_FireAlone(t *testing.T) {
	mem := memory.New(nil)
	geo := &stubGeocoder{err: lookup.ErrNotFound}

	New(geo).Extract(context.Background(), mem, "There's a fire in my apartment, I'm alone")

	want := map[memory.Fact]string{
		memory.FactEmergencyType: "fire",
		memory.FactPeople:        "alone",
		memory.FactEnvironment:   "apartment",
	}
	snap := mem.Snapshot()
	if len(snap.Values) != len(want) {
		t.Fatalf("values=%v, want %v", snap.Values, want)
	}
	for k, v := range want {
		if got := snap.Get(k); got != v {
			t.Fatalf("%s=%q, want %q", k, got, v)
		}
	}
	if len(geo.queries) != 0 {
		t.Fatalf("geocoder called with %v", geo.queries)
	}
}

func TestExtract_FirstCategoryWins(t *testing.T) {
	mem := memory.New(nil)
	New(nil).Extract(context.Background(), mem, "smoke everywhere and the building is shaking, my kid is with 3 others")

	if got := mem.Get(memory.FactEmergencyType); got != "fire" {
		t.Fatalf("emergency_type=%q, want fire", got)
	}
	if got := mem.Get(memory.FactVulnerability); got != "child" {
		t.Fatalf("vulnerability=%q, want child", got)
	}
	if got := mem.Get(memory.FactPeople); got != "3 people" {
		t.Fatalf("people_involved=%q, want 3 people", got)
	}
	if got := mem.Get(memory.FactEnvironment); got != "building" {
		t.Fatalf("environment=%q, want building", got)
	}
}

func TestExtract_WholeWordsOnly(t *testing.T) {
	mem := memory.New(nil)
	New(nil).Extract(context.Background(), mem, "I'm holding a firearm, someone is golden")

	snap := mem.Snapshot()
	if !snap.Empty() {
		t.Fatalf("values=%v, want none", snap.Values)
	}
}

func TestExtract_LocationOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		geo         *stubGeocoder
		wantLoc     string
		wantPartial string
		wantCoords  bool
	}{
		{
			name:       "resolved",
			text:       "I'm near Olympia Drive, send help",
			geo:        &stubGeocoder{coords: lookup.Coords{Lat: 42.39, Lon: -72.53}},
			wantLoc:    "Olympia Drive",
			wantCoords: true,
		},
		{
			name:        "short fragment",
			text:        "I'm on Elm",
			geo:         &stubGeocoder{err: lookup.ErrNotFound},
			wantPartial: "Elm",
		},
		{
			name:        "single token",
			text:        "I'm at Northampton",
			geo:         &stubGeocoder{err: errors.New("timeout")},
			wantPartial: "Northampton",
		},
		{
			name:    "unresolved phrase",
			text:    "I'm near the old mill road",
			geo:     &stubGeocoder{err: lookup.ErrNotFound},
			wantLoc: "the old mill road",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memory.New(nil)
			New(tt.geo).Extract(context.Background(), mem, tt.text)

			if got := mem.Get(memory.FactLocation); got != tt.wantLoc {
				t.Fatalf("approx_location=%q, want %q", got, tt.wantLoc)
			}
			if got := mem.Get(memory.FactLocationPartial); got != tt.wantPartial {
				t.Fatalf("approx_location_partial=%q, want %q", got, tt.wantPartial)
			}
			if _, ok := mem.Coords(); ok != tt.wantCoords {
				t.Fatalf("coords present=%v, want %v", ok, tt.wantCoords)
			}
		})
	}
}

func TestExtract_ResolvedLocationClearsPartial(t *testing.T) {
	mem := memory.New(nil)
	geo := &stubGeocoder{err: lookup.ErrNotFound}
	ex := New(geo)

	ex.Extract(context.Background(), mem, "I'm on Elm")
	geo.err = nil
	geo.coords = lookup.Coords{Lat: 1, Lon: 2}
	changes := ex.Extract(context.Background(), mem, "I'm on Elm Road in Amherst")

	if got := mem.Get(memory.FactLocationPartial); got != "" {
		t.Fatalf("partial=%q, want cleared", got)
	}
	if got := mem.Get(memory.FactLocation); got != "Amherst" {
		t.Fatalf("location=%q, want Amherst", got)
	}
	if len(changes) != 3 {
		t.Fatalf("changes=%+v, want location, coords and partial", changes)
	}
}

func TestExtract_SameLocationSkipsGeocoding(t *testing.T) {
	mem := memory.New(nil)
	geo := &stubGeocoder{coords: lookup.Coords{Lat: 1, Lon: 2}}
	ex := New(geo)

	ex.Extract(context.Background(), mem, "near Olympia Drive")
	ex.Extract(context.Background(), mem, "still near Olympia Drive")
	if len(geo.queries) != 1 {
		t.Fatalf("geocode calls=%v, want 1", geo.queries)
	}
}

func TestExtract_GeocodeTimeoutIsBounded(t *testing.T) {
	mem := memory.New(nil)
	ex := New(blockingGeocoder{}, WithGeocodeTimeout(20*time.Millisecond))

	start := time.Now()
	ex.Extract(context.Background(), mem, "I'm near the old mill road")
	if time.Since(start) > time.Second {
		t.Fatal("extraction did not respect geocode timeout")
	}
	if got := mem.Get(memory.FactLocation); got != "the old mill road" {
		t.Fatalf("approx_location=%q", got)
	}
}

func TestMentionsType(t *testing.T) {
	if !MentionsType("medical", "he had a heart attack") {
		t.Fatal("expected medical mention")
	}
	if MentionsType("fire", "I am fine") {
		t.Fatal("unexpected fire mention")
	}
	if MentionsType("unknown", "fire") {
		t.Fatal("unknown type should not match")
	}
}
