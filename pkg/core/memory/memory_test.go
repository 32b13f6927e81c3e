package memory

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func TestMemorySet_ReportsChangeOnlyOnDifference(t *testing.T) {
	m := New(nil)

	if !m.Set(FactEmergencyType, "fire") {
		t.Fatal("first set should report change")
	}
	if m.Set(FactEmergencyType, "fire") {
		t.Fatal("same value should not report change")
	}
	if !m.Set(FactEmergencyType, "flood") {
		t.Fatal("different value should report change")
	}
	if got := m.Get(FactEmergencyType); got != "flood" {
		t.Fatalf("emergency_type=%q, want flood", got)
	}
	if !m.Set(FactEmergencyType, "") {
		t.Fatal("clearing should report change")
	}
	if got := m.Get(FactEmergencyType); got != "" {
		t.Fatalf("emergency_type=%q, want empty", got)
	}
}

func TestMemorySetCoords(t *testing.T) {
	m := New(nil)
	c := lookup.Coords{Lat: 42.3736, Lon: -72.5199}

	if !m.SetCoords(c) || m.SetCoords(c) {
		t.Fatal("expected change then no change")
	}
	if got := m.Get(FactCoords); got != "42.3736,-72.5199" {
		t.Fatalf("approx_coords=%q", got)
	}
	if m.Set(FactCoords, "1,2") {
		t.Fatal("Set must not write coords")
	}
}

func TestSnapshot_IsolatedFromLaterWrites(t *testing.T) {
	m := New(nil)
	m.Set(FactLocation, "Olympia Drive")
	m.SetCoords(lookup.Coords{Lat: 1, Lon: 2})

	snap := m.Snapshot()
	m.Set(FactLocation, "Main Street")
	m.SetCoords(lookup.Coords{Lat: 3, Lon: 4})

	if got := snap.Get(FactLocation); got != "Olympia Drive" {
		t.Fatalf("snapshot location=%q", got)
	}
	if snap.Coords.Lat != 1 {
		t.Fatalf("snapshot coords=%v", snap.Coords)
	}
}

func TestSnapshotLines_FixedOrder(t *testing.T) {
	m := New(nil)
	m.Set(FactEnvironment, "apartment")
	m.Set(FactEmergencyType, "fire")
	m.Set(FactPeople, "alone")

	got := strings.Join(m.Snapshot().Lines(), "\n")
	want := "emergency_type: fire\npeople_involved: alone\nenvironment: apartment"
	if got != want {
		t.Fatalf("lines=%q, want %q", got, want)
	}
}

func TestSnapshotCity(t *testing.T) {
	tests := []struct {
		hint string
		want string
	}{
		{"Amherst, Massachusetts, United States", "Amherst"},
		{"N/A, N/A, N/A", ""},
		{"", ""},
	}
	for _, tt := range tests {
		s := Snapshot{Values: map[Fact]string{FactIPHint: tt.hint}}
		if got := s.City(); got != tt.want {
			t.Fatalf("City(%q)=%q, want %q", tt.hint, got, tt.want)
		}
	}
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	m := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			m.Set(FactHazards, []string{"gas leak", "knife"}[i%2])
		}(i)
		go func() {
			defer wg.Done()
			_ = m.Snapshot().Lines()
		}()
	}
	wg.Wait()
}

func TestLog_RecentAndTruncate(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	l := NewLog("sys", clk.Now)
	for i := 0; i < 20; i++ {
		l.Append(RoleUser, "u")
	}
	if l.Len() != 21 {
		t.Fatalf("len=%d, want 21", l.Len())
	}
	if got := len(l.Recent(16)); got != 16 {
		t.Fatalf("recent=%d, want 16", got)
	}
	if got := len(l.Recent(100)); got != 21 {
		t.Fatalf("recent=%d, want 21", got)
	}

	l.Truncate()
	turns := l.Snapshot()
	if len(turns) != 1 || turns[0].Role != RoleSystem || turns[0].Content != "sys" {
		t.Fatalf("turns=%+v", turns)
	}
	if got := turns[0].Render(); got != "[SYSTEM] sys" {
		t.Fatalf("render=%q", got)
	}
}

func TestSession_ResetReappliesDefaults(t *testing.T) {
	c := lookup.Coords{Lat: 42.37, Lon: -72.52}
	s := NewSession(SessionOptions{Defaults: IPDefaults{Hint: "Amherst, Massachusetts, United States", Coords: &c}})
	if s.ID == "" {
		t.Fatal("expected session id")
	}

	s.Memory.Set(FactEmergencyType, "fire")
	s.Memory.SetCoords(lookup.Coords{Lat: 1, Lon: 1})
	s.Log.Append(RoleUser, "help")

	s.Reset()

	if got := s.Memory.Get(FactEmergencyType); got != "" {
		t.Fatalf("emergency_type=%q after reset", got)
	}
	if got, _ := s.Memory.Coords(); got != c {
		t.Fatalf("coords=%v, want %v", got, c)
	}
	if got := s.Memory.Get(FactIPHint); got == "" {
		t.Fatal("ip hint not re-applied")
	}
	if s.Log.Len() != 1 {
		t.Fatalf("log len=%d, want 1", s.Log.Len())
	}
}

func TestSession_AppendIfCurrentDropsStaleGeneration(t *testing.T) {
	s := NewSession(SessionOptions{})
	gen := s.Generation()

	if !s.AppendIfCurrent(gen, RoleAssistant, "follow-up") {
		t.Fatal("expected append for current generation")
	}
	s.Reset()
	if s.AppendIfCurrent(gen, RoleAssistant, "stale") {
		t.Fatal("expected stale append to be dropped")
	}
	if last, _ := s.Log.Last(); last.Role != RoleSystem {
		t.Fatalf("last turn=%+v", last)
	}
}
