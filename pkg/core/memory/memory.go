// Package memory holds the per-session conversation state: the structured fact
// table extracted from utterances, the append-only conversation log, and the
// Session that owns both.
package memory

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
)

// Fact names a slot in the conversation memory.
type Fact string

const (
	FactEmergencyType   Fact = "emergency_type"
	FactLocation        Fact = "approx_location"
	FactLocationPartial Fact = "approx_location_partial"
	FactCoords          Fact = "approx_coords"
	FactVulnerability   Fact = "vulnerability"
	FactPeople          Fact = "people_involved"
	FactHazards         Fact = "hazards"
	FactEnvironment     Fact = "environment"
	FactIPHint          Fact = "ip_location_hint"
	FactUserLang        Fact = "user_lang"
)

// Facts lists every slot in rendering order.
var Facts = []Fact{
	FactEmergencyType,
	FactLocation,
	FactLocationPartial,
	FactVulnerability,
	FactPeople,
	FactHazards,
	FactEnvironment,
	FactIPHint,
	FactCoords,
	FactUserLang,
}

// Change records one mutation of the memory.
type Change struct {
	Fact  Fact
	Value string
}

// Memory is the lock-guarded fact table. A slot is only overwritten when the new
// value differs from the stored one.
type Memory struct {
	mu     sync.RWMutex
	values map[Fact]string
	coords *lookup.Coords
	logger *slog.Logger
}

// New creates an empty memory.
func New(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		values: make(map[Fact]string),
		logger: logger,
	}
}

// Set stores value under fact and reports whether anything changed.
// An empty value clears the slot. Use SetCoords for FactCoords.
func (m *Memory) Set(fact Fact, value string) bool {
	if fact == FactCoords {
		return false
	}
	m.mu.Lock()
	if m.values[fact] == value {
		m.mu.Unlock()
		return false
	}
	if value == "" {
		delete(m.values, fact)
	} else {
		m.values[fact] = value
	}
	m.mu.Unlock()

	m.logger.Info("stored fact", "fact", string(fact), "value", value)
	return true
}

// SetCoords stores the approximate coordinates and reports whether they changed.
func (m *Memory) SetCoords(c lookup.Coords) bool {
	m.mu.Lock()
	if m.coords != nil && *m.coords == c {
		m.mu.Unlock()
		return false
	}
	cc := c
	m.coords = &cc
	m.mu.Unlock()

	m.logger.Info("stored fact", "fact", string(FactCoords), "value", c.String())
	return true
}

// Get returns the value of fact, or "" if unset.
func (m *Memory) Get(fact Fact) string {
	if fact == FactCoords {
		if c, ok := m.Coords(); ok {
			return c.String()
		}
		return ""
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[fact]
}

// Coords returns the stored coordinates.
func (m *Memory) Coords() (lookup.Coords, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.coords == nil {
		return lookup.Coords{}, false
	}
	return *m.coords, true
}

// Reset clears every slot.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.values = make(map[Fact]string)
	m.coords = nil
	m.mu.Unlock()
}

// Snapshot returns a consistent copy of the memory.
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{Values: make(map[Fact]string, len(m.values))}
	for k, v := range m.values {
		s.Values[k] = v
	}
	if m.coords != nil {
		c := *m.coords
		s.Coords = &c
	}
	return s
}

// Snapshot is an immutable view of the memory at one point in time.
type Snapshot struct {
	Values map[Fact]string
	Coords *lookup.Coords
}

// Get returns the value of fact in the snapshot.
func (s Snapshot) Get(fact Fact) string {
	if fact == FactCoords {
		if s.Coords == nil {
			return ""
		}
		return s.Coords.String()
	}
	return s.Values[fact]
}

// Empty reports whether no fact is set.
func (s Snapshot) Empty() bool {
	return len(s.Values) == 0 && s.Coords == nil
}

// Lines renders the non-empty facts as "key: value" in rendering order.
func (s Snapshot) Lines() []string {
	var out []string
	for _, f := range Facts {
		if v := s.Get(f); v != "" {
			out = append(out, fmt.Sprintf("%s: %s", f, v))
		}
	}
	return out
}

// City returns the first component of the IP location hint.
func (s Snapshot) City() string {
	hint := s.Values[FactIPHint]
	if hint == "" {
		return ""
	}
	city := strings.TrimSpace(strings.SplitN(hint, ",", 2)[0])
	if city == "N/A" {
		return ""
	}
	return city
}
