// Package sink persists the outcome of each completed turn so that other
// processes (a dashboard, a status page) can read the current conversation state.
package sink

import (
	"context"
	"errors"
	"time"

	"github.com/vango-go/vai-triage/pkg/core/memory"
)

// Record is the state snapshot written after every completed turn.
type Record struct {
	LastResponse string   `json:"last_response"`
	Locations    []string `json:"locations"`
	Summary      []string `json:"summary"`
}

// summaryFacts are the slots listed in Record.Summary, in order.
var summaryFacts = []memory.Fact{
	memory.FactEmergencyType,
	memory.FactLocation,
	memory.FactVulnerability,
	memory.FactPeople,
	memory.FactHazards,
	memory.FactEnvironment,
}

// RecordFromSnapshot builds a record from the spoken reply and the memory at the
// end of the turn.
func RecordFromSnapshot(reply string, snap memory.Snapshot) Record {
	r := Record{
		LastResponse: reply,
		Locations:    []string{},
		Summary:      []string{},
	}
	for _, f := range []memory.Fact{memory.FactLocation, memory.FactLocationPartial, memory.FactCoords} {
		if v := snap.Get(f); v != "" {
			r.Locations = append(r.Locations, v)
		}
	}
	if len(r.Locations) == 0 {
		if hint := snap.Get(memory.FactIPHint); hint != "" {
			r.Locations = append(r.Locations, hint)
		}
	}
	for _, f := range summaryFacts {
		if v := snap.Get(f); v != "" {
			r.Summary = append(r.Summary, v)
		}
	}
	return r
}

// Entry is one persisted turn.
type Entry struct {
	TurnID    string
	SessionID string
	Branch    string
	At        time.Time
	Record    Record
}

// Sink stores entries.
type Sink interface {
	Save(ctx context.Context, e Entry) error
	Close() error
}

// Tee fans entries out to several sinks. Every sink is attempted.
type Tee []Sink

func (t Tee) Save(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range t {
		if err := s.Save(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t Tee) Close() error {
	var errs []error
	for _, s := range t {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
