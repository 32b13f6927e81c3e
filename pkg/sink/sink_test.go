package sink

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
	"github.com/vango-go/vai-triage/pkg/core/memory"
)

func TestRecordFromSnapshot(t *testing.T) {
	m := memory.New(nil)
	m.Set(memory.FactEmergencyType, "earthquake")
	m.Set(memory.FactLocation, "Amherst")
	m.Set(memory.FactHazards, "collapsed building")
	m.Set(memory.FactIPHint, "Amherst, Massachusetts, United States")
	m.SetCoords(lookup.Coords{Lat: 42.3736, Lon: -72.5199})

	r := RecordFromSnapshot("Move to open ground.", m.Snapshot())
	assert.Equal(t, "Move to open ground.", r.LastResponse)
	assert.Equal(t, []string{"Amherst", "42.3736,-72.5199"}, r.Locations)
	assert.Equal(t, []string{"earthquake", "Amherst", "collapsed building"}, r.Summary)
}

func TestRecordFromSnapshot_FallsBackToIPHint(t *testing.T) {
	m := memory.New(nil)
	m.Set(memory.FactIPHint, "Boston, Massachusetts, United States")

	r := RecordFromSnapshot("", m.Snapshot())
	assert.Equal(t, []string{"Boston, Massachusetts, United States"}, r.Locations)
	assert.NotNil(t, r.Summary)
	assert.Empty(t, r.Summary)
}

func TestFileSink_OverwritesState(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultStateFile), s.Path())

	empty, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, empty.LastResponse)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Entry{Record: Record{LastResponse: "first", Locations: []string{"a"}, Summary: []string{"fire"}}}))
	require.NoError(t, s.Save(ctx, Entry{Record: Record{LastResponse: "second", Locations: []string{}, Summary: []string{}}}))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "second", decoded["last_response"])
	assert.Equal(t, []any{}, decoded["locations"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestSQLiteSink_History(t *testing.T) {
	s, err := NewSQLiteSink(filepath.Join(t.TempDir(), "state", "turns.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, Entry{SessionID: "s1", Branch: "clarify", At: base, Record: Record{LastResponse: "Where are you?"}}))
	require.NoError(t, s.Save(ctx, Entry{TurnID: "turn-2", SessionID: "s1", Branch: "places", At: base.Add(time.Second),
		Record: Record{LastResponse: "Nearest hospital...", Locations: []string{"Amherst"}, Summary: []string{"medical"}}}))
	require.NoError(t, s.Save(ctx, Entry{SessionID: "other", At: base, Record: Record{LastResponse: "x"}}))

	got, err := s.History(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEmpty(t, got[0].TurnID)
	assert.Equal(t, "clarify", got[0].Branch)
	assert.Equal(t, []string{}, got[0].Record.Locations)
	assert.Equal(t, "turn-2", got[1].TurnID)
	assert.Equal(t, []string{"medical"}, got[1].Record.Summary)
	assert.True(t, got[1].At.Equal(base.Add(time.Second)))
}

type failingSink struct{ closed bool }

func (f *failingSink) Save(context.Context, Entry) error { return errors.New("disk full") }

func (f *failingSink) Close() error {
	f.closed = true
	return nil
}

func TestTee_AttemptsEverySink(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSink(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	bad := &failingSink{}

	err = Tee{bad, fs}.Save(context.Background(), Entry{Record: Record{LastResponse: "ok"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	r, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, "ok", r.LastResponse)

	require.NoError(t, Tee{bad, fs}.Close())
	assert.True(t, bad.closed)
}
