package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteSink appends every entry to a turns table, keeping the full history.
type SQLiteSink struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

// NewSQLiteSink opens or creates the database at dbPath.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteSink{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS turns (
		id            TEXT PRIMARY KEY,
		session_id    TEXT NOT NULL,
		branch        TEXT NOT NULL DEFAULT '',
		last_response TEXT NOT NULL,
		locations     TEXT NOT NULL,
		summary       TEXT NOT NULL,
		created_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, created_at);
	`)
	return err
}

func (s *SQLiteSink) newID(at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

// Save inserts e. Entries without a TurnID get a fresh ULID.
func (s *SQLiteSink) Save(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.TurnID == "" {
		e.TurnID = s.newID(e.At)
	}
	locations, err := json.Marshal(nonNil(e.Record.Locations))
	if err != nil {
		return fmt.Errorf("encode locations: %w", err)
	}
	summary, err := json.Marshal(nonNil(e.Record.Summary))
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, branch, last_response, locations, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TurnID, e.SessionID, e.Branch, e.Record.LastResponse,
		string(locations), string(summary), e.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// History returns up to limit entries for sessionID, oldest first.
func (s *SQLiteSink) History(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, branch, last_response, locations, summary, created_at
		 FROM turns WHERE session_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var locations, summary, created string
		if err := rows.Scan(&e.TurnID, &e.SessionID, &e.Branch, &e.Record.LastResponse, &locations, &summary, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(locations), &e.Record.Locations); err != nil {
			return nil, fmt.Errorf("decode locations: %w", err)
		}
		if err := json.Unmarshal([]byte(summary), &e.Record.Summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		if e.At, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
