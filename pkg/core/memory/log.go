package memory

import (
	"strings"
	"sync"
	"time"
)

// Role tags a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation log.
type Turn struct {
	Role    Role
	Content string
	At      time.Time
}

// Render formats the turn as "[ROLE] content".
func (t Turn) Render() string {
	return "[" + strings.ToUpper(string(t.Role)) + "] " + t.Content
}

// Log is the append-only conversation log. The first turn is the system prompt and
// survives Truncate.
type Log struct {
	mu    sync.RWMutex
	turns []Turn
	now   func() time.Time
}

// NewLog creates a log seeded with the system prompt.
func NewLog(systemPrompt string, now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	l := &Log{
		turns: make([]Turn, 0, 16),
		now:   now,
	}
	l.turns = append(l.turns, Turn{Role: RoleSystem, Content: systemPrompt, At: now()})
	return l
}

// Append adds a turn.
func (l *Log) Append(role Role, content string) {
	l.mu.Lock()
	l.turns = append(l.turns, Turn{Role: role, Content: content, At: l.now()})
	l.mu.Unlock()
}

// Len returns the number of turns.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Snapshot copies every turn.
func (l *Log) Snapshot() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Recent copies the last n turns.
func (l *Log) Recent(n int) []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	start := len(l.turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(l.turns)-start)
	copy(out, l.turns[start:])
	return out
}

// Last returns the most recent turn.
func (l *Log) Last() (Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}

// Truncate drops everything but the initial system turn.
func (l *Log) Truncate() {
	l.mu.Lock()
	if len(l.turns) > 1 {
		l.turns = l.turns[:1:1]
	}
	l.mu.Unlock()
}
