package memory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
)

// DefaultSystemPrompt seeds every conversation log.
const DefaultSystemPrompt = "You are a calm, concise, safety-first emergency response assistant. " +
	"Always prioritize the user's safety and privacy. " +
	"Keep responses short and direct. " +
	"You are still a virtual assistant who can't make real world calls, so never say things like I am sending help for you."

// IPDefaults are the facts derived from IP geolocation at session start.
type IPDefaults struct {
	Hint   string
	Coords *lookup.Coords
}

// DefaultsFromIP converts a located IP into session defaults.
func DefaultsFromIP(info lookup.IPInfo) IPDefaults {
	d := IPDefaults{Hint: info.Hint()}
	if info.Coords != nil {
		c := *info.Coords
		d.Coords = &c
	}
	return d
}

// Session is the explicit context object shared by the extractor, the flow engine,
// the turn controller and enrichment tasks.
type Session struct {
	ID     string
	Memory *Memory
	Log    *Log

	mu         sync.Mutex
	defaults   IPDefaults
	generation uint64
	logger     *slog.Logger
}

// SessionOptions configures NewSession.
type SessionOptions struct {
	SystemPrompt string
	Defaults     IPDefaults
	Logger       *slog.Logger
	Now          func() time.Time
}

// NewSession creates a session with IP defaults applied.
func NewSession(opts SessionOptions) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	id := uuid.NewString()
	logger := opts.Logger.With("session_id", id)
	s := &Session{
		ID:       id,
		Memory:   New(logger),
		Log:      NewLog(opts.SystemPrompt, opts.Now),
		defaults: opts.Defaults,
		logger:   logger,
	}
	s.applyDefaults()
	return s
}

func (s *Session) applyDefaults() {
	if s.defaults.Hint != "" {
		s.Memory.Set(FactIPHint, s.defaults.Hint)
	}
	if s.defaults.Coords != nil {
		s.Memory.SetCoords(*s.defaults.Coords)
	}
}

// Generation identifies the current incarnation of the session; Reset increments it.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Reset clears every fact, truncates the log to the system turn and re-applies the
// IP defaults.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Memory.Reset()
	s.Log.Truncate()
	s.applyDefaults()
	s.generation++
	s.logger.Info("session cleared", "generation", s.generation)
}

// AppendIfCurrent appends to the log only if no Reset happened since gen was read.
func (s *Session) AppendIfCurrent(gen uint64, role Role, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.Log.Append(role, content)
	return true
}

// Logger returns the session-scoped logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}
