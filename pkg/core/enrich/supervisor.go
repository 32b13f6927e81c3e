package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/vango-go/vai-triage/pkg/core/memory"
)

// ErrClosed is returned by Spawn after Close.
var ErrClosed = errors.New("enrich: supervisor closed")

// DefaultPoolSize bounds the number of concurrently running tasks.
const DefaultPoolSize = 8

// Supervisor runs enrichment tasks on a bounded pool. Tasks are detached from the
// turn that spawned them; they are tracked so shutdown can wait for them.
type Supervisor struct {
	worker *Worker
	pool   *ants.Pool
	logger *slog.Logger
	base   context.Context

	wg        sync.WaitGroup
	mu        sync.Mutex
	closed    bool
	followUps chan FollowUp

	// OnOutcome, when set, observes every finished task.
	OnOutcome func(Outcome)
}

// NewSupervisor creates a supervisor with poolSize workers. Follow-ups are also
// published on a channel of the given buffer size.
func NewSupervisor(worker *Worker, poolSize, buffer int, logger *slog.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	if buffer < 0 {
		buffer = 0
	}
	s := &Supervisor{
		worker:    worker,
		logger:    logger,
		base:      context.Background(),
		followUps: make(chan FollowUp, buffer),
	}
	pool, err := ants.NewPool(poolSize,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			s.logger.Error("enrichment task panicked", "panic", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("enrichment pool: %w", err)
	}
	s.pool = pool

	prev := worker.Notify
	worker.Notify = func(f FollowUp) {
		if prev != nil {
			prev(f)
		}
		select {
		case s.followUps <- f:
		default:
			s.logger.Warn("follow-up channel full; dropping notification", "session_id", f.SessionID)
		}
	}
	return s, nil
}

// FollowUps delivers appended follow-ups. The channel is never closed.
func (s *Supervisor) FollowUps() <-chan FollowUp {
	return s.followUps
}

// Spawn starts enrichment for sess without blocking. The task is bound to the
// session generation observed now.
func (s *Supervisor) Spawn(sess *memory.Session, emergencyType, location string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	snap := sess.Memory.Snapshot()
	req := Request{
		SessionID:     sess.ID,
		Generation:    sess.Generation(),
		EmergencyType: emergencyType,
		Location:      location,
		City:          snap.City(),
		Coords:        snap.Coords,
	}

	err := s.pool.Submit(func() {
		defer s.wg.Done()
		outcome := s.worker.Run(s.base, sess, req)
		if s.OnOutcome != nil {
			s.OnOutcome(outcome)
		}
	})
	if err != nil {
		s.wg.Done()
		s.logger.Warn("enrichment not started", "error", err, "emergency_type", emergencyType)
		return fmt.Errorf("submit enrichment: %w", err)
	}
	s.logger.Debug("enrichment spawned", "emergency_type", emergencyType, "location", location)
	return nil
}

// Running returns the number of tasks currently executing.
func (s *Supervisor) Running() int {
	return s.pool.Running()
}

// Drain stops accepting new tasks and waits for running ones until ctx is done.
func (s *Supervisor) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	defer s.pool.Release()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
