package session

import (
	"context"
	"sync"
	"time"

	"github.com/signalmusic/conductor/internal/observability"
	"github.com/signalmusic/conductor/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// MemoryStore is the default non-durable Store. Sessions do not survive a
// process restart; swap in SQLiteStore for durability.
type MemoryStore struct {
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
	mu       sync.RWMutex
}

// NewMemoryStore creates an in-memory session store
func NewMemoryStore() *MemoryStore {
	observability.EnsureRegistered()

	return &MemoryStore{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

// threadLock gets or creates the mutex serializing one thread's mutations
func (s *MemoryStore) threadLock(threadID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, exists := s.locks[threadID]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	s.locks[threadID] = lock
	return lock
}

// Get returns a copy of the session, or ErrNotFound
func (s *MemoryStore) Get(ctx context.Context, threadID string) (*Session, error) {
	_, span := tracing.StartSpan(ctx, "conductor.session", "session.get",
		attribute.String("thread_id", threadID))
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := validateThreadID(threadID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	sess, exists := s.sessions[threadID]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}

	lock := s.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()
	return sess.Clone(), nil
}

// Create creates an empty session in the reasoning state
func (s *MemoryStore) Create(ctx context.Context, threadID string) (*Session, error) {
	ctx = tracing.WithThreadID(ctx, threadID)
	_, span := tracing.StartSpan(ctx, "conductor.session", "session.create",
		attribute.String("thread_id", threadID))
	defer span.End()

	if err := validateThreadID(threadID); err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		ThreadID:  threadID,
		State:     StateReasoning,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	if _, exists := s.sessions[threadID]; exists {
		s.mu.Unlock()
		return nil, ErrExists
	}
	s.sessions[threadID] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	observability.SetActiveSessions(count)
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Str("thread_id", threadID).
		Msg("Session created")

	return sess.Clone(), nil
}

// Append appends a message to the session history. An assistant message
// replaces the outstanding request set with its own (possibly empty) one.
func (s *MemoryStore) Append(ctx context.Context, threadID string, msg Message) error {
	ctx = tracing.WithThreadID(ctx, threadID)
	_, span := tracing.StartSpan(ctx, "conductor.session", "session.append",
		attribute.String("thread_id", threadID),
		attribute.String("role", string(msg.Role)))
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	if err := validateThreadID(threadID); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	lock := s.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	sess, exists := s.sessions[threadID]
	s.mu.RUnlock()
	if !exists {
		return ErrNotFound
	}

	sess.History = append(sess.History, msg)
	if msg.Role == RoleAssistant {
		sess.Pending = append([]ActionRequest(nil), msg.Requests...)
	}
	sess.UpdatedAt = time.Now()

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Str("thread_id", threadID).
		Str("role", string(msg.Role)).
		Int("requests", len(msg.Requests)).
		Msg("Message appended")

	return nil
}

// SetState transitions the session state. Leaving the awaiting state clears
// the outstanding request set.
func (s *MemoryStore) SetState(ctx context.Context, threadID string, state State) error {
	ctx = tracing.WithThreadID(ctx, threadID)
	_, span := tracing.StartSpan(ctx, "conductor.session", "session.set_state",
		attribute.String("thread_id", threadID),
		attribute.String("state", string(state)))
	defer span.End()

	if err := validateThreadID(threadID); err != nil {
		return err
	}

	lock := s.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	sess, exists := s.sessions[threadID]
	s.mu.RUnlock()
	if !exists {
		return ErrNotFound
	}

	sess.State = state
	if state != StateAwaitingResults {
		sess.Pending = nil
	}
	sess.UpdatedAt = time.Now()

	return nil
}

// Len returns the number of stored sessions
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// PruneIdle removes sessions idle longer than maxIdle and returns the count
// removed. Retention is an external policy; the orchestrator never calls this.
func (s *MemoryStore) PruneIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	var pruned int
	for threadID, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, threadID)
			delete(s.locks, threadID)
			pruned++
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	if pruned > 0 {
		observability.RecordSessionsPruned(pruned)
		observability.SetActiveSessions(count)
		log.Info().Int("pruned", pruned).Msg("Idle sessions pruned")
	}

	return pruned, nil
}
