package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"github.com/signalmusic/conductor/internal/observability"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	thread_id  TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id  TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	call_id    TEXT NOT NULL DEFAULT '',
	requests   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, id);
`

// SQLiteStore is a durable Store backed by SQLite. It satisfies the same
// contract as MemoryStore; sessions survive a process restart.
type SQLiteStore struct {
	db    *sql.DB
	locks map[string]*sync.Mutex
	mu    sync.RWMutex
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed session store
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	observability.EnsureRegistered()

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite session store initialized")

	return &SQLiteStore{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *SQLiteStore) threadLock(threadID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, exists := s.locks[threadID]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	s.locks[threadID] = lock
	return lock
}

// Get returns the session rebuilt from its rows, or ErrNotFound
func (s *SQLiteStore) Get(ctx context.Context, threadID string) (*Session, error) {
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := validateThreadID(threadID); err != nil {
		return nil, err
	}

	lock := s.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	sess := &Session{ThreadID: threadID}
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state, created_at, updated_at FROM sessions WHERE thread_id = ?`, threadID).
		Scan(&state, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	sess.State = State(state)

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, call_id, requests, created_at FROM messages WHERE thread_id = ? ORDER BY id`,
		threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg Message
		var role, requestsJSON string
		if err := rows.Scan(&role, &msg.Content, &msg.CallID, &requestsJSON, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = Role(role)
		if requestsJSON != "" {
			if err := json.Unmarshal([]byte(requestsJSON), &msg.Requests); err != nil {
				return nil, fmt.Errorf("failed to decode action requests: %w", err)
			}
		}
		sess.History = append(sess.History, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	// The outstanding set is the last pausing assistant message's requests.
	if sess.State == StateAwaitingResults {
		for i := len(sess.History) - 1; i >= 0; i-- {
			if sess.History[i].Role == RoleAssistant {
				sess.Pending = append([]ActionRequest(nil), sess.History[i].Requests...)
				break
			}
		}
	}

	return sess, nil
}

// Create creates an empty session row in the reasoning state
func (s *SQLiteStore) Create(ctx context.Context, threadID string) (*Session, error) {
	if err := validateThreadID(threadID); err != nil {
		return nil, err
	}

	lock := s.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (thread_id, state, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		threadID, string(StateReasoning), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if affected == 0 {
		return nil, ErrExists
	}

	return &Session{
		ThreadID:  threadID,
		State:     StateReasoning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Append appends one message row and refreshes the session timestamp
func (s *SQLiteStore) Append(ctx context.Context, threadID string, msg Message) error {
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

	var requestsJSON string
	if len(msg.Requests) > 0 {
		data, err := json.Marshal(msg.Requests)
		if err != nil {
			return fmt.Errorf("failed to encode action requests: %w", err)
		}
		requestsJSON = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE thread_id = ?`, time.Now(), threadID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (thread_id, role, content, call_id, requests, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		threadID, string(msg.Role), msg.Content, msg.CallID, requestsJSON, msg.Timestamp); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}

	return nil
}

// SetState transitions the session state
func (s *SQLiteStore) SetState(ctx context.Context, threadID string, state State) error {
	if err := validateThreadID(threadID); err != nil {
		return err
	}

	lock := s.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = ?, updated_at = ? WHERE thread_id = ?`,
		string(state), time.Now(), threadID)
	if err != nil {
		return fmt.Errorf("failed to set session state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set session state: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// PruneIdle removes sessions idle longer than maxIdle and their messages
func (s *SQLiteStore) PruneIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxIdle)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE thread_id IN (SELECT thread_id FROM sessions WHERE updated_at < ?)`,
		cutoff); err != nil {
		return 0, fmt.Errorf("failed to prune messages: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}

	pruned := int(affected)
	if pruned > 0 {
		observability.RecordSessionsPruned(pruned)
		log.Info().Int("pruned", pruned).Msg("Idle sessions pruned")
	}

	return pruned, nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
