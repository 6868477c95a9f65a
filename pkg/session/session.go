package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the state-machine state of a session
type State string

const (
	// StateReasoning is the initial state; the engine may be invoked
	StateReasoning State = "REASONING"
	// StateAwaitingResults means the last turn paused on action requests
	StateAwaitingResults State = "AWAITING_RESULTS"
	// StateComplete means the last turn produced a final answer
	StateComplete State = "COMPLETE"
)

// Role identifies the kind of a message, decided at construction time
type Role string

const (
	// RoleUser is a user message
	RoleUser Role = "user"
	// RoleAssistant is an engine message; it pauses the session when it carries requests
	RoleAssistant Role = "assistant"
	// RoleActionResult is the outcome of an externally executed action
	RoleActionResult Role = "action_result"
)

// ActionRequest is a structured request for the external executor to perform
// a side-effecting operation. The call ID is assigned by the reasoning engine
// and is opaque here.
type ActionRequest struct {
	CallID string                 `json:"id"`
	Name   string                 `json:"name"`
	Args   map[string]interface{} `json:"args"`
}

// ActionResult is the outcome of executing an ActionRequest, supplied by the
// caller on resume. The output payload is opaque text.
type ActionResult struct {
	CallID string `json:"id"`
	Output string `json:"result"`
}

// Message represents a single conversation turn
type Message struct {
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Requests  []ActionRequest `json:"requests,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewUserMessage constructs a user message
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text, Timestamp: time.Now()}
}

// NewAssistantMessage constructs a final assistant message
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text, Timestamp: time.Now()}
}

// NewAssistantRequests constructs an assistant message that pauses the
// session on the given action requests.
func NewAssistantRequests(text string, requests []ActionRequest) Message {
	return Message{Role: RoleAssistant, Content: text, Requests: requests, Timestamp: time.Now()}
}

// NewActionResultMessage constructs an action-result message associated with
// a prior request by call ID.
func NewActionResultMessage(callID, output string) Message {
	return Message{Role: RoleActionResult, Content: output, CallID: callID, Timestamp: time.Now()}
}

// Pauses reports whether appending this message suspends the session
func (m Message) Pauses() bool {
	return m.Role == RoleAssistant && len(m.Requests) > 0
}

// Session holds the conversation and execution state for one thread
type Session struct {
	ThreadID  string          `json:"thread_id"`
	History   []Message       `json:"history"`
	State     State           `json:"state"`
	Pending   []ActionRequest `json:"pending,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to callers
func (s *Session) Clone() *Session {
	out := &Session{
		ThreadID:  s.ThreadID,
		State:     s.State,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if len(s.History) > 0 {
		out.History = make([]Message, len(s.History))
		copy(out.History, s.History)
	}
	if len(s.Pending) > 0 {
		out.Pending = make([]ActionRequest, len(s.Pending))
		copy(out.Pending, s.Pending)
	}
	return out
}

// PendingCallIDs returns the outstanding request identifiers
func (s *Session) PendingCallIDs() []string {
	ids := make([]string, 0, len(s.Pending))
	for _, req := range s.Pending {
		ids = append(ids, req.CallID)
	}
	return ids
}

// Store errors
var (
	// ErrNotFound is returned when a thread ID has no session
	ErrNotFound = errors.New("session not found")
	// ErrExists is returned when creating a session that already exists
	ErrExists = errors.New("session already exists")
)

// Store is the session persistence contract. Implementations must serialize
// mutations per thread ID and let unrelated threads proceed independently.
type Store interface {
	// Get returns a copy of the session, or ErrNotFound
	Get(ctx context.Context, threadID string) (*Session, error)
	// Create creates an empty session in the reasoning state, or ErrExists
	Create(ctx context.Context, threadID string) (*Session, error)
	// Append appends a message to the session history, or ErrNotFound
	Append(ctx context.Context, threadID string, msg Message) error
	// SetState transitions the session state, or ErrNotFound
	SetState(ctx context.Context, threadID string, state State) error
}

// validateThreadID rejects keys that cannot be used safely as storage keys
func validateThreadID(threadID string) error {
	if threadID == "" {
		return fmt.Errorf("thread ID cannot be empty")
	}
	if strings.Contains(threadID, "\x00") {
		return fmt.Errorf("thread ID cannot contain null bytes")
	}
	return nil
}
