package reasoning

import (
	"context"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewRunID mints an opaque identifier for one generation run. The streaming
// pipeline scopes its fragment deduplication to this identifier.
func NewRunID() string {
	id, err := gonanoid.New()
	if err != nil {
		// gonanoid only fails when the system entropy source does.
		panic(err)
	}
	return id
}

// Stream is a finite, non-restartable sequence of text fragments followed by
// a terminal Outcome. Providers produce into it from a goroutine; consumers
// drain it with Recv and read the outcome once Recv reports completion.
type Stream struct {
	runID     string
	fragments chan string
	abort     chan struct{}
	abortOnce sync.Once

	mu      sync.Mutex
	outcome *Outcome
	err     error
}

// NewStream creates a stream for one generation run. When runID is empty a
// fresh one is minted.
func NewStream(runID string) *Stream {
	if runID == "" {
		runID = NewRunID()
	}
	return &Stream{
		runID:     runID,
		fragments: make(chan string, 16),
		abort:     make(chan struct{}),
	}
}

// RunID returns the generation run identifier
func (s *Stream) RunID() string {
	return s.runID
}

// Push delivers one text fragment, in generation order. Producer side only.
// It returns false once the consumer has abandoned the stream.
func (s *Stream) Push(fragment string) bool {
	select {
	case s.fragments <- fragment:
		return true
	case <-s.abort:
		return false
	}
}

// Finish records the terminal outcome (or error) and closes the stream.
// Producer side only; must be called exactly once.
func (s *Stream) Finish(outcome *Outcome, err error) {
	s.mu.Lock()
	s.outcome = outcome
	s.err = err
	s.mu.Unlock()
	close(s.fragments)
}

// Abandon releases the producer when the consumer stops reading early.
// Safe to call multiple times and after normal completion.
func (s *Stream) Abandon() {
	s.abortOnce.Do(func() {
		close(s.abort)
	})
}

// Recv returns the next fragment. ok is false once the stream has finished
// or the context is done; after a finished stream Outcome carries the
// terminal result.
func (s *Stream) Recv(ctx context.Context) (fragment string, ok bool) {
	select {
	case fragment, ok = <-s.fragments:
		return fragment, ok
	case <-ctx.Done():
		return "", false
	}
}

// Outcome returns the terminal outcome or error. Valid only after Recv has
// reported completion.
func (s *Stream) Outcome() (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, s.err
}
