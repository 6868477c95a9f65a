// Package stream surfaces turn execution as an incremental event sequence.
// Every stream carries exactly one terminal event and nothing after it.
package stream

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/signalmusic/conductor/internal/observability"
	"github.com/signalmusic/conductor/pkg/composer"
	"github.com/signalmusic/conductor/pkg/failure"
	"github.com/signalmusic/conductor/pkg/session"
)

// EventType tags a stream event
type EventType string

const (
	// EventThinking carries a partial text fragment
	EventThinking EventType = "thinking"
	// EventToolCalls carries the finalized action requests; terminal
	EventToolCalls EventType = "tool_calls"
	// EventMessage carries the final answer text; terminal
	EventMessage EventType = "message"
	// EventToolResultsReceived acknowledges results on a resume stream
	EventToolResultsReceived EventType = "tool_results_received"
	// EventError carries a classified failure; terminal
	EventError EventType = "error"
)

// Event is one entry in a turn's event sequence
type Event struct {
	Type     EventType               `json:"type"`
	ThreadID string                  `json:"thread_id"`
	Content  string                  `json:"content,omitempty"`
	Requests []session.ActionRequest `json:"tool_calls,omitempty"`
	Done     *bool                   `json:"done,omitempty"`
	Count    int                     `json:"count,omitempty"`
	Err      string                  `json:"error,omitempty"`
	Code     int                     `json:"error_code,omitempty"`
}

// Terminal reports whether no further events follow this one
func (e Event) Terminal() bool {
	switch e.Type {
	case EventToolCalls, EventMessage, EventError:
		return true
	}
	return false
}

// Pipeline runs turns through the orchestrator and emits their progress as
// events
type Pipeline struct {
	orch   *composer.Orchestrator
	logger zerolog.Logger
}

// NewPipeline creates a streaming pipeline over an orchestrator
func NewPipeline(orch *composer.Orchestrator, logger zerolog.Logger) *Pipeline {
	return &Pipeline{orch: orch, logger: logger}
}

// StartTurn runs a user turn and streams its progress. The channel closes
// after the terminal event; abandoning it is safe.
func (p *Pipeline) StartTurn(ctx context.Context, params composer.StartParams) <-chan Event {
	if params.ThreadID == "" {
		params.ThreadID = composer.NewThreadID()
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		emit := &emitter{ctx: ctx, events: events, threadID: params.ThreadID}

		emit.send(Event{Type: EventThinking, Content: "Processing your request..."})

		result, err := p.orch.StartTurnStream(ctx, params, emit.fragmentFunc())
		if err != nil {
			emit.fail(err, p.logger)
			return
		}
		emit.terminal(result)
	}()
	return events
}

// ResumeTurn feeds action results back and streams the continuation
func (p *Pipeline) ResumeTurn(ctx context.Context, threadID string, results []session.ActionResult) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		emit := &emitter{ctx: ctx, events: events, threadID: threadID}

		emit.send(Event{Type: EventToolResultsReceived, Count: len(results)})
		emit.send(Event{Type: EventThinking, Content: "Processing tool results..."})

		result, err := p.orch.ResumeTurnStream(ctx, threadID, results, emit.fragmentFunc())
		if err != nil {
			emit.fail(err, p.logger)
			return
		}
		emit.terminal(result)
	}()
	return events
}

// Collect drains a stream and returns the synchronous equivalent of its
// terminal event
func Collect(ctx context.Context, events <-chan Event) (*composer.TurnResult, error) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil, fmt.Errorf("stream closed without a terminal event")
			}
			switch ev.Type {
			case EventToolCalls:
				return &composer.TurnResult{ThreadID: ev.ThreadID, Done: false, Requests: ev.Requests}, nil
			case EventMessage:
				return &composer.TurnResult{ThreadID: ev.ThreadID, Done: true, Requests: []session.ActionRequest{}, Answer: ev.Content}, nil
			case EventError:
				return nil, &failure.Classified{Message: ev.Err, Code: ev.Code}
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// emitter sends events for one stream invocation. Sends stop silently once
// the context is done, so an abandoned consumer never blocks the turn.
type emitter struct {
	ctx      context.Context
	events   chan<- Event
	threadID string
}

func (e *emitter) send(ev Event) {
	ev.ThreadID = e.threadID
	select {
	case e.events <- ev:
		observability.RecordStreamEvent(string(ev.Type))
	case <-e.ctx.Done():
	}
}

// fragmentFunc suppresses repeated fragments within one run. The seen set
// lives only for this invocation; a retried run re-emits identical text.
func (e *emitter) fragmentFunc() composer.FragmentFunc {
	seen := make(map[string]struct{})
	return func(runID, text string) {
		key := runID + ":" + text
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		e.send(Event{Type: EventThinking, Content: text})
	}
}

func (e *emitter) terminal(result *composer.TurnResult) {
	done := result.Done
	if done {
		e.send(Event{Type: EventMessage, Content: result.Answer, Done: &done})
		return
	}
	e.send(Event{Type: EventToolCalls, Requests: result.Requests, Done: &done})
}

func (e *emitter) fail(err error, logger zerolog.Logger) {
	classified := failure.Classify(err)
	observability.RecordClassification(classified.Code)
	logger.Error().Err(err).Str("thread_id", e.threadID).Int("code", classified.Code).Msg("Turn failed")
	e.send(Event{Type: EventError, Err: classified.Message, Code: classified.Code})
}
