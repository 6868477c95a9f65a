// Package composer orchestrates split-execution turns: the reasoning engine
// runs here, but requested actions execute on the caller's side. A turn
// either completes with an answer or pauses with outstanding action
// requests; the caller reports results and resumes.
package composer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalmusic/conductor/internal/observability"
	"github.com/signalmusic/conductor/internal/tracing"
	"github.com/signalmusic/conductor/pkg/catalog"
	"github.com/signalmusic/conductor/pkg/laneq"
	"github.com/signalmusic/conductor/pkg/reasoning"
	"github.com/signalmusic/conductor/pkg/session"
)

var (
	// ErrTurnInProgress is returned when starting a turn on a session that
	// is paused awaiting action results
	ErrTurnInProgress = errors.New("turn in progress: session is awaiting action results")
	// ErrInvalidResume is returned when resuming a session that is not
	// awaiting results, or with results that do not match the outstanding
	// request set
	ErrInvalidResume = errors.New("invalid resume")
	// ErrSessionNotFound is returned when resuming an unknown thread
	ErrSessionNotFound = errors.New("session not found")
)

// Orchestrator drives the pause-before-action turn loop
type Orchestrator struct {
	store   session.Store
	client  reasoning.Client
	catalog *catalog.Catalog
	queue   *laneq.Queue
	logger  zerolog.Logger
}

// Config holds orchestrator dependencies
type Config struct {
	Store   session.Store
	Client  reasoning.Client
	Catalog *catalog.Catalog
	Queue   *laneq.Queue
	Logger  zerolog.Logger
}

// New creates a new orchestrator
func New(cfg Config) (*Orchestrator, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("reasoning client is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("action catalog is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("lane queue is required")
	}

	return &Orchestrator{
		store:   cfg.Store,
		client:  cfg.Client,
		catalog: cfg.Catalog,
		queue:   cfg.Queue,
		logger:  cfg.Logger,
	}, nil
}

// NewThreadID mints a fresh thread identifier
func NewThreadID() string {
	return uuid.NewString()
}

// StartParams are the inputs to a new or continuing user turn
type StartParams struct {
	// ThreadID continues an existing session; empty mints a new one
	ThreadID string
	// UserText is the user's request
	UserText string
	// ContextText is situational state prepended to the user text. It is
	// not stored as a separate message.
	ContextText string
}

// TurnResult is the outcome of one turn. Done=false carries the outstanding
// action requests in engine order; Done=true carries the answer.
type TurnResult struct {
	ThreadID string                  `json:"thread_id"`
	Done     bool                    `json:"done"`
	Requests []session.ActionRequest `json:"tool_calls"`
	Answer   string                  `json:"message,omitempty"`
}

// FragmentFunc receives streamed text fragments during a turn. The run ID
// scopes fragments to one generation run.
type FragmentFunc func(runID, text string)

// StartTurn runs a user turn to its next pause or completion
func (o *Orchestrator) StartTurn(ctx context.Context, params StartParams) (*TurnResult, error) {
	return o.startTurn(ctx, params, nil)
}

// StartTurnStream is StartTurn with incremental text delivery
func (o *Orchestrator) StartTurnStream(ctx context.Context, params StartParams, onFragment FragmentFunc) (*TurnResult, error) {
	return o.startTurn(ctx, params, onFragment)
}

// ResumeTurn feeds action results back and runs the turn to its next pause
// or completion
func (o *Orchestrator) ResumeTurn(ctx context.Context, threadID string, results []session.ActionResult) (*TurnResult, error) {
	return o.resumeTurn(ctx, threadID, results, nil)
}

// ResumeTurnStream is ResumeTurn with incremental text delivery
func (o *Orchestrator) ResumeTurnStream(ctx context.Context, threadID string, results []session.ActionResult, onFragment FragmentFunc) (*TurnResult, error) {
	return o.resumeTurn(ctx, threadID, results, onFragment)
}

func (o *Orchestrator) startTurn(ctx context.Context, params StartParams, onFragment FragmentFunc) (*TurnResult, error) {
	if params.UserText == "" {
		return nil, fmt.Errorf("user text is required")
	}

	threadID := params.ThreadID
	if threadID == "" {
		threadID = NewThreadID()
	}

	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	ctx = tracing.WithThreadID(ctx, threadID)
	ctx, span := tracing.StartSpan(
		ctx,
		"conductor.composer",
		"composer.start_turn",
		attribute.String("thread_id", threadID),
	)
	defer span.End()

	start := time.Now()
	result, err := o.enqueue(ctx, threadID, func(taskCtx context.Context) (*TurnResult, error) {
		return o.executeStart(taskCtx, threadID, params, onFragment)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordTurn("start", "error", time.Since(start))
		return nil, err
	}

	observability.RecordTurn("start", outcomeLabel(result), time.Since(start))
	return result, nil
}

func (o *Orchestrator) resumeTurn(ctx context.Context, threadID string, results []session.ActionResult, onFragment FragmentFunc) (*TurnResult, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread ID is required")
	}

	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	ctx = tracing.WithThreadID(ctx, threadID)
	ctx, span := tracing.StartSpan(
		ctx,
		"conductor.composer",
		"composer.resume_turn",
		attribute.String("thread_id", threadID),
		attribute.Int("result_count", len(results)),
	)
	defer span.End()

	start := time.Now()
	result, err := o.enqueue(ctx, threadID, func(taskCtx context.Context) (*TurnResult, error) {
		return o.executeResume(taskCtx, threadID, results, onFragment)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordTurn("resume", "error", time.Since(start))
		return nil, err
	}

	observability.RecordTurn("resume", outcomeLabel(result), time.Since(start))
	return result, nil
}

// enqueue serializes the turn on the thread's lane. Turns on one thread run
// strictly in submission order; unrelated threads proceed concurrently.
func (o *Orchestrator) enqueue(ctx context.Context, threadID string, task func(context.Context) (*TurnResult, error)) (*TurnResult, error) {
	lane := fmt.Sprintf("thread-%s", threadID)
	result, err := o.queue.EnqueueWithContext(ctx, lane, func(taskCtx context.Context) (interface{}, error) {
		return task(taskCtx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*TurnResult), nil
}

func (o *Orchestrator) executeStart(ctx context.Context, threadID string, params StartParams, onFragment FragmentFunc) (*TurnResult, error) {
	logger := tracing.LoggerFromContext(ctx, o.logger).With().Str("thread_id", threadID).Logger()

	sess, err := o.store.Get(ctx, threadID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		if sess, err = o.store.Create(ctx, threadID); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		logger.Info().Msg("Session created")
	case err != nil:
		return nil, fmt.Errorf("failed to load session: %w", err)
	case sess.State == session.StateAwaitingResults:
		return nil, fmt.Errorf("%w: thread %s", ErrTurnInProgress, threadID)
	}

	text := params.UserText
	if params.ContextText != "" {
		text = fmt.Sprintf("%s\n\n---\n\nUser request: %s", params.ContextText, params.UserText)
	}

	if err := o.store.Append(ctx, threadID, session.NewUserMessage(text)); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}
	if sess.State != session.StateReasoning {
		if err := o.store.SetState(ctx, threadID, session.StateReasoning); err != nil {
			return nil, fmt.Errorf("failed to transition session: %w", err)
		}
	}

	return o.converse(ctx, threadID, logger, onFragment)
}

func (o *Orchestrator) executeResume(ctx context.Context, threadID string, results []session.ActionResult, onFragment FragmentFunc) (*TurnResult, error) {
	logger := tracing.LoggerFromContext(ctx, o.logger).With().Str("thread_id", threadID).Logger()

	sess, err := o.store.Get(ctx, threadID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("%w: thread %s", ErrSessionNotFound, threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if sess.State != session.StateAwaitingResults {
		return nil, fmt.Errorf("%w: session state is %s, not %s", ErrInvalidResume, sess.State, session.StateAwaitingResults)
	}
	if err := matchCallIDs(sess.PendingCallIDs(), results); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResume, err)
	}

	for _, res := range results {
		if err := o.store.Append(ctx, threadID, session.NewActionResultMessage(res.CallID, res.Output)); err != nil {
			return nil, fmt.Errorf("failed to save action result: %w", err)
		}
	}
	if err := o.store.SetState(ctx, threadID, session.StateReasoning); err != nil {
		return nil, fmt.Errorf("failed to transition session: %w", err)
	}
	logger.Debug().Int("results", len(results)).Msg("Action results recorded")

	return o.converse(ctx, threadID, logger, onFragment)
}

// converse runs one engine call over the stored history and applies the
// outcome to the session.
func (o *Orchestrator) converse(ctx context.Context, threadID string, logger zerolog.Logger, onFragment FragmentFunc) (*TurnResult, error) {
	sess, err := o.store.Get(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	outcome, err := o.invoke(ctx, sess.History, onFragment)
	if err != nil {
		logger.Error().Err(err).Msg("Engine call failed")
		return nil, err
	}

	if outcome.Pending() {
		if err := o.store.Append(ctx, threadID, session.NewAssistantRequests(outcome.Text, outcome.Requests)); err != nil {
			return nil, fmt.Errorf("failed to save assistant message: %w", err)
		}
		if err := o.store.SetState(ctx, threadID, session.StateAwaitingResults); err != nil {
			return nil, fmt.Errorf("failed to transition session: %w", err)
		}

		observability.RecordPendingRequests(len(outcome.Requests))
		logger.Info().Int("requests", len(outcome.Requests)).Msg("Turn paused awaiting action results")
		return &TurnResult{
			ThreadID: threadID,
			Done:     false,
			Requests: outcome.Requests,
		}, nil
	}

	if err := o.store.Append(ctx, threadID, session.NewAssistantMessage(outcome.Text)); err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}
	if err := o.store.SetState(ctx, threadID, session.StateComplete); err != nil {
		return nil, fmt.Errorf("failed to transition session: %w", err)
	}

	logger.Info().Msg("Turn completed")
	return &TurnResult{
		ThreadID: threadID,
		Done:     true,
		Requests: []session.ActionRequest{},
		Answer:   outcome.Text,
	}, nil
}

// invoke calls the engine, streaming when a fragment callback is present
func (o *Orchestrator) invoke(ctx context.Context, history []session.Message, onFragment FragmentFunc) (*reasoning.Outcome, error) {
	actions := o.catalog.Actions()
	policy := o.catalog.Policy()

	if onFragment == nil {
		return o.client.Converse(ctx, history, actions, policy)
	}

	stream, err := o.client.ConverseStream(ctx, history, actions, policy)
	if err != nil {
		return nil, err
	}
	defer stream.Abandon()

	ctx = tracing.WithRunID(ctx, stream.RunID())
	for {
		fragment, ok := stream.Recv(ctx)
		if !ok {
			break
		}
		onFragment(stream.RunID(), fragment)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outcome, err := stream.Outcome()
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// matchCallIDs enforces order-independent set equality between the
// outstanding request IDs and the supplied result IDs
func matchCallIDs(pending []string, results []session.ActionResult) error {
	if len(results) != len(pending) {
		return fmt.Errorf("expected %d results, got %d", len(pending), len(results))
	}

	outstanding := make(map[string]bool, len(pending))
	for _, id := range pending {
		outstanding[id] = true
	}
	for _, res := range results {
		if !outstanding[res.CallID] {
			return fmt.Errorf("unexpected or duplicate call ID %q", res.CallID)
		}
		delete(outstanding, res.CallID)
	}
	return nil
}

func outcomeLabel(result *TurnResult) string {
	if result.Done {
		return "complete"
	}
	return "paused"
}
