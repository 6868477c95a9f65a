package composer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalmusic/conductor/pkg/catalog"
	"github.com/signalmusic/conductor/pkg/laneq"
	"github.com/signalmusic/conductor/pkg/reasoning"
	"github.com/signalmusic/conductor/pkg/session"
)

// scriptedStep is one engine response: text fragments, then an outcome or
// an error.
type scriptedStep struct {
	fragments []string
	outcome   *reasoning.Outcome
	err       error
}

type scriptedClient struct {
	mu        sync.Mutex
	steps     []scriptedStep
	histories [][]session.Message
}

func (c *scriptedClient) next(history []session.Message) (scriptedStep, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make([]session.Message, len(history))
	copy(snapshot, history)
	c.histories = append(c.histories, snapshot)

	if len(c.steps) == 0 {
		return scriptedStep{}, errors.New("scripted client exhausted")
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	return step, nil
}

func (c *scriptedClient) Converse(ctx context.Context, history []session.Message, actions []reasoning.ActionSchema, policy string) (*reasoning.Outcome, error) {
	step, err := c.next(history)
	if err != nil {
		return nil, err
	}
	return step.outcome, step.err
}

func (c *scriptedClient) ConverseStream(ctx context.Context, history []session.Message, actions []reasoning.ActionSchema, policy string) (*reasoning.Stream, error) {
	step, err := c.next(history)
	if err != nil {
		return nil, err
	}

	stream := reasoning.NewStream("")
	go func() {
		for _, fragment := range step.fragments {
			if !stream.Push(fragment) {
				break
			}
		}
		stream.Finish(step.outcome, step.err)
	}()
	return stream, nil
}

func (c *scriptedClient) Provider() string { return "scripted" }

func newOrchestrator(t *testing.T, client reasoning.Client) (*Orchestrator, *session.MemoryStore) {
	t.Helper()

	cat, err := catalog.New()
	require.NoError(t, err)

	queue := laneq.New()
	t.Cleanup(func() { _ = queue.Close() })

	store := session.NewMemoryStore()
	orch, err := New(Config{
		Store:   store,
		Client:  client,
		Catalog: cat,
		Queue:   queue,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return orch, store
}

func pausedStep(requests ...session.ActionRequest) scriptedStep {
	return scriptedStep{outcome: &reasoning.Outcome{Requests: requests}}
}

func answerStep(text string) scriptedStep {
	return scriptedStep{outcome: &reasoning.Outcome{Text: text}}
}

func TestNewValidatesDependencies(t *testing.T) {
	cat, err := catalog.New()
	require.NoError(t, err)
	queue := laneq.New()
	t.Cleanup(func() { _ = queue.Close() })

	valid := Config{
		Store:   session.NewMemoryStore(),
		Client:  &scriptedClient{},
		Catalog: cat,
		Queue:   queue,
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing store", func(c *Config) { c.Store = nil }},
		{"missing client", func(c *Config) { c.Client = nil }},
		{"missing catalog", func(c *Config) { c.Catalog = nil }},
		{"missing queue", func(c *Config) { c.Queue = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}

	_, err = New(valid)
	assert.NoError(t, err)
}

func TestStartTurnCompletes(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{answerStep("A gentle piano piece it is.")}}
	orch, store := newOrchestrator(t, client)

	result, err := orch.StartTurn(context.Background(), StartParams{UserText: "write a piano piece"})
	require.NoError(t, err)

	assert.NotEmpty(t, result.ThreadID)
	assert.True(t, result.Done)
	assert.Equal(t, "A gentle piano piece it is.", result.Answer)
	assert.Empty(t, result.Requests)

	sess, err := store.Get(context.Background(), result.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, session.StateComplete, sess.State)
	require.Len(t, sess.History, 2)
	assert.Equal(t, session.RoleUser, sess.History[0].Role)
	assert.Equal(t, "write a piano piece", sess.History[0].Content)
	assert.Equal(t, session.RoleAssistant, sess.History[1].Role)
}

func TestStartTurnPausesOnActionRequests(t *testing.T) {
	requests := []session.ActionRequest{
		{CallID: "call_1", Name: "createTrack", Args: map[string]interface{}{"instrumentName": "piano"}},
		{CallID: "call_2", Name: "setTempo", Args: map[string]interface{}{"bpm": float64(96)}},
	}
	client := &scriptedClient{steps: []scriptedStep{pausedStep(requests...)}}
	orch, store := newOrchestrator(t, client)

	result, err := orch.StartTurn(context.Background(), StartParams{UserText: "piano at 96 bpm"})
	require.NoError(t, err)

	assert.False(t, result.Done)
	assert.Empty(t, result.Answer)
	// Requests come back in engine order, never reordered.
	require.Len(t, result.Requests, 2)
	assert.Equal(t, "call_1", result.Requests[0].CallID)
	assert.Equal(t, "call_2", result.Requests[1].CallID)

	sess, err := store.Get(context.Background(), result.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, session.StateAwaitingResults, sess.State)
	assert.Equal(t, []string{"call_1", "call_2"}, sess.PendingCallIDs())
}

func TestStartTurnPrependsContext(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{answerStep("ok")}}
	orch, store := newOrchestrator(t, client)

	result, err := orch.StartTurn(context.Background(), StartParams{
		UserText:    "add a bass line",
		ContextText: "Current song state:\n- Tempo: 120 BPM",
	})
	require.NoError(t, err)

	sess, err := store.Get(context.Background(), result.ThreadID)
	require.NoError(t, err)
	require.Len(t, sess.History, 2)
	content := sess.History[0].Content
	assert.True(t, strings.HasPrefix(content, "Current song state:"))
	assert.Contains(t, content, "User request: add a bass line")
}

func TestStartTurnRejectsEmptyUserText(t *testing.T) {
	orch, _ := newOrchestrator(t, &scriptedClient{})

	_, err := orch.StartTurn(context.Background(), StartParams{})
	assert.Error(t, err)
}

func TestStartTurnWhileAwaitingResults(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		pausedStep(session.ActionRequest{CallID: "call_1", Name: "createTrack", Args: map[string]interface{}{"instrumentName": "piano"}}),
	}}
	orch, _ := newOrchestrator(t, client)

	first, err := orch.StartTurn(context.Background(), StartParams{UserText: "piano"})
	require.NoError(t, err)
	require.False(t, first.Done)

	_, err = orch.StartTurn(context.Background(), StartParams{ThreadID: first.ThreadID, UserText: "also drums"})
	assert.ErrorIs(t, err, ErrTurnInProgress)
}

func TestStartTurnContinuesCompletedSession(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		answerStep("first answer"),
		answerStep("second answer"),
	}}
	orch, store := newOrchestrator(t, client)

	first, err := orch.StartTurn(context.Background(), StartParams{UserText: "one"})
	require.NoError(t, err)

	second, err := orch.StartTurn(context.Background(), StartParams{ThreadID: first.ThreadID, UserText: "two"})
	require.NoError(t, err)
	assert.Equal(t, first.ThreadID, second.ThreadID)
	assert.Equal(t, "second answer", second.Answer)

	sess, err := store.Get(context.Background(), first.ThreadID)
	require.NoError(t, err)
	assert.Len(t, sess.History, 4)
}

func TestResumeTurnUnknownThread(t *testing.T) {
	orch, _ := newOrchestrator(t, &scriptedClient{})

	_, err := orch.ResumeTurn(context.Background(), "no-such-thread", []session.ActionResult{
		{CallID: "call_1", Output: "{}"},
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResumeTurnWrongState(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{answerStep("done")}}
	orch, _ := newOrchestrator(t, client)

	result, err := orch.StartTurn(context.Background(), StartParams{UserText: "hello"})
	require.NoError(t, err)
	require.True(t, result.Done)

	_, err = orch.ResumeTurn(context.Background(), result.ThreadID, []session.ActionResult{
		{CallID: "call_1", Output: "{}"},
	})
	assert.ErrorIs(t, err, ErrInvalidResume)
}

func TestResumeTurnCallIDMismatch(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		pausedStep(
			session.ActionRequest{CallID: "call_1", Name: "createTrack", Args: map[string]interface{}{"instrumentName": "piano"}},
			session.ActionRequest{CallID: "call_2", Name: "setTempo", Args: map[string]interface{}{"bpm": float64(120)}},
		),
	}}
	orch, store := newOrchestrator(t, client)

	paused, err := orch.StartTurn(context.Background(), StartParams{UserText: "piano at 120"})
	require.NoError(t, err)

	before, err := store.Get(context.Background(), paused.ThreadID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		results []session.ActionResult
	}{
		{"missing result", []session.ActionResult{{CallID: "call_1", Output: "{}"}}},
		{"unknown id", []session.ActionResult{
			{CallID: "call_1", Output: "{}"},
			{CallID: "call_9", Output: "{}"},
		}},
		{"duplicate id", []session.ActionResult{
			{CallID: "call_1", Output: "{}"},
			{CallID: "call_1", Output: "{}"},
		}},
		{"extra result", []session.ActionResult{
			{CallID: "call_1", Output: "{}"},
			{CallID: "call_2", Output: "{}"},
			{CallID: "call_3", Output: "{}"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := orch.ResumeTurn(context.Background(), paused.ThreadID, tt.results)
			assert.ErrorIs(t, err, ErrInvalidResume)

			after, err := store.Get(context.Background(), paused.ThreadID)
			require.NoError(t, err)
			assert.Equal(t, len(before.History), len(after.History))
			assert.Equal(t, session.StateAwaitingResults, after.State)
		})
	}
}

func TestResumeTurnOrderIndependent(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		pausedStep(
			session.ActionRequest{CallID: "call_1", Name: "createTrack", Args: map[string]interface{}{"instrumentName": "piano"}},
			session.ActionRequest{CallID: "call_2", Name: "setTempo", Args: map[string]interface{}{"bpm": float64(120)}},
		),
		answerStep("all set"),
	}}
	orch, store := newOrchestrator(t, client)

	paused, err := orch.StartTurn(context.Background(), StartParams{UserText: "piano at 120"})
	require.NoError(t, err)

	// Results supplied in reverse order still match the outstanding set.
	done, err := orch.ResumeTurn(context.Background(), paused.ThreadID, []session.ActionResult{
		{CallID: "call_2", Output: `{"bpm":120}`},
		{CallID: "call_1", Output: `{"trackId":1}`},
	})
	require.NoError(t, err)
	assert.True(t, done.Done)
	assert.Equal(t, "all set", done.Answer)

	sess, err := store.Get(context.Background(), paused.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, session.StateComplete, sess.State)
	// user, assistant requests, two action results, final assistant.
	require.Len(t, sess.History, 5)
	assert.Equal(t, session.RoleActionResult, sess.History[2].Role)
	assert.Equal(t, "call_2", sess.History[2].CallID)
	assert.Equal(t, session.RoleActionResult, sess.History[3].Role)
	assert.Equal(t, "call_1", sess.History[3].CallID)
}

func TestResumeTurnMultipleRoundTrips(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		pausedStep(session.ActionRequest{CallID: "call_1", Name: "createTrack", Args: map[string]interface{}{"instrumentName": "piano"}}),
		pausedStep(session.ActionRequest{CallID: "call_2", Name: "addNotes", Args: map[string]interface{}{"trackId": float64(1)}}),
		answerStep("melody added"),
	}}
	orch, _ := newOrchestrator(t, client)

	first, err := orch.StartTurn(context.Background(), StartParams{UserText: "piano with a melody"})
	require.NoError(t, err)
	require.False(t, first.Done)

	second, err := orch.ResumeTurn(context.Background(), first.ThreadID, []session.ActionResult{
		{CallID: "call_1", Output: `{"trackId":1}`},
	})
	require.NoError(t, err)
	require.False(t, second.Done)
	require.Len(t, second.Requests, 1)
	assert.Equal(t, "addNotes", second.Requests[0].Name)

	third, err := orch.ResumeTurn(context.Background(), first.ThreadID, []session.ActionResult{
		{CallID: "call_2", Output: `{"noteCount":8}`},
	})
	require.NoError(t, err)
	assert.True(t, third.Done)
	assert.Equal(t, "melody added", third.Answer)
}

func TestEngineErrorPropagatesAndPreservesHistory(t *testing.T) {
	upstream := errors.New("Error code: 429 - rate limit")
	client := &scriptedClient{steps: []scriptedStep{{err: upstream}}}
	orch, store := newOrchestrator(t, client)

	threadID := NewThreadID()
	_, err := orch.StartTurn(context.Background(), StartParams{ThreadID: threadID, UserText: "hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream)

	// Partial progress is preserved: the user message is in the history.
	sess, err := store.Get(context.Background(), threadID)
	require.NoError(t, err)
	require.Len(t, sess.History, 1)
	assert.Equal(t, session.RoleUser, sess.History[0].Role)
	assert.Equal(t, session.StateReasoning, sess.State)
}

func TestStartTurnStreamDeliversFragments(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{{
		fragments: []string{"Work", "ing", " on it"},
		outcome:   &reasoning.Outcome{Text: "Working on it"},
	}}}
	orch, _ := newOrchestrator(t, client)

	var mu sync.Mutex
	var runIDs []string
	var fragments []string
	result, err := orch.StartTurnStream(context.Background(), StartParams{UserText: "compose"}, func(runID, text string) {
		mu.Lock()
		defer mu.Unlock()
		runIDs = append(runIDs, runID)
		fragments = append(fragments, text)
	})
	require.NoError(t, err)

	assert.True(t, result.Done)
	assert.Equal(t, "Working on it", result.Answer)
	assert.Equal(t, []string{"Work", "ing", " on it"}, fragments)
	for _, id := range runIDs {
		assert.Equal(t, runIDs[0], id)
	}
}

func TestTurnsSerializePerThread(t *testing.T) {
	client := &scriptedClient{steps: []scriptedStep{
		answerStep("one"),
		answerStep("two"),
		answerStep("three"),
	}}
	orch, store := newOrchestrator(t, client)

	threadID := NewThreadID()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.StartTurn(context.Background(), StartParams{ThreadID: threadID, UserText: "go"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := store.Get(context.Background(), threadID)
	require.NoError(t, err)
	// Three full turns, never interleaved: strict user/assistant alternation.
	require.Len(t, sess.History, 6)
	for i, msg := range sess.History {
		if i%2 == 0 {
			assert.Equal(t, session.RoleUser, msg.Role)
		} else {
			assert.Equal(t, session.RoleAssistant, msg.Role)
		}
	}
}

func TestNewThreadID(t *testing.T) {
	a := NewThreadID()
	b := NewThreadID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
