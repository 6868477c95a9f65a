package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess, err := store.Create(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", sess.ThreadID)
	assert.Equal(t, StateReasoning, sess.State)
	assert.Empty(t, sess.History)

	got, err := store.Get(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, sess.ThreadID, got.ThreadID)

	_, err = store.Create(ctx, "thread-1")
	assert.ErrorIs(t, err, ErrExists)
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ValidateThreadID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "")
	assert.Error(t, err)

	_, err = store.Create(ctx, "bad\x00key")
	assert.Error(t, err)
}

func TestMemoryStore_AppendTracksPending(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "thread-1")
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, "thread-1", NewUserMessage("make a beat")))

	reqs := []ActionRequest{
		{CallID: "call-1", Name: "createTrack", Args: map[string]interface{}{"instrumentName": "drums"}},
		{CallID: "call-2", Name: "setTempo", Args: map[string]interface{}{"bpm": 120}},
	}
	require.NoError(t, store.Append(ctx, "thread-1", NewAssistantRequests("", reqs)))
	require.NoError(t, store.SetState(ctx, "thread-1", StateAwaitingResults))

	sess, err := store.Get(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingResults, sess.State)
	assert.Len(t, sess.History, 2)
	assert.Equal(t, []string{"call-1", "call-2"}, sess.PendingCallIDs())

	// A final assistant message clears the outstanding set.
	require.NoError(t, store.Append(ctx, "thread-1", NewActionResultMessage("call-1", "{}")))
	require.NoError(t, store.Append(ctx, "thread-1", NewActionResultMessage("call-2", "{}")))
	require.NoError(t, store.Append(ctx, "thread-1", NewAssistantMessage("done")))
	require.NoError(t, store.SetState(ctx, "thread-1", StateComplete))

	sess, err = store.Get(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, StateComplete, sess.State)
	assert.Empty(t, sess.Pending)
	assert.Len(t, sess.History, 5)
}

func TestMemoryStore_AppendUnknownThread(t *testing.T) {
	store := NewMemoryStore()

	err := store.Append(context.Background(), "nope", NewUserMessage("hi"))
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.SetState(context.Background(), "nope", StateComplete)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "thread-1")
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "thread-1", NewUserMessage("original")))

	sess, err := store.Get(ctx, "thread-1")
	require.NoError(t, err)
	sess.History[0].Content = "mutated"
	sess.State = StateComplete

	fresh, err := store.Get(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "original", fresh.History[0].Content)
	assert.Equal(t, StateReasoning, fresh.State)
}

func TestMemoryStore_ConcurrentThreadsDoNotInterleave(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const threads = 8
	const perThread = 25

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		threadID := fmt.Sprintf("thread-%d", i)
		_, err := store.Create(ctx, threadID)
		require.NoError(t, err)

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for n := 0; n < perThread; n++ {
				_ = store.Append(ctx, id, NewUserMessage(fmt.Sprintf("msg-%d", n)))
			}
		}(threadID)
	}
	wg.Wait()

	for i := 0; i < threads; i++ {
		sess, err := store.Get(ctx, fmt.Sprintf("thread-%d", i))
		require.NoError(t, err)
		require.Len(t, sess.History, perThread)
		for n, msg := range sess.History {
			assert.Equal(t, fmt.Sprintf("msg-%d", n), msg.Content)
		}
	}
}

func TestMemoryStore_PruneIdle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "old")
	require.NoError(t, err)
	_, err = store.Create(ctx, "fresh")
	require.NoError(t, err)

	// Backdate the idle session directly.
	store.mu.Lock()
	store.sessions["old"].UpdatedAt = time.Now().Add(-48 * time.Hour)
	store.mu.Unlock()

	pruned, err := store.PruneIdle(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	assert.Equal(t, 1, store.Len())

	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestMessagePauses(t *testing.T) {
	assert.False(t, NewUserMessage("hi").Pauses())
	assert.False(t, NewAssistantMessage("done").Pauses())
	assert.False(t, NewActionResultMessage("c1", "{}").Pauses())
	assert.True(t, NewAssistantRequests("", []ActionRequest{{CallID: "c1", Name: "setTempo"}}).Pauses())
}
