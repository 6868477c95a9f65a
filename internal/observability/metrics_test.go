package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureRegisteredIdempotent(t *testing.T) {
	EnsureRegistered()
	EnsureRegistered()

	// Recording through every helper must not panic.
	SetQueueSize("thread-a", 2)
	RecordQueueEnqueue("thread-a", 3)
	RecordQueueCompletion("thread-a", 5*time.Millisecond, true, 2)
	RecordQueueCompletion("thread-a", 5*time.Millisecond, false, 1)
	SetActiveSessions(4)
	RecordSessionLoad(time.Millisecond)
	RecordSessionSave(time.Millisecond)
	RecordSessionsPruned(3)
	RecordTurn("start", "pending", 10*time.Millisecond)
	RecordTurn("resume", "complete", 10*time.Millisecond)
	RecordPendingRequests(2)
	RecordStreamEvent("thinking")
	RecordClassification(402)
	RecordClassification(0)
}

func TestHandlerServesMetrics(t *testing.T) {
	RecordTurn("start", "complete", time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "turns_total")
}
