package gateway

import (
	"time"

	"github.com/signalmusic/conductor/pkg/session"
)

// Options configure the HTTP server
type Options struct {
	Host string
	Port int
	// ShutdownGrace bounds the wait for in-flight requests on Stop
	ShutdownGrace time.Duration
}

// TurnRequest is the body for starting a turn
type TurnRequest struct {
	ThreadID string `json:"thread_id,omitempty"`
	Prompt   string `json:"prompt"`
	Context  string `json:"context,omitempty"`
}

// ResumeRequest is the body for resuming a paused turn
type ResumeRequest struct {
	ToolResults []session.ActionResult `json:"tool_results"`
}

// errorResponse is the JSON error body
type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"error_code,omitempty"`
}
