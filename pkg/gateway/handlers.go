package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/signalmusic/conductor/pkg/composer"
	"github.com/signalmusic/conductor/pkg/failure"
	"github.com/signalmusic/conductor/pkg/stream"
)

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Prompt == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("prompt is required"))
		return
	}

	result, err := s.orch.StartTurn(r.Context(), composer.StartParams{
		ThreadID:    req.ThreadID,
		UserText:    req.Prompt,
		ContextText: req.Context,
	})
	if err != nil {
		s.writeTurnError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("threadID")

	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.ToolResults) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("tool_results is required"))
		return
	}

	result, err := s.orch.ResumeTurn(r.Context(), threadID, req.ToolResults)
	if err != nil {
		s.writeTurnError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Prompt == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("prompt is required"))
		return
	}

	events := s.pipeline.StartTurn(r.Context(), composer.StartParams{
		ThreadID:    req.ThreadID,
		UserText:    req.Prompt,
		ContextText: req.Context,
	})
	s.writeSSE(w, r, events)
}

func (s *Server) handleResumeStream(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("threadID")

	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.ToolResults) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("tool_results is required"))
		return
	}

	events := s.pipeline.ResumeTurn(r.Context(), threadID, req.ToolResults)
	s.writeSSE(w, r, events)
}

// writeSSE emits the event sequence as server-sent events
func (s *Server) writeSSE(w http.ResponseWriter, r *http.Request, events <-chan stream.Event) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error().Err(err).Msg("Failed to encode stream event")
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// writeTurnError maps orchestrator failures onto HTTP status codes
func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, composer.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, composer.ErrInvalidResume), errors.Is(err, composer.ErrTurnInProgress):
		s.writeError(w, http.StatusConflict, err)
	default:
		classified := failure.Classify(err)
		status := http.StatusBadGateway
		if classified.Code == 0 {
			status = http.StatusInternalServerError
		}
		s.writeJSON(w, status, errorResponse{Error: classified.Message, Code: classified.Code})
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
