package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// SubmitJobRequest is the request body for job submission. Exactly one
// of Text or Document must be set.
type SubmitJobRequest struct {
	// Text is the document as plain text.
	Text string `json:"text,omitempty"`
	// Document is the base64-encoded document (PDF or text).
	Document string `json:"document,omitempty"`
	// Fields are the field names to extract.
	Fields []string `json:"fields"`
	// Thresholds overrides per-field confidence thresholds.
	Thresholds map[string]float64 `json:"thresholds,omitempty"`
	// TimeoutSeconds bounds the job; zero means the server default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// SubmitJobResponse is the response for a submitted job
type SubmitJobResponse struct {
	JobID string `json:"job_id"`
}

// Health endpoints

// handleHealth returns liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady checks the job store and, when configured, the cache.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.jobStore.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	if s.cache != nil {
		if err := s.cache.Ping(r.Context()); err != nil {
			// Degraded, not down: extraction works without the cache.
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "cache": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Job endpoints

// handleSubmitJob accepts a document plus field list and starts an
// extraction job.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	content, err := req.content()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := driving.SubmitOptions{
		Thresholds: req.Thresholds,
		Timeout:    time.Duration(req.TimeoutSeconds) * time.Second,
	}
	jobID, err := s.extractionService.Submit(r.Context(), content, req.Fields, opts)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnknownField):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrTextExtraction):
			writeError(w, http.StatusUnprocessableEntity, "document could not be rendered to text")
		default:
			s.logger.Error("job submission failed", "error", err)
			writeError(w, http.StatusInternalServerError, "job submission failed")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitJobResponse{JobID: jobID})
}

func (req *SubmitJobRequest) content() ([]byte, error) {
	switch {
	case req.Text != "" && req.Document != "":
		return nil, fmt.Errorf("provide either text or document, not both")
	case req.Text != "":
		return []byte(req.Text), nil
	case req.Document != "":
		content, err := base64.StdEncoding.DecodeString(req.Document)
		if err != nil {
			return nil, fmt.Errorf("document is not valid base64")
		}
		return content, nil
	default:
		return nil, fmt.Errorf("document content is required")
	}
}

// handleGetJob returns the current snapshot of a job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.extractionService.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleListJobs returns recent jobs, newest first.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	jobs, err := s.jobStore.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// handleJobEvents streams job snapshots as server-sent events until the
// job reaches a terminal status.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, stop, err := s.extractionService.Watch(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to watch job")
		return
	}
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case job, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(job)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload)
			flusher.Flush()
			if job.Status.Terminal() {
				return
			}
		}
	}
}

// handleCancelJob cancels a running job.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	err := s.extractionService.Cancel(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, domain.ErrJobTerminal):
		writeError(w, http.StatusConflict, "job already finished")
	default:
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
	}
}

// Helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
