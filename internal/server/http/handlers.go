package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/litforge/paper-corpus-service/internal/domain"
	"github.com/litforge/paper-corpus-service/internal/observability"
)

// Request validation constants.
const (
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
	maxResolvePapers   = 500
)

// getRegistryStats handles GET /registry/stats.
// It returns registry size and per-topic paper counts.
func (s *Server) getRegistryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

// getRegistryPaper handles GET /registry/papers/{paperID}.
// It returns the full registry entry for one canonical paper id.
func (s *Server) getRegistryPaper(w http.ResponseWriter, r *http.Request) {
	paperID, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}

	entry, found := s.registry.GetEntry(paperID.String())
	if !found {
		writeError(w, http.StatusNotFound, "paper not found")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// resolvePapers handles POST /registry/resolve.
// It runs identity resolution and work determination for a batch of papers
// without mutating the registry, so callers can preview what a run would do.
func (s *Server) resolvePapers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.ContextLogger(ctx, s.logger)

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req resolveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	req.TopicSlug = strings.TrimSpace(req.TopicSlug)
	if err := domain.ValidateTopicSlug(req.TopicSlug); err != nil {
		writeDomainError(w, err)
		return
	}
	if len(req.Papers) == 0 {
		writeError(w, http.StatusBadRequest, "papers is required")
		return
	}
	if len(req.Papers) > maxResolvePapers {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("papers must have at most %d entries", maxResolvePapers))
		return
	}

	results := make([]resolveResult, len(req.Papers))
	actionCounts := make(map[domain.ProcessingAction]int)
	for i := range req.Papers {
		paper := &req.Papers[i]

		match := s.registry.ResolveIdentity(paper)
		action, entry := s.registry.DetermineAction(paper, req.TopicSlug, req.Requirements)
		actionCounts[action]++

		res := resolveResult{
			Title:   paper.Title,
			Action:  string(action),
			Matched: match.Matched,
		}
		if match.Matched {
			res.Method = string(match.Method)
			res.Similarity = match.Similarity
		}
		if entry != nil {
			res.PaperID = entry.PaperID
		}
		results[i] = res
	}

	logger.Info().
		Str("topic", req.TopicSlug).
		Int("papers", len(req.Papers)).
		Interface("actions", actionCounts).
		Msg("resolved batch against registry")

	writeJSON(w, http.StatusOK, resolveResponse{
		TopicSlug: req.TopicSlug,
		Results:   results,
	})
}

// getRunCheckpoint handles GET /runs/{runID}/checkpoint.
// It returns the persisted checkpoint for a run, if one exists.
func (s *Server) getRunCheckpoint(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}

	cp, ok := s.checkpoints.Load(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "checkpoint not found")
		return
	}

	writeJSON(w, http.StatusOK, cp)
}

// writeDomainError maps domain errors to HTTP status codes and writes a JSON
// error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrInvalidIdentifier), errors.Is(err, domain.ErrNoIdentifier):
		writeError(w, http.StatusBadRequest, "invalid identifier")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusConflict, "operation cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// Returns the parsed UUID and true on success, or uuid.Nil and false on failure.
// The parse error details are not included to avoid echoing potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}
