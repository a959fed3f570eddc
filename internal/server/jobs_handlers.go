package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wmsyw/aiWriter-sub006/internal/auth"
	"github.com/wmsyw/aiWriter-sub006/internal/jobs"
	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
	"github.com/wmsyw/aiWriter-sub006/internal/stream"
)

type createJobRequest struct {
	Type    models.JobType  `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type listJobsResponse struct {
	Jobs []*models.Job `json:"jobs"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	var req createJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage(`{}`)
	}

	// Validation happens here at the route boundary; the job service treats
	// the payload as opaque.
	if err := jobs.ValidatePayload(req.Type, req.Payload); err != nil {
		writeError(w, err)
		return
	}

	job, err := s.jobs.CreateJob(r.Context(), identity.UserID, req.Type, req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}

	s.audit(r, identity.UserID, "job.create", "job", job.JobID.String())
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	jobList, err := s.jobs.ListRecentJobs(r.Context(), identity.UserID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if jobList == nil {
		jobList = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, listJobsResponse{Jobs: jobList})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, store.ErrJobNotFound)
		return
	}

	job, err := s.jobs.GetJob(r.Context(), identity.UserID, jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, store.ErrJobNotFound)
		return
	}

	job, err := s.jobs.CancelJob(r.Context(), identity.UserID, jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	s.audit(r, identity.UserID, "job.cancel", "job", jobID.String())
	writeJSON(w, http.StatusOK, job)
}

// handleStreamJobs serves the job status stream over server-sent events.
// The connection stays open until the client disconnects.
func (s *Server) handleStreamJobs(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	sse, err := stream.NewSSEWriter(w)
	if err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "INTERNAL", "streaming not supported")
		return
	}

	// The request context ends when the client goes away; that cancellation
	// is the stream's only owner.
	err = s.relay.Serve(r.Context(), identity.UserID, sse)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Str("user_id", identity.UserID.String()).Msg("Stream ended with error")
	}
}
