package server

import (
	"net/http"
	"strconv"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/queue"
)

type queueStatsResponse struct {
	Counts []queue.StateCount `json:"counts"`
}

type queueTaskView struct {
	TaskID     string `json:"taskId"`
	Type       string `json:"type"`
	State      string `json:"state"`
	RetryCount int    `json:"retryCount"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

type queueTasksResponse struct {
	Tasks []queueTaskView `json:"tasks"`
}

type auditLogResponse struct {
	Entries []*models.AuditEntry `json:"entries"`
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.debug.CountsByTypeAndState(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if counts == nil {
		counts = []queue.StateCount{}
	}
	writeJSON(w, http.StatusOK, queueStatsResponse{Counts: counts})
}

// handleQueueTasks returns recent tasks without payloads. Payloads belong to
// users, not operators.
func (s *Server) handleQueueTasks(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	tasks, err := s.debug.RecentTasks(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]queueTaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, queueTaskView{
			TaskID:     t.TaskID.String(),
			Type:       t.Type,
			State:      string(t.State),
			RetryCount: t.RetryCount,
			CreatedAt:  t.CreatedAt.UTC().Format(timeFormat),
			UpdatedAt:  t.UpdatedAt.UTC().Format(timeFormat),
		})
	}
	writeJSON(w, http.StatusOK, queueTasksResponse{Tasks: views})
}

const timeFormat = "2006-01-02T15:04:05.000Z"

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	entries, err := s.stores.Audit.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, auditLogResponse{Entries: entries})
}
