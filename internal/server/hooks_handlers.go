package server

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wmsyw/aiWriter-sub006/internal/auth"
	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

type hookRequest struct {
	Event     string `json:"event"`
	TargetURL string `json:"targetUrl"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// hookResponse includes the secret exactly once, on creation.
type hookResponse struct {
	*models.Hook
	Secret string `json:"secret,omitempty"`
}

type listHooksResponse struct {
	Hooks []*models.Hook `json:"hooks"`
}

func validHookEvent(event string) bool {
	return event == models.HookEventJobCompleted || event == models.HookEventJobFailed
}

func validHookURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

func (s *Server) handleCreateHook(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	var req hookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if !validHookEvent(req.Event) {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "unknown hook event")
		return
	}
	if !validHookURL(req.TargetURL) {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "invalid target URL")
		return
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	hook := &models.Hook{
		HookID:    uuid.Must(uuid.NewV7()),
		UserID:    identity.UserID,
		Event:     req.Event,
		TargetURL: req.TargetURL,
		Secret:    hex.EncodeToString(secretBytes),
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.stores.Hooks.Create(r.Context(), hook); err != nil {
		writeError(w, err)
		return
	}

	s.audit(r, identity.UserID, "hook.create", "hook", hook.HookID.String())
	writeJSON(w, http.StatusCreated, hookResponse{Hook: hook, Secret: hook.Secret})
}

func (s *Server) handleListHooks(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	hooks, err := s.stores.Hooks.List(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if hooks == nil {
		hooks = []*models.Hook{}
	}
	writeJSON(w, http.StatusOK, listHooksResponse{Hooks: hooks})
}

func (s *Server) handleGetHook(w http.ResponseWriter, r *http.Request) {
	hook, ok := s.loadOwnedHook(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, hook)
}

func (s *Server) handleUpdateHook(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	hook, ok := s.loadOwnedHook(w, r)
	if !ok {
		return
	}

	var req hookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if req.Event != "" {
		if !validHookEvent(req.Event) {
			writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "unknown hook event")
			return
		}
		hook.Event = req.Event
	}
	if req.TargetURL != "" {
		if !validHookURL(req.TargetURL) {
			writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "invalid target URL")
			return
		}
		hook.TargetURL = req.TargetURL
	}
	if req.Enabled != nil {
		hook.Enabled = *req.Enabled
	}
	hook.UpdatedAt = time.Now()

	if err := s.stores.Hooks.Update(r.Context(), hook); err != nil {
		writeError(w, err)
		return
	}

	s.audit(r, identity.UserID, "hook.update", "hook", hook.HookID.String())
	writeJSON(w, http.StatusOK, hook)
}

func (s *Server) handleDeleteHook(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	hook, ok := s.loadOwnedHook(w, r)
	if !ok {
		return
	}
	if err := s.stores.Hooks.Delete(r.Context(), hook.HookID); err != nil {
		writeError(w, err)
		return
	}

	s.audit(r, identity.UserID, "hook.delete", "hook", hook.HookID.String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loadOwnedHook(w http.ResponseWriter, r *http.Request) (*models.Hook, bool) {
	identity := auth.IdentityFrom(r.Context())

	hookID, err := uuid.Parse(chi.URLParam(r, "hookID"))
	if err != nil {
		writeError(w, store.ErrHookNotFound)
		return nil, false
	}
	hook, err := s.stores.Hooks.Get(r.Context(), hookID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if hook.UserID != identity.UserID {
		writeError(w, store.ErrHookNotFound)
		return nil, false
	}
	return hook, true
}
