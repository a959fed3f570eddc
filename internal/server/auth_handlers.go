package server

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wmsyw/aiWriter-sub006/internal/auth"
	httpmiddleware "github.com/wmsyw/aiWriter-sub006/internal/http"
	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "invalid email address")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "name is required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	now := time.Now()
	user := &models.User{
		UserID:       uuid.Must(uuid.NewV7()),
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.stores.Users.Create(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}

	s.audit(r, user.UserID, "user.register", "user", user.UserID.String())
	log.Info().Str("user_id", user.UserID.String()).Msg("User registered")
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	user, err := s.stores.Users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeError(w, auth.ErrInvalidCredentials)
			return
		}
		writeError(w, err)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, auth.ErrInvalidCredentials)
		return
	}

	ip := httpmiddleware.ClientIPFromContext(r.Context())
	_, cookie, err := s.sessions.Create(r.Context(), user.UserID, r.UserAgent(), ip)
	if err != nil {
		writeError(w, err)
		return
	}
	http.SetCookie(w, cookie)

	s.audit(r, user.UserID, "user.login", "user", user.UserID.String())
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if identity.Method == auth.AuthMethodSession {
		cookie, err := s.sessions.Destroy(r.Context(), identity.SessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		http.SetCookie(w, cookie)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	user, err := s.stores.Users.Get(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleIssueToken mints an API token for the authenticated user. Intended
// for browser sessions provisioning programmatic access.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	token, err := s.tokens.Issue(identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.audit(r, identity.UserID, "token.issue", "user", identity.UserID.String())
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// audit records an action without failing the request when the write fails.
func (s *Server) audit(r *http.Request, actorID uuid.UUID, action, entity, entityID string) {
	entry := &models.AuditEntry{
		AuditID:   uuid.Must(uuid.NewV7()),
		ActorID:   actorID,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		IPAddress: httpmiddleware.ClientIPFromContext(r.Context()),
		CreatedAt: time.Now(),
	}
	if err := s.stores.Audit.Append(r.Context(), entry); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("Failed to append audit entry")
	}
}
