package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

// SessionCookieName is the cookie carrying the opaque session ID.
const SessionCookieName = "aiwriter_session"

// DefaultSessionTTL is how long a session lives without renewal.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionManager issues and resolves server-side sessions. The cookie holds
// only the session ID; everything else lives in the store.
type SessionManager struct {
	sessions store.SessionStore
	ttl      time.Duration
	secure   bool
}

// NewSessionManager creates a session manager. secure controls the cookie's
// Secure attribute and should be true everywhere except local development.
func NewSessionManager(sessions store.SessionStore, ttl time.Duration, secure bool) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{sessions: sessions, ttl: ttl, secure: secure}
}

// Create starts a session for the user and returns it with its cookie.
func (m *SessionManager) Create(ctx context.Context, userID uuid.UUID, userAgent, ipAddress string) (*models.Session, *http.Cookie, error) {
	now := time.Now()
	session := &models.Session{
		SessionID:  uuid.Must(uuid.NewV7()),
		UserID:     userID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
		LastUsedAt: now,
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, m.cookie(session.SessionID.String(), m.ttl), nil
}

// Resolve validates the session ID from a cookie and returns the session.
// Expired sessions are deleted on sight.
func (m *SessionManager) Resolve(ctx context.Context, sessionID string) (*models.Session, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, store.ErrSessionNotFound
	}
	session, err := m.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.IsExpired() {
		if err := m.sessions.Delete(ctx, id); err != nil {
			log.Debug().Err(err).Msg("Failed to delete expired session")
		}
		return nil, store.ErrSessionExpired
	}
	if err := m.sessions.UpdateLastUsed(ctx, id); err != nil {
		// Bookkeeping only; the session is still valid.
		log.Debug().Err(err).Msg("Failed to update session last used")
	}
	return session, nil
}

// Destroy ends the session and returns an expired cookie to clear it.
func (m *SessionManager) Destroy(ctx context.Context, sessionID uuid.UUID) (*http.Cookie, error) {
	if err := m.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		return nil, err
	}
	return m.cookie("", -time.Hour), nil
}

// PurgeExpired removes expired sessions. Called periodically by the server.
func (m *SessionManager) PurgeExpired(ctx context.Context) error {
	n, err := m.sessions.DeleteExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int("count", n).Msg("Purged expired sessions")
	}
	return nil
}

func (m *SessionManager) cookie(value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
