package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

// ErrUnauthenticated is returned when a request carries no valid credential.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves a request to an Identity. A bearer token wins when
// both credentials are present; otherwise the session cookie is used.
type Authenticator struct {
	sessions *SessionManager
	tokens   *TokenIssuer
	users    store.UserStore
}

// NewAuthenticator creates an authenticator over both credential paths.
func NewAuthenticator(sessions *SessionManager, tokens *TokenIssuer, users store.UserStore) *Authenticator {
	return &Authenticator{sessions: sessions, tokens: tokens, users: users}
}

// Authenticate resolves the request's credential to an Identity. Returns
// ErrUnauthenticated for missing or invalid credentials; other errors are
// infrastructure failures.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	if tokenStr, ok := bearerToken(r); ok {
		return a.fromToken(r, tokenStr)
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return a.fromSession(r, cookie.Value)
	}
	return nil, ErrUnauthenticated
}

func (a *Authenticator) fromToken(r *http.Request, tokenStr string) (*Identity, error) {
	userID, err := a.tokens.Verify(tokenStr)
	if err != nil {
		log.Debug().Err(err).Msg("Bearer token rejected")
		return nil, ErrUnauthenticated
	}
	user, err := a.users.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return &Identity{UserID: user.UserID, Role: user.Role, Method: AuthMethodToken}, nil
}

func (a *Authenticator) fromSession(r *http.Request, sessionID string) (*Identity, error) {
	session, err := a.sessions.Resolve(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) || errors.Is(err, store.ErrSessionExpired) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	user, err := a.users.Get(r.Context(), session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return &Identity{
		UserID:    user.UserID,
		Role:      user.Role,
		Method:    AuthMethodSession,
		SessionID: session.SessionID,
	}, nil
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):], true
	}
	return "", false
}
