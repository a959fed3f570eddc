// Package server exposes the HTTP API: auth, jobs, the status stream,
// templates, articles, hooks, and the admin surface.
package server

import (
	"fmt"
	"net/http"

	"filippo.io/csrf"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/wmsyw/aiWriter-sub006/internal/auth"
	httpmiddleware "github.com/wmsyw/aiWriter-sub006/internal/http"
	"github.com/wmsyw/aiWriter-sub006/internal/jobs"
	"github.com/wmsyw/aiWriter-sub006/internal/logger"
	"github.com/wmsyw/aiWriter-sub006/internal/queue"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
	"github.com/wmsyw/aiWriter-sub006/internal/stream"
)

// Config holds the HTTP-level settings for the API server. Stream settings
// live on the injected relay, not here.
type Config struct {
	CORSOrigins []string
	// RateLimit is requests per second per client IP. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Stores bundles the persistence interfaces the server needs.
type Stores struct {
	Users     store.UserStore
	Templates store.TemplateStore
	Articles  store.ArticleStore
	Hooks     store.HookStore
	Audit     store.AuditStore
}

// Server wires handlers, services, and middleware into one HTTP handler.
type Server struct {
	cfg           Config
	jobs          *jobs.Service
	relay         *stream.Relay
	sessions      *auth.SessionManager
	tokens        *auth.TokenIssuer
	authenticator *auth.Authenticator
	stores        Stores
	debug         queue.DebugReporter
}

// NewServer creates the API server.
func NewServer(cfg Config, jobSvc *jobs.Service, relay *stream.Relay, sessions *auth.SessionManager, tokens *auth.TokenIssuer, stores Stores, debug queue.DebugReporter) *Server {
	return &Server{
		cfg:           cfg,
		jobs:          jobSvc,
		relay:         relay,
		sessions:      sessions,
		tokens:        tokens,
		authenticator: auth.NewAuthenticator(sessions, tokens, stores.Users),
		stores:        stores,
		debug:         debug,
	}
}

// Handler builds the full middleware stack and route tree.
func (s *Server) Handler(log zerolog.Logger) (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(httpmiddleware.ClientIPMiddleware())
	r.Use(logger.HTTPRequests(log))
	r.Use(recoverer)

	if s.cfg.RateLimit > 0 {
		limiter := httpmiddleware.NewRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst)
		r.Use(limiter.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/token", s.handleIssueToken)

			r.Post("/jobs", s.handleCreateJob)
			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/stream", s.handleStreamJobs)
			r.Get("/jobs/{jobID}", s.handleGetJob)
			r.Post("/jobs/{jobID}/cancel", s.handleCancelJob)

			r.Post("/templates", s.handleCreateTemplate)
			r.Get("/templates", s.handleListTemplates)
			r.Get("/templates/{templateID}", s.handleGetTemplate)
			r.Put("/templates/{templateID}", s.handleUpdateTemplate)
			r.Delete("/templates/{templateID}", s.handleDeleteTemplate)

			r.Post("/articles", s.handleCreateArticle)
			r.Get("/articles", s.handleListArticles)
			r.Get("/articles/{articleID}", s.handleGetArticle)
			r.Put("/articles/{articleID}", s.handleUpdateArticle)
			r.Delete("/articles/{articleID}", s.handleDeleteArticle)

			r.Post("/hooks", s.handleCreateHook)
			r.Get("/hooks", s.handleListHooks)
			r.Get("/hooks/{hookID}", s.handleGetHook)
			r.Put("/hooks/{hookID}", s.handleUpdateHook)
			r.Delete("/hooks/{hookID}", s.handleDeleteHook)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/admin/queue/stats", s.handleQueueStats)
				r.Get("/admin/queue/tasks", s.handleQueueTasks)
				r.Get("/admin/audit", s.handleAuditLog)
			})
		})
	})

	// Cross-site protection for the cookie path. Programmatic clients are
	// unaffected; browsers from allowed origins are trusted explicitly.
	protection := csrf.New()
	for _, origin := range s.cfg.CORSOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("invalid CORS origin %q: %w", origin, err)
		}
	}

	handler := protection.Handler(r)
	handler = cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           7200,
	}).Handler(handler)

	// Compress JSON only; event streams must pass through unbuffered.
	wrapper, err := gzhttp.NewWrapper(gzhttp.ContentTypes([]string{"application/json"}))
	if err != nil {
		return nil, fmt.Errorf("failed to build gzip wrapper: %w", err)
	}
	return wrapper(handler), nil
}
