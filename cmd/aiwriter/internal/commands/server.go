package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wmsyw/aiWriter-sub006/internal/auth"
	"github.com/wmsyw/aiWriter-sub006/internal/jobs"
	"github.com/wmsyw/aiWriter-sub006/internal/logger"
	"github.com/wmsyw/aiWriter-sub006/internal/server"
	"github.com/wmsyw/aiWriter-sub006/internal/stream"
	"github.com/wmsyw/aiWriter-sub006/internal/telemetry"
)

type ServerCmd struct {
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"AIWRITER_LISTEN"`

	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:5173" env:"AIWRITER_CORS_ORIGINS"`

	TokenSecret string        `help:"secret for signing API tokens, at least 32 bytes" env:"AIWRITER_TOKEN_SECRET"`
	TokenTTL    time.Duration `help:"API token lifetime" default:"24h" env:"AIWRITER_TOKEN_TTL"`
	SessionTTL  time.Duration `help:"session lifetime" default:"168h" env:"AIWRITER_SESSION_TTL"`
	SecureCookies bool        `help:"set the Secure attribute on session cookies" default:"true" env:"AIWRITER_SECURE_COOKIES"`

	RateLimit float64 `help:"requests per second per client IP, 0 disables" default:"20" env:"AIWRITER_RATE_LIMIT"`
	RateBurst int     `help:"rate limit burst per client IP" default:"40" env:"AIWRITER_RATE_BURST"`

	StreamPollInterval      time.Duration `help:"job stream poll interval" default:"5s" env:"AIWRITER_STREAM_POLL_INTERVAL"`
	StreamKeepaliveInterval time.Duration `help:"job stream keepalive interval, 0 disables" default:"30s" env:"AIWRITER_STREAM_KEEPALIVE_INTERVAL"`

	Tracing bool `help:"enable tracing and metrics export" default:"false" env:"AIWRITER_TRACING"`

	Store StoreFlags `embed:""`
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.TokenSecret == "" {
		return errors.New("token secret is required (--token-secret or AIWRITER_TOKEN_SECRET)")
	}

	if c.Tracing {
		shutdown, err := telemetry.Init(ctx, "aiwriter-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Failed to shutdown telemetry")
				}
			}()
		}
	}

	st, err := buildStores(ctx, c.Store)
	if err != nil {
		return err
	}
	defer st.close()
	log.Info().Str("store", c.Store.StoreType).Msg("Stores ready")

	tokens, err := auth.NewTokenIssuer([]byte(c.TokenSecret), c.TokenTTL)
	if err != nil {
		return err
	}
	sessions := auth.NewSessionManager(st.Sessions, c.SessionTTL, c.SecureCookies)

	jobSvc := jobs.NewService(st.Jobs, st.Backend)

	relayCfg := stream.DefaultRelayConfig()
	relayCfg.PollInterval = c.StreamPollInterval
	relayCfg.KeepaliveInterval = c.StreamKeepaliveInterval
	relay := stream.NewRelay(st.Jobs, relayCfg)

	srv := server.NewServer(
		server.Config{
			CORSOrigins: c.CORSOrigins,
			RateLimit:   c.RateLimit,
			RateBurst:   c.RateBurst,
		},
		jobSvc,
		relay,
		sessions,
		tokens,
		server.Stores{
			Users:     st.Users,
			Templates: st.Templates,
			Articles:  st.Articles,
			Hooks:     st.Hooks,
			Audit:     st.Audit,
		},
		st.Debug,
	)

	handler, err := srv.Handler(log)
	if err != nil {
		return fmt.Errorf("failed to build handler: %w", err)
	}

	// Expired sessions accumulate without an occasional purge.
	purgeCtx, cancelPurge := context.WithCancel(ctx)
	defer cancelPurge()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-purgeCtx.Done():
				return
			case <-ticker.C:
				if err := sessions.PurgeExpired(purgeCtx); err != nil {
					log.Warn().Err(err).Msg("Session purge failed")
				}
			}
		}
	}()

	log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
	if err := configureHTTPServer(c.Listen, handler).ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
