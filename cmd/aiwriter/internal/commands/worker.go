package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/wmsyw/aiWriter-sub006/internal/ai"
	"github.com/wmsyw/aiWriter-sub006/internal/logger"
	"github.com/wmsyw/aiWriter-sub006/internal/telemetry"
	"github.com/wmsyw/aiWriter-sub006/internal/worker"
)

type WorkerCmd struct {
	PollInterval time.Duration `help:"queue poll interval" default:"2s" env:"AIWRITER_WORKER_POLL_INTERVAL"`
	BatchSize    int           `help:"max tasks claimed per poll" default:"5" env:"AIWRITER_WORKER_BATCH_SIZE"`
	Visibility   time.Duration `help:"claim visibility timeout" default:"5m" env:"AIWRITER_WORKER_VISIBILITY"`

	AIBaseURL string        `help:"chat completions base URL" env:"AIWRITER_AI_BASE_URL"`
	AIAPIKey  string        `help:"chat completions API key" env:"AIWRITER_AI_API_KEY"`
	AIModel   string        `help:"chat completions model" default:"gpt-4o-mini" env:"AIWRITER_AI_MODEL"`
	AITimeout time.Duration `help:"per-completion timeout" default:"2m" env:"AIWRITER_AI_TIMEOUT"`

	Tracing bool `help:"enable tracing and metrics export" default:"false" env:"AIWRITER_TRACING"`

	Store StoreFlags `embed:""`
}

func (c *WorkerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Msg("Starting worker")

	if c.Tracing {
		shutdown, err := telemetry.Init(ctx, "aiwriter-worker", globals.Version)
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

	var client ai.Client
	if c.AIBaseURL != "" {
		client, err = ai.NewHTTPClient(ai.HTTPConfig{
			BaseURL: c.AIBaseURL,
			APIKey:  c.AIAPIKey,
			Model:   c.AIModel,
			Timeout: c.AITimeout,
		})
		if err != nil {
			return err
		}
	} else {
		log.Warn().Msg("No AI base URL configured, using static responses. This should only be used in development!")
		client = &ai.StaticClient{Response: "(stubbed completion)"}
	}

	w, err := worker.New(st.Consumer, st.Jobs, st.Templates, st.Hooks, client, worker.Config{
		PollInterval: c.PollInterval,
		BatchSize:    c.BatchSize,
		Visibility:   c.Visibility,
	})
	if err != nil {
		return err
	}

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
