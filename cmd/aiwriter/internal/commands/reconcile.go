package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/wmsyw/aiWriter-sub006/internal/jobs"
	"github.com/wmsyw/aiWriter-sub006/internal/logger"
)

type ReconcileCmd struct {
	Interval  time.Duration `help:"sweep interval" default:"1m" env:"AIWRITER_RECONCILE_INTERVAL"`
	MinAge    time.Duration `help:"minimum pending age before a job is examined" default:"5m" env:"AIWRITER_RECONCILE_MIN_AGE"`
	BatchSize int           `help:"max jobs examined per sweep" default:"100" env:"AIWRITER_RECONCILE_BATCH_SIZE"`
	Once      bool          `help:"run a single sweep and exit" default:"false"`

	Store StoreFlags `embed:""`
}

func (c *ReconcileCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("once", c.Once).Msg("Starting reconciler")

	st, err := buildStores(ctx, c.Store)
	if err != nil {
		return err
	}
	defer st.close()

	r := jobs.NewReconciler(st.Jobs, st.Backend, jobs.ReconcilerConfig{
		Interval:  c.Interval,
		MinAge:    c.MinAge,
		BatchSize: c.BatchSize,
	})

	if c.Once {
		return r.Sweep(ctx)
	}
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
