package crontab

import (
	"context"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/utils/platformerrors"
)

const (
	DefaultReconcileSchedule = "*/10 * * * *"
	CronJobTimeout           = 5 * time.Minute // Timeout for each cron job execution
)

// Reconciler repairs unread counters of conversations updated since a point in time.
type Reconciler interface {
	ReconcileUnread(ctx context.Context, since time.Time) (int, error)
}

// Config contains crontab configuration.
type Config struct {
	Schedule string
	Window   time.Duration
}

type Crontab struct {
	ctab       *crontab.Crontab
	reconciler Reconciler
	cfg        Config
	now        func() time.Time
	log        zerolog.Logger
}

func NewCrontab(reconciler Reconciler, cfg Config, log zerolog.Logger) *Crontab {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultReconcileSchedule
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	return &Crontab{
		ctab:       crontab.New(),
		reconciler: reconciler,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log.With().Str("component", "crontab").Logger(),
	}
}

// Run schedules the reconciliation job and blocks until ctx is cancelled.
func (c *Crontab) Run(ctx context.Context) error {
	// execute once on server start
	c.ReconcileOnce(ctx)

	if err := c.ctab.AddJob(c.cfg.Schedule, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), CronJobTimeout)
		defer cancel()
		c.ReconcileOnce(jobCtx)
	}); err != nil {
		c.ctab.Shutdown()
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add unread reconciliation job")
	}
	c.log.Info().Str("schedule", c.cfg.Schedule).Dur("window", c.cfg.Window).Msg("unread reconciliation scheduled")

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

// ReconcileOnce reconciles conversations updated within the configured window.
func (c *Crontab) ReconcileOnce(ctx context.Context) int {
	since := c.now().Add(-c.cfg.Window)
	corrected, err := c.reconciler.ReconcileUnread(ctx, since)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to reconcile unread counters")
		return corrected
	}
	if corrected > 0 {
		c.log.Warn().Int("corrected", corrected).Msg("Unread counters reconciled")
	} else {
		c.log.Debug().Msg("Unread counters consistent")
	}
	return corrected
}
