// Package background runs the periodic maintenance jobs of the gateway.
package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/insightlab/reportstream/internal/store"
)

// RetentionSweeper deletes stored reports older than the retention window on
// a cron schedule.
type RetentionSweeper struct {
	store     store.Store
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	log       *slog.Logger
}

// NewRetentionSweeper builds a sweeper. schedule is a standard cron
// expression; retention is how long reports stay.
func NewRetentionSweeper(s store.Store, retention time.Duration, schedule string, log *slog.Logger) *RetentionSweeper {
	if log == nil {
		log = slog.Default()
	}
	return &RetentionSweeper{
		store:     s,
		retention: retention,
		schedule:  schedule,
		cron:      cron.New(),
		log:       log,
	}
}

// Start registers and launches the sweep job.
func (r *RetentionSweeper) Start() error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		r.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	r.log.Info("retention sweep scheduled",
		"schedule", r.schedule, "retention", r.retention.String())
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish.
func (r *RetentionSweeper) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep runs one pass immediately.
func (r *RetentionSweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.retention)
	n, err := r.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		r.log.Error("retention sweep failed", "error", err)
		return
	}
	if n > 0 {
		r.log.Info("retention sweep removed expired reports",
			"removed", n, "cutoff", cutoff.Format(time.RFC3339))
	}
}
