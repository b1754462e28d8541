// Package housekeeping runs periodic maintenance of the local data directory on a cron
// schedule: discarding photo saves interrupted by a crash and pruning old read
// notifications.
package housekeeping

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/propsnap/backend/internal/logging"
)

// PendingRecoverer discards interrupted photo saves older than grace.
type PendingRecoverer interface {
	RecoverPending(ctx context.Context, grace time.Duration) (int, error)
}

// NotificationPruner removes read notifications created before cutoff.
type NotificationPruner interface {
	PruneRead(ctx context.Context, cutoff time.Time) (int, error)
}

// Config holds the job configuration.
type Config struct {
	Schedule              string        // cron spec or "@every <duration>"
	PendingGrace          time.Duration // pending photos younger than this are left alone
	NotificationRetention time.Duration // read notifications older than this are pruned
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Schedule:              "@every 6h",
		PendingGrace:          time.Hour,
		NotificationRetention: 30 * 24 * time.Hour,
	}
}

// Report summarizes one run.
type Report struct {
	RecoveredPhotos     int       `json:"recovered_photos"`
	PrunedNotifications int       `json:"pruned_notifications"`
	RanAt               time.Time `json:"ran_at"`
}

// Runner schedules maintenance.
type Runner struct {
	photos        PendingRecoverer
	notifications NotificationPruner
	config        Config

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	last    *Report
}

// New creates a Runner. Either dependency may be nil to skip that task.
func New(photos PendingRecoverer, notifications NotificationPruner, config Config) (*Runner, error) {
	if config.Schedule == "" {
		config.Schedule = DefaultConfig().Schedule
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid housekeeping schedule %q: %w", config.Schedule, err)
	}
	return &Runner{
		photos:        photos,
		notifications: notifications,
		config:        config,
	}, nil
}

// Start schedules the job. Runs are bound to ctx.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(r.config.Schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			logging.Error("Housekeeping run failed", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule housekeeping: %w", err)
	}
	c.Start()

	r.cron = c
	r.running = true
	logging.Info("Housekeeping scheduled", map[string]interface{}{"schedule": r.config.Schedule})
	return nil
}

// Stop unschedules the job and waits for a running pass to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	c := r.cron
	r.mu.Unlock()

	<-c.Stop().Done()
	logging.Info("Housekeeping stopped", nil)
}

// RunOnce performs every task now. Both tasks run even if the first fails; the first
// error is returned.
func (r *Runner) RunOnce(ctx context.Context) (*Report, error) {
	report := &Report{RanAt: time.Now()}
	var firstErr error

	if r.photos != nil {
		n, err := r.photos.RecoverPending(ctx, r.config.PendingGrace)
		if err != nil {
			firstErr = err
		}
		report.RecoveredPhotos = n
	}

	if r.notifications != nil && r.config.NotificationRetention > 0 {
		n, err := r.notifications.PruneRead(ctx, time.Now().Add(-r.config.NotificationRetention))
		if err != nil && firstErr == nil {
			firstErr = err
		}
		report.PrunedNotifications = n
	}

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()

	logging.Info("Housekeeping completed", map[string]interface{}{
		"recovered_photos":     report.RecoveredPhotos,
		"pruned_notifications": report.PrunedNotifications,
	})
	return report, firstErr
}

// LastReport returns the most recent run, or nil.
func (r *Runner) LastReport() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
