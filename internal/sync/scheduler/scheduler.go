// Package scheduler decides when the sync engine drains the upload queue.
//
// A drain is triggered when connectivity goes from offline to online, on a fixed
// interval while online with eligible items queued, and right after an enqueue when
// online and idle.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/logging"
	syncpkg "github.com/propsnap/backend/internal/sync"
	"github.com/propsnap/backend/internal/sync/netstatus"
	"github.com/propsnap/backend/internal/sync/queue"
)

// drainTimeout bounds a single drain pass.
const drainTimeout = 10 * time.Minute

// Scheduler manages background drain triggers.
type Scheduler struct {
	engine   syncpkg.Drainer
	queue    *queue.Queue
	monitor  netstatus.Monitor
	interval time.Duration

	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.RWMutex
	runCtx        context.Context
	isRunning     bool
	isOnline      bool
	lastDrainTime time.Time
	lastResult    *syncpkg.DrainResult
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	Interval time.Duration // periodic drain while online (default: 1 minute)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Interval: time.Minute,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(engine syncpkg.Drainer, q *queue.Queue, monitor netstatus.Monitor, config *SchedulerConfig) *Scheduler {
	if config == nil || config.Interval <= 0 {
		config = DefaultSchedulerConfig()
	}

	return &Scheduler{
		engine:   engine,
		queue:    q,
		monitor:  monitor,
		interval: config.Interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins listening for triggers. It drains immediately if already online.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.runCtx = ctx
	s.mu.Unlock()

	updates, cancel := s.monitor.Subscribe()

	status, err := s.monitor.Current(ctx)
	if err != nil {
		logging.Warn("Initial connectivity check failed", map[string]interface{}{"error": err.Error()})
	}
	s.mu.Lock()
	s.isOnline = status.Online()
	s.mu.Unlock()

	s.wg.Add(2)
	go s.connectivityLoop(ctx, updates, cancel)
	go s.periodicLoop(ctx)

	logging.Info("Sync scheduler started", map[string]interface{}{
		"interval_seconds": s.interval.Seconds(),
		"online":           status.Online(),
	})

	if status.Online() {
		s.TriggerSync()
	}
}

// Stop stops the scheduler and waits for running drains to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// connectivityLoop drains on every offline to online transition.
func (s *Scheduler) connectivityLoop(ctx context.Context, updates <-chan netstatus.Status, cancel func()) {
	defer s.wg.Done()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case status := <-updates:
			if s.SetOnlineStatus(status.Online()) {
				s.TriggerSync()
			}
		}
	}
}

// periodicLoop is the retry backstop: it drains at a fixed interval while online and
// eligible items exist.
func (s *Scheduler) periodicLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.IsOnline() {
				continue
			}
			stats, err := s.queue.Stats(ctx)
			if err != nil {
				logging.Error("Failed to read queue stats", err)
				continue
			}
			if stats.Eligible == 0 {
				continue
			}
			s.TriggerSync()
		}
	}
}

// SetOnlineStatus records the connectivity state. Returns true on an offline to online
// transition.
func (s *Scheduler) SetOnlineStatus(isOnline bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasOnline := s.isOnline
	s.isOnline = isOnline

	if wasOnline != isOnline {
		logging.Info("Online status changed",
			map[string]interface{}{
				"was_online": wasOnline,
				"is_online":  isOnline,
			})
	}
	return !wasOnline && isOnline
}

// NotifyEnqueued is called after a successful enqueue. It drains when online and idle.
func (s *Scheduler) NotifyEnqueued() {
	if !s.IsOnline() || s.engine.IsProcessing() {
		return
	}
	s.TriggerSync()
}

// TriggerSync starts a background drain. Returns false if the scheduler is not running
// or a drain is already in progress.
func (s *Scheduler) TriggerSync() bool {
	s.mu.Lock()
	if !s.isRunning || s.engine.IsProcessing() {
		s.mu.Unlock()
		return false
	}
	ctx := s.runCtx
	// Added under the lock so Stop cannot be waiting already.
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.runDrain(ctx)
	}()
	return true
}

func (s *Scheduler) runDrain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	// Stop cancels the pass between items.
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-drainCtx.Done():
		}
	}()

	result, err := s.engine.Drain(drainCtx)
	s.record(result)

	switch {
	case errors.Is(err, syncpkg.ErrOffline):
		logging.Debug("Skipping drain - offline", nil)
	case err != nil:
		logging.ErrorWithCode("Background drain failed", string(apperrors.CodeOf(err)), err)
	}
}

func (s *Scheduler) record(result *syncpkg.DrainResult) {
	if result == nil || result.Skipped {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDrainTime = time.Now()
	s.lastResult = result
}

// DrainNow runs a drain synchronously and returns its result.
func (s *Scheduler) DrainNow(ctx context.Context) (*syncpkg.DrainResult, error) {
	result, err := s.engine.Drain(ctx)
	s.record(result)
	return result, err
}

// SchedulerStatus is a snapshot of the scheduler.
type SchedulerStatus struct {
	IsRunning     bool                 `json:"is_running"`
	IsOnline      bool                 `json:"is_online"`
	Draining      bool                 `json:"draining"`
	LastDrainTime *time.Time           `json:"last_drain_time,omitempty"`
	LastResult    *syncpkg.DrainResult `json:"last_result,omitempty"`
	QueueStats    queue.Stats          `json:"queue"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus(ctx context.Context) (SchedulerStatus, error) {
	s.mu.RLock()
	status := SchedulerStatus{
		IsRunning:  s.isRunning,
		IsOnline:   s.isOnline,
		Draining:   s.engine.IsProcessing(),
		LastResult: s.lastResult,
	}
	if !s.lastDrainTime.IsZero() {
		t := s.lastDrainTime
		status.LastDrainTime = &t
	}
	s.mu.RUnlock()

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return status, err
	}
	status.QueueStats = stats
	return status, nil
}

// IsOnline returns the last connectivity state seen.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOnline
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
