// Package app wires the capture core together for the desktop server, the mobile bridge
// and the CLI.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/propsnap/backend/internal/config"
	"github.com/propsnap/backend/internal/crypto"
	"github.com/propsnap/backend/internal/db"
	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/housekeeping"
	"github.com/propsnap/backend/internal/logging"
	"github.com/propsnap/backend/internal/notify"
	"github.com/propsnap/backend/internal/photo"
	"github.com/propsnap/backend/internal/services"
	syncpkg "github.com/propsnap/backend/internal/sync"
	"github.com/propsnap/backend/internal/sync/netstatus"
	"github.com/propsnap/backend/internal/sync/queue"
	"github.com/propsnap/backend/internal/sync/scheduler"
)

// Options tune how the core observes the outside world.
type Options struct {
	// ManualConnectivity makes connectivity an explicit input (SetOnline) instead of
	// probing the API.
	ManualConnectivity bool
	// InitiallyOnline is the starting state under ManualConnectivity.
	InitiallyOnline bool
	// Deliverer presents notifications. nil only records them.
	Deliverer notify.Deliverer
}

// App holds every component of the core.
type App struct {
	Config config.Config

	DB    *db.DB
	Repo  *db.Repository
	KV    *db.KVStore
	Queue *queue.Queue

	Monitor netstatus.Monitor
	Manual  *netstatus.Manual
	Prober  *netstatus.Prober

	Engine        *syncpkg.Engine
	Scheduler     *scheduler.Scheduler
	API           *syncpkg.APIClient
	Notifications *notify.Manager
	Photos        *photo.Service
	Capture       *services.CaptureService
	Session       *services.Session
	Housekeeping  *housekeeping.Runner

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New opens the data directory and builds the components. Nothing runs in the background
// until Start.
func New(cfg config.Config, opts Options) (*App, error) {
	database, err := db.OpenAndMigrate(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		DB:     database,
		Repo:   db.NewRepository(database.DB),
		KV:     db.NewKVStore(database.DB),
	}

	fail := func(err error) (*App, error) {
		database.Close()
		return nil, err
	}

	a.Queue = queue.New(a.Repo, cfg.Sync.MaxAttempts)

	if opts.ManualConnectivity {
		initial := netstatus.Offline
		if opts.InitiallyOnline {
			initial = netstatus.OnlineStatus
		}
		a.Manual = netstatus.NewManual(initial)
		a.Monitor = a.Manual
	} else {
		a.Prober = netstatus.NewProber(cfg.Sync.ProbeURL, cfg.Sync.ProbeInterval)
		a.Monitor = a.Prober
	}

	sealer, err := crypto.NewSealer(cfg.Secret)
	if err != nil {
		return fail(fmt.Errorf("failed to prepare token encryption: %w", err))
	}
	a.Session = services.NewSession(a.KV, sealer, a.Queue)

	a.Notifications = notify.NewManager(a.KV, opts.Deliverer)

	a.Engine = syncpkg.NewEngine(a.Queue, a.Monitor, a.Notifications)
	a.API = syncpkg.NewAPIClient(syncpkg.APIConfig{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	}, syncpkg.TokenSourceFunc(a.Session.Token))
	a.API.RegisterUploaders(a.Engine)

	a.Scheduler = scheduler.NewScheduler(a.Engine, a.Queue, a.Monitor, &scheduler.SchedulerConfig{
		Interval: cfg.Sync.Interval,
	})

	a.Photos, err = photo.NewService(a.Repo, cfg.PhotoDir)
	if err != nil {
		return fail(err)
	}

	a.Capture = services.NewCaptureService(a.Photos, a.Repo, a.Queue, a.Monitor)
	a.Capture.SetOnEnqueued(func(queue.Item) { a.Scheduler.NotifyEnqueued() })

	a.Housekeeping, err = housekeeping.New(a.Photos, a.Notifications, housekeeping.Config{
		Schedule:              cfg.Housekeeping.Schedule,
		PendingGrace:          cfg.Housekeeping.PendingGrace,
		NotificationRetention: cfg.Housekeeping.NotificationRetention,
	})
	if err != nil {
		return fail(err)
	}

	return a, nil
}

// Start launches the background work: connectivity probing, thumbnail workers, the sync
// scheduler and housekeeping. Crash leftovers are recovered first.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	// No save can be in flight yet, so every pending row is a crash leftover.
	if _, err := a.Photos.RecoverPending(ctx, 0); err != nil {
		logging.Error("Startup photo recovery failed", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Prober != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.Prober.Run(runCtx)
		}()
	}

	a.Photos.Start(runCtx)
	a.Scheduler.Start(runCtx)
	if err := a.Housekeeping.Start(runCtx); err != nil {
		a.Scheduler.Stop()
		a.Photos.Stop()
		cancel()
		a.wg.Wait()
		return err
	}

	a.started = true
	logging.Info("Capture core started", map[string]interface{}{
		"data_dir":      a.Config.DataDir,
		"manual_online": a.Manual != nil,
	})
	return nil
}

// SetOnline overrides connectivity. It fails when connectivity is probed.
func (a *App) SetOnline(online bool) error {
	if a.Manual == nil {
		return apperrors.New(apperrors.ErrInvalid, "connectivity is probed automatically")
	}
	a.Manual.SetOnline(online)
	return nil
}

// Close stops background work and closes the database.
func (a *App) Close() error {
	a.mu.Lock()
	started := a.started
	a.started = false
	a.mu.Unlock()

	if started {
		a.Housekeeping.Stop()
		a.Scheduler.Stop()
		a.Photos.Stop()
		a.cancel()
		a.wg.Wait()
	}
	return a.DB.Close()
}
