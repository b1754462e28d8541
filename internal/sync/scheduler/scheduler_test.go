// Package scheduler tests for background drain scheduling.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/propsnap/backend/internal/db"
	syncpkg "github.com/propsnap/backend/internal/sync"
	"github.com/propsnap/backend/internal/sync/netstatus"
	"github.com/propsnap/backend/internal/sync/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =====================================================
// Test Helpers
// =====================================================

// fakeDrainer counts drains. When block is set, each drain waits for release.
type fakeDrainer struct {
	calls      atomic.Int32
	processing atomic.Bool
	block      chan struct{}
	err        error
}

func (f *fakeDrainer) Drain(ctx context.Context) (*syncpkg.DrainResult, error) {
	if !f.processing.CompareAndSwap(false, true) {
		return &syncpkg.DrainResult{Skipped: true}, nil
	}
	defer f.processing.Store(false)

	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return &syncpkg.DrainResult{Interrupted: true}, nil
		}
	}
	return &syncpkg.DrainResult{Attempted: 1, Succeeded: 1}, f.err
}

func (f *fakeDrainer) IsProcessing() bool { return f.processing.Load() }

type testEnv struct {
	scheduler *Scheduler
	drainer   *fakeDrainer
	queue     *queue.Queue
	monitor   *netstatus.Manual
}

func createTestScheduler(t *testing.T, online bool, interval time.Duration) *testEnv {
	t.Helper()
	database, err := db.OpenAndMigrate(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	q := queue.New(db.NewRepository(database.DB), queue.MaxAttempts)
	initial := netstatus.Offline
	if online {
		initial = netstatus.OnlineStatus
	}
	monitor := netstatus.NewManual(initial)
	drainer := &fakeDrainer{}

	s := NewScheduler(drainer, q, monitor, &SchedulerConfig{Interval: interval})
	t.Cleanup(s.Stop)

	return &testEnv{scheduler: s, drainer: drainer, queue: q, monitor: monitor}
}

func enqueuePhoto(t *testing.T, q *queue.Queue, id string) {
	t.Helper()
	_, err := q.Enqueue(context.Background(), queue.Item{
		ID:      id,
		Type:    queue.TypePhoto,
		Payload: queue.PhotoPayload{PhotoID: id, Path: "/photos/" + id + ".jpg"},
	})
	require.NoError(t, err)
}

func waitForCalls(t *testing.T, d *fakeDrainer, want int32) {
	t.Helper()
	require.Eventually(t, func() bool { return d.calls.Load() >= want }, 2*time.Second, 5*time.Millisecond,
		"expected at least %d drains, got %d", want, d.calls.Load())
}

// =====================================================
// Construction Tests
// =====================================================

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()
	require.NotNil(t, config)
	assert.Equal(t, time.Minute, config.Interval)
}

func TestNewScheduler_DefaultsInterval(t *testing.T) {
	s := NewScheduler(&fakeDrainer{}, nil, netstatus.NewManual(netstatus.Offline), nil)
	assert.Equal(t, time.Minute, s.interval)

	s = NewScheduler(&fakeDrainer{}, nil, netstatus.NewManual(netstatus.Offline), &SchedulerConfig{Interval: -time.Second})
	assert.Equal(t, time.Minute, s.interval)
}

// =====================================================
// Start / Stop Tests
// =====================================================

func TestScheduler_StartStop(t *testing.T) {
	env := createTestScheduler(t, false, time.Hour)

	assert.False(t, env.scheduler.IsRunning())
	env.scheduler.Start(context.Background())
	assert.True(t, env.scheduler.IsRunning())

	// A second Start is a no-op.
	env.scheduler.Start(context.Background())
	assert.True(t, env.scheduler.IsRunning())

	env.scheduler.Stop()
	assert.False(t, env.scheduler.IsRunning())

	// A second Stop is a no-op.
	env.scheduler.Stop()
}

func TestScheduler_StartOnlineDrainsImmediately(t *testing.T) {
	env := createTestScheduler(t, true, time.Hour)

	env.scheduler.Start(context.Background())

	waitForCalls(t, env.drainer, 1)
	assert.True(t, env.scheduler.IsOnline())
}

func TestScheduler_StartOfflineDoesNotDrain(t *testing.T) {
	env := createTestScheduler(t, false, time.Hour)

	env.scheduler.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(0), env.drainer.calls.Load())
	assert.False(t, env.scheduler.IsOnline())
}

func TestScheduler_StopWaitsForDrain(t *testing.T) {
	env := createTestScheduler(t, true, time.Hour)
	env.drainer.block = make(chan struct{})

	env.scheduler.Start(context.Background())
	waitForCalls(t, env.drainer, 1)

	// Stop cancels the drain context, which releases the blocked drain.
	env.scheduler.Stop()
	assert.False(t, env.drainer.IsProcessing())
}

// =====================================================
// Trigger Tests
// =====================================================

func TestScheduler_OfflineToOnlineTriggersDrain(t *testing.T) {
	env := createTestScheduler(t, false, time.Hour)
	env.scheduler.Start(context.Background())

	env.monitor.SetOnline(true)

	waitForCalls(t, env.drainer, 1)
	assert.Eventually(t, env.scheduler.IsOnline, time.Second, 5*time.Millisecond)
}

func TestScheduler_GoingOfflineDoesNotDrain(t *testing.T) {
	env := createTestScheduler(t, true, time.Hour)
	env.scheduler.Start(context.Background())
	waitForCalls(t, env.drainer, 1)

	env.monitor.SetOnline(false)
	require.Eventually(t, func() bool { return !env.scheduler.IsOnline() }, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(1), env.drainer.calls.Load())
}

func TestScheduler_PeriodicDrainOnlyWithEligibleItems(t *testing.T) {
	env := createTestScheduler(t, true, 20*time.Millisecond)
	env.scheduler.Start(context.Background())
	waitForCalls(t, env.drainer, 1)

	// Empty queue: ticks do not drain.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), env.drainer.calls.Load())

	enqueuePhoto(t, env.queue, "p1")
	waitForCalls(t, env.drainer, 2)
}

func TestScheduler_PeriodicDrainSkippedWhileOffline(t *testing.T) {
	env := createTestScheduler(t, false, 20*time.Millisecond)
	enqueuePhoto(t, env.queue, "p1")

	env.scheduler.Start(context.Background())
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(0), env.drainer.calls.Load())
}

func TestScheduler_NotifyEnqueued(t *testing.T) {
	t.Run("online and idle drains", func(t *testing.T) {
		env := createTestScheduler(t, false, time.Hour)
		env.scheduler.Start(context.Background())
		env.scheduler.SetOnlineStatus(true)

		env.scheduler.NotifyEnqueued()

		waitForCalls(t, env.drainer, 1)
	})

	t.Run("offline does nothing", func(t *testing.T) {
		env := createTestScheduler(t, false, time.Hour)
		env.scheduler.Start(context.Background())

		env.scheduler.NotifyEnqueued()
		time.Sleep(50 * time.Millisecond)

		assert.Equal(t, int32(0), env.drainer.calls.Load())
	})

	t.Run("busy does nothing", func(t *testing.T) {
		env := createTestScheduler(t, true, time.Hour)
		env.drainer.block = make(chan struct{})
		env.scheduler.Start(context.Background())
		waitForCalls(t, env.drainer, 1)

		env.scheduler.NotifyEnqueued()
		close(env.drainer.block)

		require.Eventually(t, func() bool { return !env.drainer.IsProcessing() }, time.Second, 5*time.Millisecond)
		assert.Equal(t, int32(1), env.drainer.calls.Load())
	})
}

func TestScheduler_TriggerSync(t *testing.T) {
	env := createTestScheduler(t, false, time.Hour)

	assert.False(t, env.scheduler.TriggerSync(), "not running")

	env.scheduler.Start(context.Background())
	env.drainer.block = make(chan struct{})

	assert.True(t, env.scheduler.TriggerSync())
	waitForCalls(t, env.drainer, 1)
	assert.False(t, env.scheduler.TriggerSync(), "already draining")

	close(env.drainer.block)
}

func TestScheduler_SetOnlineStatus(t *testing.T) {
	env := createTestScheduler(t, false, time.Hour)

	assert.True(t, env.scheduler.SetOnlineStatus(true), "offline to online")
	assert.False(t, env.scheduler.SetOnlineStatus(true), "online to online")
	assert.False(t, env.scheduler.SetOnlineStatus(false), "online to offline")
	assert.False(t, env.scheduler.SetOnlineStatus(false), "offline to offline")
}

// =====================================================
// DrainNow / Status Tests
// =====================================================

func TestScheduler_DrainNow(t *testing.T) {
	env := createTestScheduler(t, true, time.Hour)

	result, err := env.scheduler.DrainNow(context.Background())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, int32(1), env.drainer.calls.Load())

	status, err := env.scheduler.GetStatus(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status.LastDrainTime)
	assert.Same(t, result, status.LastResult)
}

func TestScheduler_DrainNowSkippedIsNotRecorded(t *testing.T) {
	env := createTestScheduler(t, true, time.Hour)
	env.drainer.block = make(chan struct{})
	env.scheduler.Start(context.Background())
	waitForCalls(t, env.drainer, 1)

	result, err := env.scheduler.DrainNow(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)

	status, err := env.scheduler.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, status.LastResult)
	assert.True(t, status.Draining)

	close(env.drainer.block)
}

func TestScheduler_GetStatus(t *testing.T) {
	env := createTestScheduler(t, false, time.Hour)
	enqueuePhoto(t, env.queue, "p1")
	enqueuePhoto(t, env.queue, "p2")

	status, err := env.scheduler.GetStatus(context.Background())
	require.NoError(t, err)

	assert.False(t, status.IsRunning)
	assert.False(t, status.IsOnline)
	assert.False(t, status.Draining)
	assert.Nil(t, status.LastDrainTime)
	assert.Equal(t, 2, status.QueueStats.Total)
	assert.Equal(t, 2, status.QueueStats.Eligible)
}

func TestScheduler_ConcurrentTriggers(t *testing.T) {
	env := createTestScheduler(t, false, time.Hour)
	env.scheduler.Start(context.Background())
	env.scheduler.SetOnlineStatus(true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.scheduler.NotifyEnqueued()
		}()
	}
	wg.Wait()

	waitForCalls(t, env.drainer, 1)
	env.scheduler.Stop()
	assert.False(t, env.drainer.IsProcessing())
}

// =====================================================
// Integration with the engine
// =====================================================

func TestScheduler_WithEngine(t *testing.T) {
	database, err := db.OpenAndMigrate(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	q := queue.New(db.NewRepository(database.DB), queue.MaxAttempts)
	monitor := netstatus.NewManual(netstatus.Offline)
	engine := syncpkg.NewEngine(q, monitor, nil)

	var uploaded atomic.Int32
	engine.Register(queue.TypePhoto, syncpkg.UploaderFunc(func(ctx context.Context, item queue.Item) error {
		uploaded.Add(1)
		return nil
	}))

	s := NewScheduler(engine, q, monitor, &SchedulerConfig{Interval: time.Hour})
	s.Start(context.Background())
	t.Cleanup(s.Stop)

	enqueuePhoto(t, q, "p1")
	enqueuePhoto(t, q, "p2")

	monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		n, err := q.Len(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), uploaded.Load())
}
