package app

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/propsnap/backend/internal/config"
	"github.com/propsnap/backend/internal/db"
	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/housekeeping"
	"github.com/propsnap/backend/internal/models"
	"github.com/propsnap/backend/internal/sync/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, apiURL string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.PhotoDir = filepath.Join(cfg.DataDir, "photos")
	cfg.API.BaseURL = apiURL
	cfg.Sync.ProbeURL = apiURL + "/health"
	cfg.Sync.Interval = time.Hour
	cfg.Secret = "test-secret"
	return cfg
}

func writePNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.White)
	path := filepath.Join(t.TempDir(), "shot.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestApp_OfflineCaptureDrainsWhenOnline(t *testing.T) {
	var photos, orders atomic.Int32
	var auth atomic.Value
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/photos":
			photos.Add(1)
		case "/v1/orders":
			orders.Add(1)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer api.Close()

	a, err := New(testConfig(t, api.URL), Options{ManualConnectivity: true})
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Session.Login(ctx, "tok-1"))

	p, err := a.Capture.CapturePhoto(ctx, writePNG(t), "exterior", nil)
	require.NoError(t, err)
	order, err := a.Capture.SubmitOrder(ctx, &models.DraftOrder{
		PropertyAddress: "1 Main St",
		PackageCode:     "STD",
		PhotoIDs:        []string{string(p.ID)},
	})
	require.NoError(t, err)

	overview, err := a.Capture.QueueOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, overview.Pending)
	assert.False(t, overview.Online)

	require.NoError(t, a.SetOnline(true))

	require.Eventually(t, func() bool {
		n, err := a.Queue.Len(ctx)
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, int32(1), photos.Load())
	assert.Equal(t, int32(1), orders.Load())
	assert.Equal(t, "Bearer tok-1", auth.Load())

	stored, err := a.Photos.Get(ctx, string(p.ID))
	require.NoError(t, err)
	assert.True(t, stored.Uploaded)

	storedOrder, err := a.Capture.GetOrder(ctx, string(order.ID))
	require.NoError(t, err)
	assert.True(t, storedOrder.Synced)

	require.Eventually(t, func() bool {
		list, err := a.Notifications.List(ctx)
		return err == nil && len(list) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestApp_FailingUploadsGiveUpOnce(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer api.Close()

	a, err := New(testConfig(t, api.URL), Options{ManualConnectivity: true, InitiallyOnline: true})
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	_, err = a.Capture.SubmitOrder(ctx, &models.DraftOrder{
		PropertyAddress: "1 Main St",
		PackageCode:     "STD",
		PhotoIDs:        []string{"remote-photo"},
	})
	require.NoError(t, err)

	for i := 0; i < a.Config.Sync.MaxAttempts+2; i++ {
		_, err := a.Scheduler.DrainNow(ctx)
		require.NoError(t, err)
	}

	stats, err := a.Queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dead)

	list, err := a.Notifications.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Sync Failed", list[0].Title)
	assert.Equal(t, models.CategorySync, list[0].Category)
}

func TestApp_SetOnlineRequiresManual(t *testing.T) {
	a, err := New(testConfig(t, "http://127.0.0.1:1"), Options{})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Prober)
	err = a.SetOnline(true)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))
}

func TestApp_LogoutClearsQueue(t *testing.T) {
	a, err := New(testConfig(t, "http://127.0.0.1:1"), Options{ManualConnectivity: true})
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	_, err = a.Queue.Enqueue(ctx, queue.Item{
		ID:      "p1",
		Type:    queue.TypePhoto,
		Payload: queue.PhotoPayload{PhotoID: "p1", Path: "/x.jpg"},
	})
	require.NoError(t, err)

	require.NoError(t, a.Session.Logout(ctx))
	n, err := a.Queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApp_StartDiscardsPendingPhotos(t *testing.T) {
	a, err := New(testConfig(t, "http://127.0.0.1:1"), Options{ManualConnectivity: true})
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	tempPath := a.Photos.Files().TempPath("crashed", ".jpg")
	require.NoError(t, os.WriteFile(tempPath, []byte("partial"), 0644))
	require.NoError(t, a.Repo.InsertPhoto(ctx, &models.Photo{
		ID: "crashed", Path: tempPath, State: models.PhotoStatePending, CreatedAt: models.NowMillis(),
	}))

	require.NoError(t, a.Start(ctx))

	_, err = a.Repo.GetPhoto(ctx, "crashed")
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.NoFileExists(t, tempPath)
}

func TestApp_StartFailureStopsWorkers(t *testing.T) {
	a, err := New(testConfig(t, "http://127.0.0.1:1"), Options{ManualConnectivity: true})
	require.NoError(t, err)
	defer a.Close()

	// A runner without a schedule cannot be started.
	a.Housekeeping = &housekeeping.Runner{}

	require.Error(t, a.Start(context.Background()))
	assert.False(t, a.Scheduler.IsRunning())
	assert.False(t, a.Photos.IsRunning())
}
