// Package db tests for repository CRUD operations.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/propsnap/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB opens a migrated database in a temp dir.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenAndMigrate(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.DB
}

func setupRepo(t *testing.T) *Repository {
	t.Helper()
	repo := NewRepository(setupTestDB(t))
	t.Cleanup(func() { repo.Close() })
	return repo
}

func queueRecord(itemType, id string, createdAt int64) *models.QueueRecord {
	return &models.QueueRecord{
		Type:      itemType,
		ID:        id,
		Payload:   json.RawMessage(`{"id":"` + id + `"}`),
		CreatedAt: createdAt,
	}
}

// =====================================================
// Upload Queue Tests
// =====================================================

func TestUpsertQueueItem_insert(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	rec := queueRecord("photo", "p1", 100)
	require.NoError(t, repo.UpsertQueueItem(ctx, rec))
	assert.Equal(t, 0, rec.Attempts)

	got, err := repo.GetQueueItem(ctx, "photo", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.CreatedAt)
	assert.JSONEq(t, `{"id":"p1"}`, string(got.Payload))
}

func TestUpsertQueueItem_preservesAttempts(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	require.NoError(t, repo.UpsertQueueItem(ctx, queueRecord("order", "o1", 100)))
	n, err := repo.IncrementQueueAttempts(ctx, "order", "o1", "timeout")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec := queueRecord("order", "o1", 200)
	rec.Payload = json.RawMessage(`{"v":2}`)
	require.NoError(t, repo.UpsertQueueItem(ctx, rec))
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, "timeout", rec.LastError)

	items, err := repo.ListQueueItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(200), items[0].CreatedAt)
	assert.JSONEq(t, `{"v":2}`, string(items[0].Payload))
}

func TestUpsertQueueItem_sameIDDifferentType(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	require.NoError(t, repo.UpsertQueueItem(ctx, queueRecord("photo", "x", 1)))
	require.NoError(t, repo.UpsertQueueItem(ctx, queueRecord("order", "x", 2)))

	items, err := repo.ListQueueItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestGetQueueItem_notFound(t *testing.T) {
	_, err := setupRepo(t).GetQueueItem(context.Background(), "photo", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListQueueItems_orderedByCreatedAt(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	require.NoError(t, repo.UpsertQueueItem(ctx, queueRecord("photo", "c", 300)))
	require.NoError(t, repo.UpsertQueueItem(ctx, queueRecord("photo", "a", 100)))
	require.NoError(t, repo.UpsertQueueItem(ctx, queueRecord("photo", "b", 200)))

	items, err := repo.ListQueueItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestIncrementQueueAttempts_notFound(t *testing.T) {
	_, err := setupRepo(t).IncrementQueueAttempts(context.Background(), "photo", "nope", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteQueueItem_marksDomainSynced(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	photo := &models.Photo{ID: "p1", Path: "/tmp/p1.jpg", State: models.PhotoStateCommitted}
	require.NoError(t, repo.InsertPhoto(ctx, photo))
	require.NoError(t, repo.UpsertQueueItem(ctx, queueRecord("photo", "p1", 1)))

	order := &models.DraftOrder{ID: "o1", PropertyAddress: "1 Main", PackageCode: "basic", PhotoIDs: []string{"p1"}}
	require.NoError(t, repo.SaveOrder(ctx, order))
	require.NoError(t, repo.UpsertQueueItem(ctx, queueRecord("order", "o1", 2)))

	plan := &models.Floorplan{ID: "f1", PropertyAddress: "1 Main", Rooms: []models.Room{{Name: "Hall", WidthM: 1, LengthM: 1}}}
	require.NoError(t, repo.SaveFloorplan(ctx, plan))
	require.NoError(t, repo.UpsertQueueItem(ctx, queueRecord("floorplan", "f1", 3)))

	for _, key := range [][2]string{{"photo", "p1"}, {"order", "o1"}, {"floorplan", "f1"}} {
		removed, err := repo.CompleteQueueItem(ctx, key[0], key[1], 0)
		require.NoError(t, err)
		assert.True(t, removed, key[0])
	}

	gotPhoto, err := repo.GetPhoto(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, gotPhoto.Uploaded)

	gotOrder, err := repo.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, gotOrder.Synced)

	gotPlan, err := repo.GetFloorplan(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, gotPlan.Synced)

	items, err := repo.ListQueueItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCompleteQueueItem_absentIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	require.NoError(t, repo.InsertPhoto(ctx, &models.Photo{ID: "p1", Path: "x", State: models.PhotoStateCommitted}))

	removed, err := repo.CompleteQueueItem(ctx, "photo", "p1", 0)
	require.NoError(t, err)
	assert.False(t, removed)

	p, err := repo.GetPhoto(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, p.Uploaded)
}

func TestCompleteQueueItem_unknownType(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	require.NoError(t, repo.UpsertQueueItem(ctx, queueRecord("note", "n1", 1)))
	removed, err := repo.CompleteQueueItem(ctx, "note", "n1", 0)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestCompleteQueueItem_staleVersionKeepsRow(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	order := &models.DraftOrder{ID: "o1", PropertyAddress: "1 Main", PackageCode: "basic"}
	require.NoError(t, repo.SaveOrder(ctx, order))
	first := queueRecord("order", "o1", 1)
	require.NoError(t, repo.UpsertQueueItem(ctx, first))

	// A re-enqueue within the same millisecond still yields a newer version.
	second := queueRecord("order", "o1", 1)
	require.NoError(t, repo.UpsertQueueItem(ctx, second))
	assert.Greater(t, second.UpdatedAt, first.UpdatedAt)

	removed, err := repo.CompleteQueueItem(ctx, "order", "o1", first.UpdatedAt)
	require.NoError(t, err)
	assert.False(t, removed)

	got, err := repo.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, got.Synced)
	items, err := repo.ListQueueItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	removed, err = repo.CompleteQueueItem(ctx, "order", "o1", second.UpdatedAt)
	require.NoError(t, err)
	assert.True(t, removed)
	got, err = repo.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, got.Synced)
}

func TestResetQueueItem(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	require.NoError(t, repo.UpsertQueueItem(ctx, queueRecord("photo", "p1", 42)))
	for i := 0; i < 5; i++ {
		_, err := repo.IncrementQueueAttempts(ctx, "photo", "p1", "boom")
		require.NoError(t, err)
	}

	ok, err := repo.ResetQueueItem(ctx, "photo", "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetQueueItem(ctx, "photo", "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Attempts)
	assert.Empty(t, got.LastError)
	assert.Equal(t, int64(42), got.CreatedAt)

	ok, err = repo.ResetQueueItem(ctx, "photo", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearQueue(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	require.NoError(t, repo.UpsertQueueItem(ctx, queueRecord("photo", "a", 1)))
	require.NoError(t, repo.UpsertQueueItem(ctx, queueRecord("order", "b", 2)))

	n, err := repo.ClearQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.ClearQueue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// =====================================================
// Photo Tests
// =====================================================

func TestPhoto_twoPhaseLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	p := &models.Photo{
		ID:       "p1",
		Path:     "/photos/.p1.tmp",
		Category: "exterior",
		Metadata: map[string]string{"room": "front"},
		State:    models.PhotoStatePending,
	}
	require.NoError(t, repo.InsertPhoto(ctx, p))

	listed, err := repo.ListPhotos(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed, "pending photos are not listed")

	p.Path = "/photos/p1.jpg"
	p.Width, p.Height, p.Format, p.SizeBytes = 640, 480, "jpeg", 1234
	require.NoError(t, repo.CommitPhoto(ctx, p))

	listed, err = repo.ListPhotos(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	got := listed[0]
	assert.Equal(t, models.PhotoStateCommitted, got.State)
	assert.Equal(t, "/photos/p1.jpg", got.Path)
	assert.Equal(t, "front", got.Metadata["room"])
	assert.Equal(t, 640, got.Width)
	assert.Equal(t, int64(1234), got.SizeBytes)

	// Committing twice finds no pending row
	assert.ErrorIs(t, repo.CommitPhoto(ctx, p), ErrNotFound)
}

func TestListPendingPhotos(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	require.NoError(t, repo.InsertPhoto(ctx, &models.Photo{ID: "old", Path: "a", State: models.PhotoStatePending, CreatedAt: 100}))
	require.NoError(t, repo.InsertPhoto(ctx, &models.Photo{ID: "new", Path: "b", State: models.PhotoStatePending, CreatedAt: 900}))
	require.NoError(t, repo.InsertPhoto(ctx, &models.Photo{ID: "done", Path: "c", State: models.PhotoStateCommitted, CreatedAt: 50}))

	pending, err := repo.ListPendingPhotos(ctx, 500)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.UUID("old"), pending[0].ID)
}

func TestMarkPhotoUploadedAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	assert.ErrorIs(t, repo.MarkPhotoUploaded(ctx, "missing"), ErrNotFound)

	require.NoError(t, repo.InsertPhoto(ctx, &models.Photo{ID: "p1", Path: "a", State: models.PhotoStateCommitted}))
	require.NoError(t, repo.MarkPhotoUploaded(ctx, "p1"))
	p, err := repo.GetPhoto(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, p.Uploaded)

	ok, err := repo.DeletePhoto(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.DeletePhoto(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.GetPhoto(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotFound)
}

// =====================================================
// Order and Floorplan Tests
// =====================================================

func TestSaveOrder_roundTripAndResync(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	o := &models.DraftOrder{
		ID:              "o1",
		PropertyAddress: "12 Harbor St",
		PackageCode:     "hdr-25",
		AddOns:          []string{"drone"},
		PhotoIDs:        []string{"p1", "p2"},
		ContactEmail:    "agent@example.com",
	}
	require.NoError(t, repo.SaveOrder(ctx, o))
	require.NoError(t, repo.UpsertQueueItem(ctx, queueRecord("order", "o1", 1)))
	_, err := repo.CompleteQueueItem(ctx, "order", "o1", 0)
	require.NoError(t, err)

	got, err := repo.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.Equal(t, []string{"drone"}, got.AddOns)
	assert.Equal(t, []string{"p1", "p2"}, got.PhotoIDs)

	created := got.CreatedAt
	o.Notes = "gate code 1234"
	require.NoError(t, repo.SaveOrder(ctx, o))
	got, err = repo.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, got.Synced, "edits require a new upload")
	assert.Equal(t, "gate code 1234", got.Notes)
	assert.Equal(t, created, got.CreatedAt)

	_, err = repo.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrders_newestFirst(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	require.NoError(t, repo.SaveOrder(ctx, &models.DraftOrder{ID: "a", PropertyAddress: "x", PackageCode: "p", CreatedAt: 1}))
	require.NoError(t, repo.SaveOrder(ctx, &models.DraftOrder{ID: "b", PropertyAddress: "x", PackageCode: "p", CreatedAt: 2}))

	orders, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, models.UUID("b"), orders[0].ID)
	assert.Empty(t, orders[1].AddOns)
}

func TestSaveFloorplan_roundTrip(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	f := &models.Floorplan{
		ID:              "f1",
		PropertyAddress: "1 Main",
		Rooms:           []models.Room{{Name: "Kitchen", WidthM: 3, LengthM: 4}},
	}
	require.NoError(t, repo.SaveFloorplan(ctx, f))

	got, err := repo.GetFloorplan(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, got.Rooms, 1)
	assert.InDelta(t, 12.0, got.TotalArea(), 1e-9)

	plans, err := repo.ListFloorplans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 1)

	_, err = repo.GetFloorplan(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
