// Package db provides repository interfaces for PropSnap data models.
package db

import (
	"context"

	"github.com/propsnap/backend/internal/models"
)

// QueueRepository defines operations for upload queue persistence.
type QueueRepository interface {
	// UpsertQueueItem inserts or replaces a queue row, preserving attempts.
	UpsertQueueItem(ctx context.Context, rec *models.QueueRecord) error

	// GetQueueItem retrieves a queue row by (type, id).
	GetQueueItem(ctx context.Context, itemType, id string) (*models.QueueRecord, error)

	// ListQueueItems returns every queue row.
	ListQueueItems(ctx context.Context) ([]*models.QueueRecord, error)

	// IncrementQueueAttempts records a failed delivery.
	IncrementQueueAttempts(ctx context.Context, itemType, id, lastError string) (int, error)

	// CompleteQueueItem removes a delivered row and marks its record synced. A non-zero
	// updatedAt only matches that row version.
	CompleteQueueItem(ctx context.Context, itemType, id string, updatedAt int64) (bool, error)

	// ResetQueueItem re-adds a row with zero attempts.
	ResetQueueItem(ctx context.Context, itemType, id string) (bool, error)

	// ClearQueue deletes every row.
	ClearQueue(ctx context.Context) (int64, error)
}

// PhotoRepository defines operations for the photo index.
type PhotoRepository interface {
	InsertPhoto(ctx context.Context, p *models.Photo) error
	CommitPhoto(ctx context.Context, p *models.Photo) error
	GetPhoto(ctx context.Context, id string) (*models.Photo, error)
	ListPhotos(ctx context.Context) ([]*models.Photo, error)
	ListPendingPhotos(ctx context.Context, createdBefore int64) ([]*models.Photo, error)
	MarkPhotoUploaded(ctx context.Context, id string) error
	DeletePhoto(ctx context.Context, id string) (bool, error)
}

// OrderRepository defines operations for draft order persistence.
type OrderRepository interface {
	SaveOrder(ctx context.Context, o *models.DraftOrder) error
	GetOrder(ctx context.Context, id string) (*models.DraftOrder, error)
	ListOrders(ctx context.Context) ([]*models.DraftOrder, error)
}

// FloorplanRepository defines operations for floorplan persistence.
type FloorplanRepository interface {
	SaveFloorplan(ctx context.Context, f *models.Floorplan) error
	GetFloorplan(ctx context.Context, id string) (*models.Floorplan, error)
	ListFloorplans(ctx context.Context) ([]*models.Floorplan, error)
}

// CaptureRepository groups the repositories used by the capture service.
type CaptureRepository interface {
	QueueRepository
	PhotoRepository
	OrderRepository
	FloorplanRepository
}

// Ensure *Repository implements the interfaces at compile time.
var (
	_ QueueRepository     = (*Repository)(nil)
	_ PhotoRepository     = (*Repository)(nil)
	_ OrderRepository     = (*Repository)(nil)
	_ FloorplanRepository = (*Repository)(nil)
	_ CaptureRepository   = (*Repository)(nil)
)
