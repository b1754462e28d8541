// Package services composes the capture actions exposed to the UI shells: each action
// writes locally, enqueues an upload and pokes the sync scheduler.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/propsnap/backend/internal/db"
	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/logging"
	"github.com/propsnap/backend/internal/models"
	"github.com/propsnap/backend/internal/photo"
	"github.com/propsnap/backend/internal/sync/netstatus"
	"github.com/propsnap/backend/internal/sync/queue"
	"github.com/propsnap/backend/internal/uuid"
)

// RecordStore persists draft orders and floorplans.
type RecordStore interface {
	db.OrderRepository
	db.FloorplanRepository
}

// CaptureService coordinates local capture with the upload queue.
type CaptureService struct {
	photos  *photo.Service
	records RecordStore
	queue   *queue.Queue
	monitor netstatus.Monitor

	// Called after every successful enqueue, typically Scheduler.NotifyEnqueued.
	onEnqueued func(item queue.Item)

	mu sync.RWMutex
}

// NewCaptureService creates a CaptureService.
func NewCaptureService(photos *photo.Service, records RecordStore, q *queue.Queue, monitor netstatus.Monitor) *CaptureService {
	return &CaptureService{
		photos:  photos,
		records: records,
		queue:   q,
		monitor: monitor,
	}
}

// SetOnEnqueued sets the callback run after each enqueue.
func (s *CaptureService) SetOnEnqueued(fn func(item queue.Item)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnqueued = fn
}

func (s *CaptureService) enqueue(ctx context.Context, item queue.Item) (*queue.Item, error) {
	stored, err := s.queue.Enqueue(ctx, item)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	fn := s.onEnqueued
	s.mu.RUnlock()
	if fn != nil {
		fn(*stored)
	}
	return stored, nil
}

// CapturePhoto saves a photo and queues its upload.
func (s *CaptureService) CapturePhoto(ctx context.Context, sourcePath, category string, metadata map[string]string) (*models.Photo, error) {
	p, err := s.photos.SavePhoto(ctx, sourcePath, category, metadata)
	if err != nil {
		return nil, err
	}

	_, err = s.enqueue(ctx, queue.Item{
		ID:   string(p.ID),
		Type: queue.TypePhoto,
		Payload: queue.PhotoPayload{
			PhotoID:  string(p.ID),
			Path:     p.Path,
			Category: p.Category,
			Metadata: p.Metadata,
		},
		CreatedAt: p.CreatedAtTime(),
	})
	if err != nil {
		logging.ErrorWithCode("Photo saved but not queued", string(apperrors.CodeOf(err)), err,
			map[string]interface{}{"photo_id": p.ID})
		return nil, err
	}

	logging.Info("Photo captured", map[string]interface{}{"photo_id": p.ID, "category": p.Category})
	return p, nil
}

// DeletePhoto removes a photo and drops its queued upload, if any.
func (s *CaptureService) DeletePhoto(ctx context.Context, id string) error {
	if err := s.photos.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.queue.Remove(ctx, queue.TypePhoto, id); err != nil {
		return err
	}

	logging.Info("Photo deleted", map[string]interface{}{"photo_id": id})
	return nil
}

// SubmitOrder validates and stores a draft order and queues its submission.
func (s *CaptureService) SubmitOrder(ctx context.Context, order *models.DraftOrder) (*models.DraftOrder, error) {
	if order == nil {
		return nil, apperrors.New(apperrors.ErrInvalid, "order is required")
	}
	if err := order.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid order", err)
	}
	if order.ID == "" {
		order.ID = models.UUID(uuid.New())
	}

	if err := s.records.SaveOrder(ctx, order); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to save order", err)
	}

	if _, err := s.enqueue(ctx, queue.Item{
		ID:        string(order.ID),
		Type:      queue.TypeOrder,
		Payload:   queue.OrderPayload{Order: *order},
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, err
	}

	logging.Info("Order queued", map[string]interface{}{"order_id": order.ID, "photos": len(order.PhotoIDs)})
	return order, nil
}

// SaveFloorplan validates and stores a floorplan and queues its upload.
func (s *CaptureService) SaveFloorplan(ctx context.Context, fp *models.Floorplan) (*models.Floorplan, error) {
	if fp == nil {
		return nil, apperrors.New(apperrors.ErrInvalid, "floorplan is required")
	}
	if err := fp.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid floorplan", err)
	}
	if fp.ID == "" {
		fp.ID = models.UUID(uuid.New())
	}

	if err := s.records.SaveFloorplan(ctx, fp); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to save floorplan", err)
	}

	if _, err := s.enqueue(ctx, queue.Item{
		ID:        string(fp.ID),
		Type:      queue.TypeFloorplan,
		Payload:   queue.FloorplanPayload{Floorplan: *fp},
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, err
	}

	logging.Info("Floorplan queued", map[string]interface{}{"floorplan_id": fp.ID, "rooms": len(fp.Rooms)})
	return fp, nil
}

// ListOrders returns draft orders, newest first.
func (s *CaptureService) ListOrders(ctx context.Context) ([]*models.DraftOrder, error) {
	orders, err := s.records.ListOrders(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list orders", err)
	}
	if orders == nil {
		orders = []*models.DraftOrder{}
	}
	return orders, nil
}

// GetOrder returns one draft order.
func (s *CaptureService) GetOrder(ctx context.Context, id string) (*models.DraftOrder, error) {
	o, err := s.records.GetOrder(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperrors.New(apperrors.ErrNotFound, "order not found: "+id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read order", err)
	}
	return o, nil
}

// ListFloorplans returns stored floorplans.
func (s *CaptureService) ListFloorplans(ctx context.Context) ([]*models.Floorplan, error) {
	fps, err := s.records.ListFloorplans(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list floorplans", err)
	}
	if fps == nil {
		fps = []*models.Floorplan{}
	}
	return fps, nil
}

// QueueOverview backs the offline banner and the pending-uploads badge.
type QueueOverview struct {
	Online  bool        `json:"online"`
	Pending int         `json:"pending"`
	Stats   queue.Stats `json:"stats"`
}

// QueueOverview returns queue statistics and the connectivity flag.
func (s *CaptureService) QueueOverview(ctx context.Context) (*QueueOverview, error) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, err
	}

	overview := &QueueOverview{Pending: stats.Eligible, Stats: stats}
	if s.monitor != nil {
		status, err := s.monitor.Current(ctx)
		if err == nil {
			overview.Online = status.Online()
		}
	}
	return overview, nil
}

// RetryItem resets the attempts of a queued item, typically one that gave up.
func (s *CaptureService) RetryItem(ctx context.Context, itemType queue.ItemType, id string) error {
	if err := s.queue.Requeue(ctx, itemType, id); err != nil {
		return err
	}

	item, err := s.queue.Get(ctx, itemType, id)
	if err != nil {
		return err
	}

	s.mu.RLock()
	fn := s.onEnqueued
	s.mu.RUnlock()
	if fn != nil {
		fn(*item)
	}

	logging.Info("Queue item reset for retry", map[string]interface{}{"type": itemType, "id": id})
	return nil
}
