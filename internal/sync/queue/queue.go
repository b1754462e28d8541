// Package queue provides the durable upload queue for offline captures.
//
// Items are keyed by (type, id). Re-enqueueing an existing key replaces its payload and
// creation time but keeps its attempt counter, so a user re-saving a draft cannot reset
// the retry budget. Attempts are reset only through Requeue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/propsnap/backend/internal/db"
	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/logging"
	"github.com/propsnap/backend/internal/models"
)

// MaxAttempts is the default number of failed deliveries after which an item stops being
// eligible for automatic sync.
const MaxAttempts = 5

// ItemType names the kind of mutation a queue item carries.
type ItemType string

const (
	TypePhoto     ItemType = "photo"
	TypeOrder     ItemType = "order"
	TypeFloorplan ItemType = "floorplan"
)

// Payload is the tagged union of queue item bodies.
type Payload interface {
	ItemType() ItemType
}

// PhotoPayload references a committed photo file.
type PhotoPayload struct {
	PhotoID  string            `json:"photo_id"`
	Path     string            `json:"path"`
	Category string            `json:"category,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (PhotoPayload) ItemType() ItemType { return TypePhoto }

// OrderPayload carries a draft order snapshot.
type OrderPayload struct {
	Order models.DraftOrder `json:"order"`
}

func (OrderPayload) ItemType() ItemType { return TypeOrder }

// FloorplanPayload carries a floorplan snapshot.
type FloorplanPayload struct {
	Floorplan models.Floorplan `json:"floorplan"`
}

func (FloorplanPayload) ItemType() ItemType { return TypeFloorplan }

// RawPayload holds the body of an item whose type has no built-in payload. Such items
// are stored and listed like any other; delivering them needs a registered uploader.
type RawPayload struct {
	Type ItemType        `json:"-"`
	Data json.RawMessage `json:"data"`
}

func (p RawPayload) ItemType() ItemType { return p.Type }

// MarshalJSON emits the raw body unchanged.
func (p RawPayload) MarshalJSON() ([]byte, error) {
	if len(p.Data) == 0 {
		return []byte("null"), nil
	}
	return p.Data, nil
}

// Item is a pending mutation awaiting upload.
type Item struct {
	ID        string    `json:"id"`
	Type      ItemType  `json:"type"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the "type/id" form used in logs and events.
func (i Item) Key() string {
	return string(i.Type) + "/" + i.ID
}

// Stats summarizes the queue for badges and the offline banner.
type Stats struct {
	Total    int              `json:"total"`
	Eligible int              `json:"eligible"`
	Dead     int              `json:"dead"`
	ByType   map[ItemType]int `json:"by_type"`
}

// Store is the persistence the queue needs. *db.Repository implements it.
type Store interface {
	UpsertQueueItem(ctx context.Context, rec *models.QueueRecord) error
	GetQueueItem(ctx context.Context, itemType, id string) (*models.QueueRecord, error)
	ListQueueItems(ctx context.Context) ([]*models.QueueRecord, error)
	IncrementQueueAttempts(ctx context.Context, itemType, id, lastError string) (int, error)
	CompleteQueueItem(ctx context.Context, itemType, id string, updatedAt int64) (bool, error)
	ResetQueueItem(ctx context.Context, itemType, id string) (bool, error)
	ClearQueue(ctx context.Context) (int64, error)
}

// Queue is the upload queue. It is safe for concurrent use.
type Queue struct {
	store       Store
	maxAttempts int
	mu          sync.Mutex
}

// New creates a Queue over store. maxAttempts <= 0 selects MaxAttempts.
func New(store Store, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = MaxAttempts
	}
	return &Queue{store: store, maxAttempts: maxAttempts}
}

// MaxAttempts returns the attempt cap.
func (q *Queue) MaxAttempts() int {
	return q.maxAttempts
}

// Enqueue inserts item or replaces the payload and creation time of the item with the
// same (type, id). The returned item carries the stored attempt count.
func (q *Queue) Enqueue(ctx context.Context, item Item) (*Item, error) {
	if err := validate(item); err != nil {
		return nil, err
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	body, err := json.Marshal(item.Payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "encode payload", err)
	}

	rec := &models.QueueRecord{
		Type:      string(item.Type),
		ID:        item.ID,
		Payload:   body,
		CreatedAt: item.CreatedAt.UnixMilli(),
	}

	q.mu.Lock()
	err = q.store.UpsertQueueItem(ctx, rec)
	q.mu.Unlock()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "enqueue "+item.Key(), err)
	}

	item.Attempts = rec.Attempts
	item.LastError = rec.LastError
	item.UpdatedAt = models.MillisTime(rec.UpdatedAt)

	logging.Debug("queue: enqueued", map[string]interface{}{
		"type":     item.Type,
		"id":       item.ID,
		"attempts": item.Attempts,
	})
	return &item, nil
}

func validate(item Item) error {
	if strings.TrimSpace(item.ID) == "" {
		return apperrors.New(apperrors.ErrInvalid, "queue item id is required")
	}
	if item.Type == "" {
		return apperrors.New(apperrors.ErrInvalid, "queue item type is required")
	}
	if item.Payload == nil {
		return apperrors.New(apperrors.ErrInvalid, "queue item payload is required")
	}
	if item.Payload.ItemType() != item.Type {
		return apperrors.New(apperrors.ErrInvalid,
			fmt.Sprintf("payload type %q does not match item type %q", item.Payload.ItemType(), item.Type))
	}
	return nil
}

// List returns every item, including those past the attempt cap.
func (q *Queue) List(ctx context.Context) ([]Item, error) {
	recs, err := q.store.ListQueueItems(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "list queue", err)
	}

	items := make([]Item, 0, len(recs))
	for _, rec := range recs {
		item, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Get returns the item stored under (type, id).
func (q *Queue) Get(ctx context.Context, itemType ItemType, id string) (*Item, error) {
	rec, err := q.store.GetQueueItem(ctx, string(itemType), id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperrors.New(apperrors.ErrNotFound, "queue item "+string(itemType)+"/"+id+" not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "get queue item", err)
	}
	item, err := fromRecord(rec)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Eligible returns items below the attempt cap, oldest first.
func (q *Queue) Eligible(ctx context.Context) ([]Item, error) {
	all, err := q.List(ctx)
	if err != nil {
		return nil, err
	}

	eligible := all[:0]
	for _, item := range all {
		if item.Attempts < q.maxAttempts {
			eligible = append(eligible, item)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if !eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
		}
		return eligible[i].Key() < eligible[j].Key()
	})
	return eligible, nil
}

// Remove deletes (type, id) and flags its source record synced in one transaction.
// Removing an absent item is a no-op.
func (q *Queue) Remove(ctx context.Context, itemType ItemType, id string) error {
	q.mu.Lock()
	removed, err := q.store.CompleteQueueItem(ctx, string(itemType), id, 0)
	q.mu.Unlock()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "remove "+string(itemType)+"/"+id, err)
	}
	if removed {
		logging.Debug("queue: removed", map[string]interface{}{"type": itemType, "id": id})
	}
	return nil
}

// Complete removes item after a successful delivery, like Remove, but only if the stored
// row is still the version item was read from. It returns false when the item was
// removed or re-enqueued in the meantime; the stored row is then left untouched.
func (q *Queue) Complete(ctx context.Context, item Item) (bool, error) {
	version := item.UpdatedAt.UnixMilli()
	if item.UpdatedAt.IsZero() {
		version = 0
	}

	q.mu.Lock()
	removed, err := q.store.CompleteQueueItem(ctx, string(item.Type), item.ID, version)
	q.mu.Unlock()
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrStorage, "complete "+item.Key(), err)
	}
	if removed {
		logging.Debug("queue: completed", map[string]interface{}{"type": item.Type, "id": item.ID})
	}
	return removed, nil
}

// RecordFailure increments the attempt counter of (type, id) and stores cause as its last
// error. Returns the new attempt count.
func (q *Queue) RecordFailure(ctx context.Context, itemType ItemType, id string, cause error) (int, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	q.mu.Lock()
	attempts, err := q.store.IncrementQueueAttempts(ctx, string(itemType), id, msg)
	q.mu.Unlock()
	if errors.Is(err, db.ErrNotFound) {
		return 0, apperrors.New(apperrors.ErrNotFound, "queue item "+string(itemType)+"/"+id+" not found")
	}
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "record failure", err)
	}
	return attempts, nil
}

// Requeue deletes and re-adds (type, id) with zero attempts, keeping its payload.
func (q *Queue) Requeue(ctx context.Context, itemType ItemType, id string) error {
	q.mu.Lock()
	ok, err := q.store.ResetQueueItem(ctx, string(itemType), id)
	q.mu.Unlock()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "requeue", err)
	}
	if !ok {
		return apperrors.New(apperrors.ErrNotFound, "queue item "+string(itemType)+"/"+id+" not found")
	}

	logging.Info("queue: item requeued", map[string]interface{}{"type": itemType, "id": id})
	return nil
}

// Clear empties the queue. Source records keep their sync flags.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	n, err := q.store.ClearQueue(ctx)
	q.mu.Unlock()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "clear queue", err)
	}

	logging.Info("queue: cleared", map[string]interface{}{"removed": n})
	return nil
}

// Len returns the number of stored items.
func (q *Queue) Len(ctx context.Context) (int, error) {
	recs, err := q.store.ListQueueItems(ctx)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "count queue", err)
	}
	return len(recs), nil
}

// Stats returns counts by eligibility and type.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	recs, err := q.store.ListQueueItems(ctx)
	if err != nil {
		return Stats{}, apperrors.Wrap(apperrors.ErrStorage, "queue stats", err)
	}

	stats := Stats{ByType: make(map[ItemType]int)}
	for _, rec := range recs {
		stats.Total++
		stats.ByType[ItemType(rec.Type)]++
		if rec.Attempts < q.maxAttempts {
			stats.Eligible++
		} else {
			stats.Dead++
		}
	}
	return stats, nil
}

func fromRecord(rec *models.QueueRecord) (Item, error) {
	payload, err := DecodePayload(ItemType(rec.Type), rec.Payload)
	if err != nil {
		return Item{}, apperrors.Wrap(apperrors.ErrStorage,
			fmt.Sprintf("malformed payload for %s/%s", rec.Type, rec.ID), err)
	}
	return Item{
		ID:        rec.ID,
		Type:      ItemType(rec.Type),
		Payload:   payload,
		CreatedAt: models.MillisTime(rec.CreatedAt),
		Attempts:  rec.Attempts,
		LastError: rec.LastError,
		UpdatedAt: models.MillisTime(rec.UpdatedAt),
	}, nil
}

// DecodePayload parses a stored payload body according to its item type.
func DecodePayload(itemType ItemType, data []byte) (Payload, error) {
	switch itemType {
	case TypePhoto:
		var p PhotoPayload
		err := json.Unmarshal(data, &p)
		return p, err
	case TypeOrder:
		var p OrderPayload
		err := json.Unmarshal(data, &p)
		return p, err
	case TypeFloorplan:
		var p FloorplanPayload
		err := json.Unmarshal(data, &p)
		return p, err
	default:
		if !json.Valid(data) {
			return nil, fmt.Errorf("invalid JSON")
		}
		return RawPayload{Type: itemType, Data: append(json.RawMessage(nil), data...)}, nil
	}
}
