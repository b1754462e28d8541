package sync

import (
	"context"
	"time"

	"github.com/propsnap/backend/internal/sync/queue"
)

// Uploader delivers one queue item to the remote API.
type Uploader interface {
	Upload(ctx context.Context, item queue.Item) error
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, item queue.Item) error

// Upload calls f.
func (f UploaderFunc) Upload(ctx context.Context, item queue.Item) error {
	return f(ctx, item)
}

// Notifier posts user-visible notifications. *notify.Manager implements it.
type Notifier interface {
	SendLocal(ctx context.Context, title, body, category string, data map[string]string) (string, error)
}

// SyncEventType identifies a drain lifecycle event.
type SyncEventType string

const (
	SyncEventStarted   SyncEventType = "sync.started"
	SyncEventSynced    SyncEventType = "sync.item_synced"
	SyncEventFailed    SyncEventType = "sync.item_failed"
	SyncEventGaveUp    SyncEventType = "sync.item_gave_up"
	SyncEventCompleted SyncEventType = "sync.completed"
)

// SyncEvent is emitted to the registered SyncEventHandler during a drain.
type SyncEvent struct {
	Type      SyncEventType `json:"type"`
	ItemType  string        `json:"item_type,omitempty"`
	ItemID    string        `json:"item_id,omitempty"`
	Attempts  int           `json:"attempts,omitempty"`
	Error     string        `json:"error,omitempty"`
	Result    *DrainResult  `json:"result,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// SyncEventHandler receives sync events. Handlers run on the draining goroutine and
// must not block.
type SyncEventHandler interface {
	OnSyncEvent(event SyncEvent)
}

// SyncEventHandlerFunc adapts a function to SyncEventHandler.
type SyncEventHandlerFunc func(event SyncEvent)

// OnSyncEvent calls f.
func (f SyncEventHandlerFunc) OnSyncEvent(event SyncEvent) {
	f(event)
}

// DrainResult reports the outcome of one drain pass.
type DrainResult struct {
	Attempted   int           `json:"attempted"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	GaveUp      int           `json:"gave_up"`
	Remaining   int           `json:"remaining"` // eligible items left unattempted
	Interrupted bool          `json:"interrupted"`
	Skipped     bool          `json:"skipped"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
}

// SyncStatus represents the engine state.
type SyncStatus string

const (
	SyncStatusIdle     SyncStatus = "idle"
	SyncStatusDraining SyncStatus = "draining"
)

// StatusReport is a snapshot of the engine for status endpoints.
type StatusReport struct {
	Status     SyncStatus       `json:"status"`
	LastDrain  *time.Time       `json:"last_drain,omitempty"`
	LastResult *DrainResult     `json:"last_result,omitempty"`
	LastError  string           `json:"last_error,omitempty"`
	Errors     []SyncErrorEntry `json:"recent_errors"`
}

// SyncErrorEntry records a delivery failure.
type SyncErrorEntry struct {
	ItemType  string    `json:"item_type"`
	ItemID    string    `json:"item_id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Drainer is the engine surface the scheduler drives.
type Drainer interface {
	Drain(ctx context.Context) (*DrainResult, error)
	IsProcessing() bool
}
