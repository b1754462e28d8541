// Package sync drains the upload queue to the remote API.
package sync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/logging"
	"github.com/propsnap/backend/internal/models"
	"github.com/propsnap/backend/internal/sync/netstatus"
	"github.com/propsnap/backend/internal/sync/queue"
)

// ErrOffline is returned by Drain when connectivity is unavailable at the start of a pass.
var ErrOffline = apperrors.New(apperrors.ErrNetwork, "device is offline")

const maxErrorHistory = 50

// Engine delivers eligible queue items one at a time, oldest first.
type Engine struct {
	queue     *queue.Queue
	monitor   netstatus.Monitor
	notifier  Notifier
	uploaders map[queue.ItemType]Uploader

	mu           sync.Mutex
	isProcessing bool
	lastDrain    *time.Time
	lastResult   *DrainResult
	lastErr      error
	handler      SyncEventHandler

	errMu        sync.RWMutex
	errorHistory []SyncErrorEntry
}

// NewEngine creates an Engine. notifier may be nil.
func NewEngine(q *queue.Queue, monitor netstatus.Monitor, notifier Notifier) *Engine {
	return &Engine{
		queue:     q,
		monitor:   monitor,
		notifier:  notifier,
		uploaders: make(map[queue.ItemType]Uploader),
	}
}

// Register sets the uploader for an item type, replacing any previous one.
func (e *Engine) Register(itemType queue.ItemType, u Uploader) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.uploaders[itemType] = u
}

// SetEventHandler sets the handler for sync events. nil disables events.
func (e *Engine) SetEventHandler(handler SyncEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// IsProcessing reports whether a drain is running.
func (e *Engine) IsProcessing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isProcessing
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() StatusReport {
	e.mu.Lock()
	report := StatusReport{Status: SyncStatusIdle}
	if e.isProcessing {
		report.Status = SyncStatusDraining
	}
	if e.lastDrain != nil {
		t := *e.lastDrain
		report.LastDrain = &t
	}
	if e.lastResult != nil {
		r := *e.lastResult
		report.LastResult = &r
	}
	if e.lastErr != nil {
		report.LastError = e.lastErr.Error()
	}
	e.mu.Unlock()

	report.Errors = e.GetErrorHistory()
	return report
}

// Drain delivers eligible items in creation order until the queue is exhausted,
// connectivity is lost or ctx is cancelled. A call made while another drain is running
// returns a result with Skipped set and does nothing.
func (e *Engine) Drain(ctx context.Context) (*DrainResult, error) {
	e.mu.Lock()
	if e.isProcessing {
		e.mu.Unlock()
		logging.Debug("Drain already in progress, skipping", nil)
		return &DrainResult{Skipped: true}, nil
	}
	e.isProcessing = true
	e.mu.Unlock()

	result := &DrainResult{StartTime: time.Now()}
	var drainErr error

	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)

		e.mu.Lock()
		e.isProcessing = false
		e.lastDrain = &result.EndTime
		e.lastResult = result
		e.lastErr = drainErr
		e.mu.Unlock()
	}()

	status, err := e.monitor.Current(ctx)
	if err != nil || !status.Online() {
		drainErr = ErrOffline
		return result, drainErr
	}

	items, err := e.queue.Eligible(ctx)
	if err != nil {
		drainErr = err
		return result, drainErr
	}

	e.emitEvent(SyncEvent{Type: SyncEventStarted, Attempts: len(items)})
	logging.Info("Drain started", map[string]interface{}{"eligible": len(items)})

	for i, item := range items {
		if ctx.Err() != nil {
			result.Interrupted = true
			result.Remaining = len(items) - i
			break
		}

		if err := e.process(ctx, item, result); err != nil {
			drainErr = err
			result.Remaining = len(items) - i - 1
			break
		}

		if i < len(items)-1 {
			if s, err := e.monitor.Current(ctx); err != nil || !s.Online() {
				logging.Info("Connectivity lost during drain", map[string]interface{}{"remaining": len(items) - i - 1})
				result.Interrupted = true
				result.Remaining = len(items) - i - 1
				break
			}
		}
	}

	e.emitEvent(SyncEvent{Type: SyncEventCompleted, Result: result})
	logging.Info("Drain completed", map[string]interface{}{
		"attempted":   result.Attempted,
		"succeeded":   result.Succeeded,
		"failed":      result.Failed,
		"gave_up":     result.GaveUp,
		"interrupted": result.Interrupted,
	})
	return result, drainErr
}

// process delivers one item. Delivery errors are recorded on the item; only storage
// failures are returned.
func (e *Engine) process(ctx context.Context, item queue.Item, result *DrainResult) error {
	result.Attempted++

	deliverErr := e.deliver(ctx, item)

	// The outcome of a finished upload is persisted even if ctx was cancelled meanwhile.
	persistCtx := context.WithoutCancel(ctx)

	if deliverErr == nil {
		completed, err := e.queue.Complete(persistCtx, item)
		if err != nil {
			logging.ErrorWithCode("Failed to remove delivered item", string(apperrors.ErrStorage), err,
				map[string]interface{}{"type": item.Type, "id": item.ID})
			return err
		}
		result.Succeeded++
		if !completed {
			// Removed or re-enqueued while uploading; a newer version stays queued.
			logging.Debug("Delivered item changed during upload", map[string]interface{}{"type": item.Type, "id": item.ID})
			return nil
		}
		e.emitEvent(SyncEvent{Type: SyncEventSynced, ItemType: string(item.Type), ItemID: item.ID})
		e.notifySuccess(persistCtx, item)
		return nil
	}

	result.Failed++
	e.recordError(item, deliverErr)

	attempts, err := e.queue.RecordFailure(persistCtx, item.Type, item.ID, deliverErr)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		logging.Debug("Failed item was removed during upload", map[string]interface{}{"type": item.Type, "id": item.ID})
		return nil
	}
	if err != nil {
		logging.ErrorWithCode("Failed to record delivery failure", string(apperrors.ErrStorage), err,
			map[string]interface{}{"type": item.Type, "id": item.ID})
		return err
	}

	logging.Warn("Delivery failed", map[string]interface{}{
		"type":     item.Type,
		"id":       item.ID,
		"attempts": attempts,
		"error":    deliverErr.Error(),
	})
	e.emitEvent(SyncEvent{
		Type:     SyncEventFailed,
		ItemType: string(item.Type),
		ItemID:   item.ID,
		Attempts: attempts,
		Error:    deliverErr.Error(),
	})

	if attempts == e.queue.MaxAttempts() {
		result.GaveUp++
		e.emitEvent(SyncEvent{Type: SyncEventGaveUp, ItemType: string(item.Type), ItemID: item.ID, Attempts: attempts})
		e.notify(persistCtx, "Sync Failed",
			fmt.Sprintf("Could not %s after %d attempts. Retry it from the upload queue.", actionName(item.Type), attempts),
			models.CategorySync, map[string]string{"type": string(item.Type), "id": item.ID})
	}
	return nil
}

// deliver runs the registered uploader, converting panics into errors.
func (e *Engine) deliver(ctx context.Context, item queue.Item) (err error) {
	e.mu.Lock()
	u, ok := e.uploaders[item.Type]
	e.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.ErrNoUploader, "no uploader registered for type "+string(item.Type))
	}

	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.ErrUploadFailed, fmt.Sprintf("uploader panic: %v", r))
		}
	}()
	return u.Upload(ctx, item)
}

func (e *Engine) notifySuccess(ctx context.Context, item queue.Item) {
	switch p := item.Payload.(type) {
	case queue.OrderPayload:
		body := "Your order was submitted."
		if addr := strings.TrimSpace(p.Order.PropertyAddress); addr != "" {
			body = "Your order for " + addr + " was submitted."
		}
		e.notify(ctx, "Order Submitted", body, models.CategoryOrders, map[string]string{"order_id": item.ID})
	case queue.PhotoPayload:
		e.notify(ctx, "Photo Uploaded", "A captured photo finished uploading.", models.CategorySync,
			map[string]string{"photo_id": item.ID})
	}
}

func (e *Engine) notify(ctx context.Context, title, body, category string, data map[string]string) {
	if e.notifier == nil {
		return
	}
	if _, err := e.notifier.SendLocal(ctx, title, body, category, data); err != nil {
		logging.Warn("Failed to send notification", map[string]interface{}{"title": title, "error": err.Error()})
	}
}

func actionName(t queue.ItemType) string {
	switch t {
	case queue.TypePhoto:
		return "upload photo"
	case queue.TypeOrder:
		return "submit order"
	case queue.TypeFloorplan:
		return "upload floorplan"
	default:
		return "sync " + string(t)
	}
}

// emitEvent delivers an event to the handler, if any.
func (e *Engine) emitEvent(event SyncEvent) {
	e.mu.Lock()
	handler := e.handler
	e.mu.Unlock()

	if handler == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	handler.OnSyncEvent(event)
}

// recordError appends to the bounded error history.
func (e *Engine) recordError(item queue.Item, err error) {
	e.errMu.Lock()
	defer e.errMu.Unlock()

	e.errorHistory = append(e.errorHistory, SyncErrorEntry{
		ItemType:  string(item.Type),
		ItemID:    item.ID,
		Error:     err.Error(),
		Timestamp: time.Now(),
	})
	if len(e.errorHistory) > maxErrorHistory {
		e.errorHistory = e.errorHistory[len(e.errorHistory)-maxErrorHistory:]
	}
}

// GetErrorHistory returns a copy of recent delivery errors, oldest first.
func (e *Engine) GetErrorHistory() []SyncErrorEntry {
	e.errMu.RLock()
	defer e.errMu.RUnlock()

	history := make([]SyncErrorEntry, len(e.errorHistory))
	copy(history, e.errorHistory)
	return history
}

// ClearErrorHistory empties the error history.
func (e *Engine) ClearErrorHistory() {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	e.errorHistory = nil
}
