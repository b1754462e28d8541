// Package notify keeps the local notification history and delivers notifications.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/logging"
	"github.com/propsnap/backend/internal/models"
	"github.com/propsnap/backend/internal/uuid"
)

// Storage keys.
const (
	HistoryKey     = "notifications.history"
	PreferencesKey = "notifications.preferences"
)

// MaxHistory is the number of notifications kept.
const MaxHistory = 100

// Store is the key-value storage the manager persists to.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Deliverer presents a notification to the user. It returns an error with code
// PERMISSION_DENIED when the platform refuses to show notifications.
type Deliverer interface {
	Deliver(ctx context.Context, n models.Notification) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, n models.Notification) error

// Deliver calls f.
func (f DelivererFunc) Deliver(ctx context.Context, n models.Notification) error {
	return f(ctx, n)
}

// Manager stores notification history and preferences and hands notifications to a Deliverer.
type Manager struct {
	store     Store
	deliverer Deliverer
	mu        sync.Mutex
}

// NewManager creates a Manager. deliverer may be nil, in which case notifications are
// only recorded.
func NewManager(store Store, deliverer Deliverer) *Manager {
	return &Manager{store: store, deliverer: deliverer}
}

// SetDeliverer replaces the deliverer.
func (m *Manager) SetDeliverer(d Deliverer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliverer = d
}

// SendLocal records and delivers a notification, returning its id. It returns "" when the
// category is muted or the platform denied notification permission.
func (m *Manager) SendLocal(ctx context.Context, title, body, category string, data map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefs, err := m.preferences(ctx)
	if err != nil {
		return "", err
	}
	if !prefs.Enabled(category) {
		logging.Debug("Notification category disabled", map[string]interface{}{"category": category})
		return "", nil
	}

	n := models.Notification{
		ID:        uuid.New(),
		Title:     title,
		Body:      body,
		Category:  category,
		Data:      data,
		CreatedAt: time.Now().UnixMilli(),
	}

	if m.deliverer != nil {
		if err := m.deliverer.Deliver(ctx, n); err != nil {
			if apperrors.Is(err, apperrors.ErrPermission) {
				logging.Warn("Notification permission denied", map[string]interface{}{"title": title})
				return "", nil
			}
			logging.Warn("Failed to deliver notification", map[string]interface{}{
				"title": title,
				"error": err.Error(),
			})
		}
	}

	history, err := m.history(ctx)
	if err != nil {
		return "", err
	}
	history = append([]models.Notification{n}, history...)
	if len(history) > MaxHistory {
		history = history[:MaxHistory]
	}
	if err := m.saveHistory(ctx, history); err != nil {
		return "", err
	}
	return n.ID, nil
}

// List returns the history, newest first.
func (m *Manager) List(ctx context.Context) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history(ctx)
}

// MarkRead marks one notification read.
func (m *Manager) MarkRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	history, err := m.history(ctx)
	if err != nil {
		return err
	}
	for i := range history {
		if history[i].ID == id {
			if history[i].Read {
				return nil
			}
			history[i].Read = true
			return m.saveHistory(ctx, history)
		}
	}
	return apperrors.New(apperrors.ErrNotFound, "notification not found: "+id)
}

// MarkAllRead marks every notification read.
func (m *Manager) MarkAllRead(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	history, err := m.history(ctx)
	if err != nil {
		return err
	}
	changed := false
	for i := range history {
		if !history[i].Read {
			history[i].Read = true
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return m.saveHistory(ctx, history)
}

// UnreadCount returns the number of unread notifications.
func (m *Manager) UnreadCount(ctx context.Context) (int, error) {
	history, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range history {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

// Clear deletes the history. Preferences are kept.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Remove(ctx, HistoryKey); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to clear notifications", err)
	}
	return nil
}

// PruneRead removes read notifications created before cutoff and returns how many
// were removed.
func (m *Manager) PruneRead(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history, err := m.history(ctx)
	if err != nil {
		return 0, err
	}
	limit := cutoff.UnixMilli()
	kept := history[:0]
	for _, n := range history {
		if n.Read && n.CreatedAt < limit {
			continue
		}
		kept = append(kept, n)
	}
	removed := len(history) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := m.saveHistory(ctx, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// Preferences returns the category preferences with defaults filled in.
func (m *Manager) Preferences(ctx context.Context) (models.NotificationPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preferences(ctx)
}

// SetPreference enables or disables a category.
func (m *Manager) SetPreference(ctx context.Context, category string, enabled bool) error {
	if category == "" {
		return apperrors.New(apperrors.ErrInvalid, "category is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prefs, err := m.preferences(ctx)
	if err != nil {
		return err
	}
	prefs[category] = enabled

	data, err := json.Marshal(prefs)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to encode preferences", err)
	}
	if err := m.store.Set(ctx, PreferencesKey, string(data)); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to save preferences", err)
	}
	return nil
}

func (m *Manager) preferences(ctx context.Context) (models.NotificationPreferences, error) {
	prefs := models.DefaultNotificationPreferences()

	raw, ok, err := m.store.Get(ctx, PreferencesKey)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read preferences", err)
	}
	if !ok {
		return prefs, nil
	}

	var stored models.NotificationPreferences
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "malformed notification preferences", err)
	}
	for k, v := range stored {
		prefs[k] = v
	}
	return prefs, nil
}

func (m *Manager) history(ctx context.Context) ([]models.Notification, error) {
	raw, ok, err := m.store.Get(ctx, HistoryKey)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read notifications", err)
	}
	if !ok {
		return []models.Notification{}, nil
	}

	var history []models.Notification
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "malformed notification history", err)
	}
	if history == nil {
		history = []models.Notification{}
	}
	return history, nil
}

func (m *Manager) saveHistory(ctx context.Context, history []models.Notification) error {
	data, err := json.Marshal(history)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to encode notifications", err)
	}
	if err := m.store.Set(ctx, HistoryKey, string(data)); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to save notifications", err)
	}
	return nil
}
