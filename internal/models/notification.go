package models

// Notification categories. Each can be muted through NotificationPreferences.
const (
	CategoryOrders     = "orders"
	CategorySync       = "sync"
	CategoryPromotions = "promotions"
	CategorySystem     = "system"
)

// Notification is an entry in the local notification history.
type Notification struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Category  string            `json:"category"`
	Data      map[string]string `json:"data,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt int64             `json:"created_at"`
}

// NotificationPreferences maps a category to whether it is delivered.
// Categories missing from the map are enabled.
type NotificationPreferences map[string]bool

// Enabled reports whether notifications of category should be delivered.
func (p NotificationPreferences) Enabled(category string) bool {
	enabled, ok := p[category]
	return !ok || enabled
}

// DefaultNotificationPreferences enables every known category.
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		CategoryOrders:     true,
		CategorySync:       true,
		CategoryPromotions: true,
		CategorySystem:     true,
	}
}
