package models

import "encoding/json"

// QueueRecord is the persisted form of an upload queue entry. (Type, ID) is the primary key.
type QueueRecord struct {
	Type      string          `db:"item_type" json:"type"` // photo, order, floorplan
	ID        string          `db:"item_id" json:"id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	Attempts  int             `db:"attempts" json:"attempts"`
	LastError string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt int64           `db:"created_at" json:"created_at"`
	UpdatedAt int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for QueueRecord.
func (QueueRecord) TableName() string {
	return "upload_queue"
}
