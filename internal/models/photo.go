package models

import "time"

// PhotoState tracks the two-phase save of a captured photo.
type PhotoState string

const (
	// PhotoStatePending rows reference a temp file and are discarded by crash recovery.
	PhotoStatePending   PhotoState = "pending"
	PhotoStateCommitted PhotoState = "committed"
)

// Photo is an entry in the captured photo index.
type Photo struct {
	ID        UUID              `db:"id" json:"id"`
	Path      string            `db:"path" json:"uri"`
	Category  string            `db:"category" json:"type"` // exterior, interior, detail, floorplan...
	Metadata  map[string]string `db:"metadata" json:"metadata,omitempty"`
	Uploaded  bool              `db:"uploaded" json:"uploaded"`
	State     PhotoState        `db:"state" json:"state"`
	Width     int               `db:"width" json:"width,omitempty"`
	Height    int               `db:"height" json:"height,omitempty"`
	Format    string            `db:"format" json:"format,omitempty"`
	SizeBytes int64             `db:"size_bytes" json:"size_bytes"`
	CreatedAt int64             `db:"created_at" json:"timestamp"`
	UpdatedAt int64             `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Photo.
func (Photo) TableName() string {
	return "photos"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (p *Photo) CreatedAtTime() time.Time {
	return MillisTime(p.CreatedAt)
}

// Committed reports whether the photo file reached its final location.
func (p *Photo) Committed() bool {
	return p.State == PhotoStateCommitted
}
