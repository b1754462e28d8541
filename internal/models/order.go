package models

import (
	"fmt"
	"net/mail"
	"strings"
)

// DraftOrder is an editing order composed on-device and submitted through the upload queue.
type DraftOrder struct {
	ID              UUID     `db:"id" json:"id"`
	PropertyAddress string   `db:"property_address" json:"property_address"`
	PackageCode     string   `db:"package_code" json:"package_code"`
	AddOns          []string `db:"add_ons" json:"add_ons,omitempty"`
	PhotoIDs        []string `db:"photo_ids" json:"photo_ids"`
	Notes           string   `db:"notes" json:"notes,omitempty"`
	ContactEmail    string   `db:"contact_email" json:"contact_email,omitempty"`
	Synced          bool     `db:"synced" json:"synced"`
	CreatedAt       int64    `db:"created_at" json:"created_at"`
	UpdatedAt       int64    `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for DraftOrder.
func (DraftOrder) TableName() string {
	return "draft_orders"
}

// Validate checks the fields the remote create-order endpoint requires.
func (o *DraftOrder) Validate() error {
	if strings.TrimSpace(o.PropertyAddress) == "" {
		return fmt.Errorf("property_address is required")
	}
	if strings.TrimSpace(o.PackageCode) == "" {
		return fmt.Errorf("package_code is required")
	}
	if len(o.PhotoIDs) == 0 {
		return fmt.Errorf("at least one photo is required")
	}
	if o.ContactEmail != "" {
		if _, err := mail.ParseAddress(o.ContactEmail); err != nil {
			return fmt.Errorf("contact_email is invalid: %w", err)
		}
	}
	return nil
}
