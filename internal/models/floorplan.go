package models

import (
	"fmt"
	"strings"
)

// Room is a single measured room of a floorplan, in meters.
type Room struct {
	Name    string  `json:"name"`
	WidthM  float64 `json:"width_m"`
	LengthM float64 `json:"length_m"`
}

// Area returns the room area in square meters.
func (r Room) Area() float64 {
	return r.WidthM * r.LengthM
}

// Floorplan is a sketched floorplan captured on-site.
type Floorplan struct {
	ID              UUID   `db:"id" json:"id"`
	PropertyAddress string `db:"property_address" json:"property_address"`
	Rooms           []Room `db:"rooms" json:"rooms"`
	Notes           string `db:"notes" json:"notes,omitempty"`
	Synced          bool   `db:"synced" json:"synced"`
	CreatedAt       int64  `db:"created_at" json:"created_at"`
	UpdatedAt       int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Floorplan.
func (Floorplan) TableName() string {
	return "floorplans"
}

// TotalArea sums the room areas.
func (f *Floorplan) TotalArea() float64 {
	var total float64
	for _, r := range f.Rooms {
		total += r.Area()
	}
	return total
}

// Validate rejects floorplans without rooms or with non-positive dimensions.
func (f *Floorplan) Validate() error {
	if strings.TrimSpace(f.PropertyAddress) == "" {
		return fmt.Errorf("property_address is required")
	}
	if len(f.Rooms) == 0 {
		return fmt.Errorf("at least one room is required")
	}
	for i, r := range f.Rooms {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("room %d: name is required", i)
		}
		if r.WidthM <= 0 || r.LengthM <= 0 {
			return fmt.Errorf("room %q: dimensions must be positive", r.Name)
		}
	}
	return nil
}
