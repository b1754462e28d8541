// Package uuid provides identifier generation for queue items and captured records.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// UUID v4 format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
// where y is one of [8, 9, a, b] (variant bits)
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// NewOrdered generates a time-ordered UUID v7. Captured photos use it so that
// file names sort in capture order. Falls back to v4 if the clock source fails.
func NewOrdered() string {
	id, err := uuid.NewV7()
	if err != nil {
		return New()
	}
	return id.String()
}

// IsValid checks if a string is a valid UUID v4.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// IsID reports whether s parses as any RFC 4122 UUID (v4 or v7 ids are both accepted
// as record identifiers).
func IsID(s string) bool {
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return len(s) == 36 && (id.Version() == 4 || id.Version() == 7)
}

// Validate returns an error if the string is not a usable record identifier.
func Validate(s string) error {
	if !IsID(s) {
		return fmt.Errorf("invalid record id: %q", s)
	}
	return nil
}
