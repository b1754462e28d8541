// Package models provides data model definitions for the PropSnap capture core.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// UUID is a wrapper around string for record identifier type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// NowMillis returns the current time as unix milliseconds, the timestamp unit used by
// every persisted record.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// MillisTime converts a persisted unix-millisecond timestamp to time.Time.
func MillisTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
