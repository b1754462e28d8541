// Package uuid provides unit tests for identifier generation and validation.
package uuid

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNew tests that New() generates valid UUID v4 strings.
func TestNew(t *testing.T) {
	id := New()
	assert.True(t, IsValid(id), "not a v4 uuid: %s", id)
	assert.True(t, IsID(id))
}

// TestNewUniqueness tests that New() generates unique IDs.
func TestNewUniqueness(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		assert.False(t, ids[id], "duplicate UUID generated: %s", id)
		ids[id] = true
	}
}

// TestNewOrdered verifies v7 ids are accepted and sort in generation order.
func TestNewOrdered(t *testing.T) {
	var ids []string
	for i := 0; i < 50; i++ {
		ids = append(ids, NewOrdered())
	}

	for _, id := range ids {
		assert.True(t, IsID(id), "not a valid id: %s", id)
		assert.False(t, IsValid(id), "v7 id should not match the v4 pattern: %s", id)
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

// TestIsValid tests v4 format validation.
func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		uuid string
		want bool
	}{
		{"valid UUID v4", "f47ac10b-58cc-4372-a567-0e02b2c3d479", true},
		{"valid UUID v4 uppercase", "6BA7B810-9DAD-41D1-80B4-00C04FD430C8", true},
		{"empty string", "", false},
		{"too short", "f47ac10b-58cc-4372-a567", false},
		{"wrong version", "f47ac10b-58cc-1372-a567-0e02b2c3d479", false},
		{"wrong variant", "f47ac10b-58cc-4372-c567-0e02b2c3d479", false},
		{"no dashes", "f47ac10b58cc4372a5670e02b2c3d479", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.uuid))
		})
	}
}

// TestValidate verifies error reporting for bad ids.
func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(New()))
	assert.NoError(t, Validate(NewOrdered()))
	assert.Error(t, Validate("p1"))
	assert.Error(t, Validate("f47ac10b58cc4372a5670e02b2c3d479"))
}
