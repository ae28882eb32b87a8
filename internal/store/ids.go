// ABOUTME: ID generation helper for store entities
// ABOUTME: All persisted entities get UUID string identifiers

package store

import "github.com/google/uuid"

// newID returns a fresh UUID string for a persisted entity.
func newID() string {
	return uuid.New().String()
}
