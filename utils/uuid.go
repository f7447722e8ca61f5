package utils

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// GenerateID returns a new unique identifier string
func GenerateID() string {
	return uuid.New().String()
}

// GenerateListingID returns a lexicographically sortable identifier for listings.
// ulid.Make is safe for concurrent use and monotonic within a millisecond.
func GenerateListingID() string {
	return ulid.Make().String()
}
