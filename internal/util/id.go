package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string, used for request ids and object keys.
func NewID() string {
	return uuid.NewString()
}
