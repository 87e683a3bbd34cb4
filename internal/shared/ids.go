package shared

import "github.com/google/uuid"

// NewID returns a random identifier with the given prefix, e.g. "rly_1f0c...".
func NewID(prefix string) string {
	return prefix + uuid.NewString()
}
