package id

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// GenerateEventID returns a sortable, prefixed event id, e.g. evt_01J...
func GenerateEventID(prefix string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	return prefix + "_" + id.String()
}

// NewRequestID returns a random UUID used to correlate audit records.
func NewRequestID() string {
	return uuid.NewString()
}
