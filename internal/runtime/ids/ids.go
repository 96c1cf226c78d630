package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRequestID returns a random 128-bit request identifier rendered as a
// UUIDv4 string. Used when an inbound message carries no req_id header.
func NewRequestID() string {
	return uuid.NewString()
}

// NewConsumerTag builds a broker consumer tag from the routing key and a
// time-sortable ULID suffix, so parallel consumers of the same queue remain
// distinguishable in broker tooling.
func NewConsumerTag(routingKey string) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return routingKey + "-" + id.String()
}
