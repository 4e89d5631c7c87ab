package utils

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

// GenMessageID returns a new ULID. ULIDs sort by creation time, which keeps
// id-order consistent with append-order for tie-breaking.
func GenMessageID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy)
	return id.String()
}

// GenRequestID returns a new ULID for join-request records.
func GenRequestID() string {
	return GenMessageID()
}

// GenConvID returns a new conversation id.
func GenConvID() string {
	return uuid.NewString()
}

// GenToken returns a random client token used as the reconciliation key for
// provisional messages.
func GenToken() string {
	return uuid.NewString()
}
