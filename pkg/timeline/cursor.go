package timeline

import (
	"context"

	"trellis/pkg/models"
)

// PageSize is the backward-read window. A page shorter than this is treated
// as terminal even if the store disagrees.
const PageSize = 10

// Cursor tracks backward pagination over one conversation's log. Not
// self-synchronized; the owning Session guards state and coalesces
// concurrent loads.
type Cursor struct {
	convID   string
	pageSize int

	cursor    string
	exhausted bool
	inflight  bool
}

// NewCursor builds a cursor starting at the newest entry. pageSize <= 0
// falls back to PageSize.
func NewCursor(convID string, pageSize int) *Cursor {
	if pageSize <= 0 {
		pageSize = PageSize
	}
	return &Cursor{convID: convID, pageSize: pageSize}
}

// Exhausted reports whether the history has been fully read.
func (c *Cursor) Exhausted() bool { return c.exhausted }

// begin marks a load in flight. Returns false when a load is already
// outstanding or the history is exhausted, in which case the caller must
// not issue a store read.
func (c *Cursor) begin() bool {
	if c.exhausted || c.inflight {
		return false
	}
	c.inflight = true
	return true
}

// fetch performs the backward read. Called without the session lock held so
// a slow page never stalls live deliveries.
func (c *Cursor) fetch(ctx context.Context, store EventStore) ([]models.Message, string, bool, error) {
	return store.ReadBackward(ctx, c.convID, c.cursor, c.pageSize)
}

// complete folds a finished read back into cursor state. A short page is
// the exhaustion signal regardless of the store's own flag.
func (c *Cursor) complete(count int, nextCursor string) {
	c.inflight = false
	c.cursor = nextCursor
	if count < c.pageSize {
		c.exhausted = true
	}
}

// abort clears the in-flight mark after a failed or abandoned read.
func (c *Cursor) abort() {
	c.inflight = false
}
