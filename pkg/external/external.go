// Package external declares the collaborator contracts the chat engine
// consumes but does not implement. Production wiring supplies the
// marketplace app's implementations; tests supply fakes.
package external

import "context"

// AuthProvider yields the identity used for gating decisions and
// provisional-message attribution.
type AuthProvider interface {
	CurrentUserID() string
}

// MediaUploader resolves a local media reference into a remote URL. The
// engine's only contract is that a message's media URL may transition from
// local placeholder to remote URL in place, without changing the message's
// reconciliation key.
type MediaUploader interface {
	Upload(ctx context.Context, localRef string) (remoteURL string, err error)
}

// ListingSummary is the read-only marketplace card embedded in a message
// that carries a listing reference.
type ListingSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	PriceCts int64  `json:"price_cts"`
	ImageURL string `json:"image_url,omitempty"`
	Sold     bool   `json:"sold,omitempty"`
}

// MarketplaceAPI enriches listing references. The engine treats listing ids
// as opaque and neither validates nor caches summaries.
type MarketplaceAPI interface {
	GetListingSummary(ctx context.Context, listingID string) (ListingSummary, error)
}

// StaticAuth is a trivial AuthProvider for a fixed identity, handy at the
// transport edge where the identity arrives per request.
type StaticAuth string

func (s StaticAuth) CurrentUserID() string { return string(s) }
