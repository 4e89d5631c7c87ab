package models

// MediaKind discriminates media attachments on a message.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaRef points at an uploaded (or not-yet-uploaded) media object. URL may
// hold a local placeholder reference until the uploader swaps in the remote
// URL; the swap never changes the owning message's identity.
type MediaRef struct {
	Kind MediaKind `json:"kind"`
	URL  string    `json:"url"`
	// Local marks a client-side placeholder URL awaiting upload. Never
	// persisted.
	Local bool `json:"-"`
	// Video-only fields.
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
}

// Reaction is one user's reaction on a message. The (User, Emoji) pair is
// unique per message; the slice keeps first-seen order so reaction groups
// render deterministically.
type Reaction struct {
	User  string `json:"user"`
	Emoji string `json:"emoji"`
}

// Message is a single entry in a conversation's append-only log.
type Message struct {
	ID   string `json:"id"`
	Conv string `json:"conv"`
	// Sender is empty for system messages.
	Sender string     `json:"sender,omitempty"`
	Body   string     `json:"body,omitempty"`
	Media  []MediaRef `json:"media,omitempty"`
	// CreatedAt is a store-assigned nanosecond timestamp, monotonic per
	// conversation.
	CreatedAt int64 `json:"created_at"`
	// Seq is the store-assigned tie-break for entries sharing a nanosecond
	// timestamp; together with CreatedAt it addresses the log entry.
	Seq uint64 `json:"seq,omitempty"`
	// ReplyTo is a weak reference; the target may be absent.
	ReplyTo   string     `json:"reply_to,omitempty"`
	Reactions []Reaction `json:"reactions,omitempty"`
	Mentions  []string   `json:"mentions,omitempty"`
	// ListingID links an embedded marketplace listing card. Opaque here;
	// summaries are fetched by the renderer via MarketplaceAPI.
	ListingID string `json:"listing_id,omitempty"`
	EditedAt  int64  `json:"edited_at,omitempty"`
	// EditHistory holds prior bodies, oldest first.
	EditHistory []string `json:"edit_history,omitempty"`

	// Provisional marks a client-local entry awaiting store confirmation.
	// Never persisted.
	Provisional bool `json:"-"`
	// FailedSend marks a provisional entry whose append failed or timed out.
	// Never persisted.
	FailedSend bool `json:"-"`
}

// AddReaction records a reaction, enforcing (user, emoji) uniqueness. A user
// may hold several distinct emoji on one message but each at most once.
// Returns false if the pair was already present.
func (m *Message) AddReaction(user, emoji string) bool {
	for _, r := range m.Reactions {
		if r.User == user && r.Emoji == emoji {
			return false
		}
	}
	m.Reactions = append(m.Reactions, Reaction{User: user, Emoji: emoji})
	return true
}

// RemoveReaction removes a (user, emoji) pair. Returns false if absent.
func (m *Message) RemoveReaction(user, emoji string) bool {
	for i, r := range m.Reactions {
		if r.User == user && r.Emoji == emoji {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return true
		}
	}
	return false
}
