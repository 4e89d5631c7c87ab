package timeline

import (
	"trellis/pkg/models"
	"trellis/pkg/telemetry"
	"trellis/pkg/utils"
)

// MatchFunc decides whether a confirmed message is the server echo of a
// provisional entry. The default compares sender, body, and media shape;
// URLs are ignored because local refs are placeholders until upload
// finishes. Pluggable so deployments can move to content-addressed
// idempotency tokens without touching the buffer.
type MatchFunc func(provisional, confirmed models.Message) bool

// DefaultMatch matches on sender, body, and media count/kind.
func DefaultMatch(p, c models.Message) bool {
	if p.Sender != c.Sender || p.Body != c.Body {
		return false
	}
	if len(p.Media) != len(c.Media) {
		return false
	}
	for i := range p.Media {
		if p.Media[i].Kind != c.Media[i].Kind {
			return false
		}
	}
	return true
}

// entry pairs a message with its reconciliation key: a client token while
// provisional, the store id once confirmed.
type entry struct {
	key string
	msg models.Message
}

// Buffer is the canonical in-memory timeline: an ordered newest-first
// sequence with a reconciliation-key index guaranteeing exactly one visible
// entry per logical message. Not self-synchronized; the owning Session
// serializes all mutations.
type Buffer struct {
	entries []*entry          // newest-first
	index   map[string]*entry // reconciliation key -> entry
	match   MatchFunc
}

// NewBuffer builds an empty buffer. A nil match falls back to DefaultMatch.
func NewBuffer(match MatchFunc) *Buffer {
	if match == nil {
		match = DefaultMatch
	}
	return &Buffer{index: make(map[string]*entry), match: match}
}

// InsertProvisional prepends a provisional entry and returns its token so a
// failed send can target it later.
func (b *Buffer) InsertProvisional(draft models.Message) string {
	token := utils.GenToken()
	draft.Provisional = true
	draft.FailedSend = false
	e := &entry{key: token, msg: draft}
	b.entries = append([]*entry{e}, b.entries...)
	b.index[token] = e
	return token
}

// ObserveConfirmed applies a store-confirmed message. Duplicate delivery of
// an already-visible id is a no-op; a matching provisional entry is replaced
// in place; otherwise the message is prepended as new.
func (b *Buffer) ObserveConfirmed(msg models.Message) {
	if _, ok := b.index[msg.ID]; ok {
		telemetry.ReconcileDuplicates.Inc()
		return
	}
	// Scan oldest-first so identical in-flight sends pair with echoes in
	// store order: the first append confirmed claims the first provisional
	// inserted.
	for i := len(b.entries) - 1; i >= 0; i-- {
		e := b.entries[i]
		if !e.msg.Provisional || e.msg.FailedSend {
			continue
		}
		if b.match(e.msg, msg) {
			b.rekey(e, msg)
			telemetry.ReconcileReplaced.Inc()
			return
		}
	}
	e := &entry{key: msg.ID, msg: msg}
	b.entries = append([]*entry{e}, b.entries...)
	b.index[msg.ID] = e
}

// Confirm resolves the provisional entry for token with its confirmed form,
// keeping its position. If the tail already replaced the entry (the echo won
// the race), this degrades to a duplicate-safe ObserveConfirmed.
func (b *Buffer) Confirm(token string, msg models.Message) {
	e, ok := b.index[token]
	if !ok {
		b.ObserveConfirmed(msg)
		return
	}
	// The echo may have already confirmed this id onto a different entry:
	// another matching provisional, or a fresh prepend when this one had
	// been marked failed. Rekeying would leave the id visible twice, so the
	// token's entry is dropped instead.
	if other, claimed := b.index[msg.ID]; claimed && other != e {
		b.Remove(token)
		telemetry.ReconcileDuplicates.Inc()
		return
	}
	b.rekey(e, msg)
	telemetry.ReconcileReplaced.Inc()
}

func (b *Buffer) rekey(e *entry, msg models.Message) {
	delete(b.index, e.key)
	e.key = msg.ID
	e.msg = msg
	e.msg.Provisional = false
	e.msg.FailedSend = false
	b.index[msg.ID] = e
}

// MarkFailed flags the provisional entry for token as failed-to-send. The
// entry stays visible so the UI can offer a retry. Returns false if the
// token no longer names a provisional entry.
func (b *Buffer) MarkFailed(token string) bool {
	e, ok := b.index[token]
	if !ok || !e.msg.Provisional {
		return false
	}
	e.msg.FailedSend = true
	telemetry.SendFailures.Inc()
	return true
}

// Remove drops the entry for token (used when a failed send is re-issued).
func (b *Buffer) Remove(token string) bool {
	e, ok := b.index[token]
	if !ok {
		return false
	}
	delete(b.index, token)
	for i, cur := range b.entries {
		if cur == e {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			break
		}
	}
	return true
}

// AppendHistory adds an older page at the tail end, deduplicating by id
// against anything already visible. Existing entries never move.
func (b *Buffer) AppendHistory(msgs []models.Message) int {
	added := 0
	for _, m := range msgs {
		if _, ok := b.index[m.ID]; ok {
			continue
		}
		e := &entry{key: m.ID, msg: m}
		b.entries = append(b.entries, e)
		b.index[m.ID] = e
		added++
	}
	return added
}

// ResolveMediaURL swaps a media placeholder for its uploaded remote URL in
// place. The entry's reconciliation key is untouched.
func (b *Buffer) ResolveMediaURL(key string, idx int, remoteURL string) bool {
	e, ok := b.index[key]
	if !ok || idx < 0 || idx >= len(e.msg.Media) {
		return false
	}
	e.msg.Media[idx].URL = remoteURL
	e.msg.Media[idx].Local = false
	return true
}

// Get returns the message for a reconciliation key.
func (b *Buffer) Get(key string) (models.Message, bool) {
	e, ok := b.index[key]
	if !ok {
		return models.Message{}, false
	}
	return e.msg, true
}

// Snapshot copies the visible timeline, newest-first.
func (b *Buffer) Snapshot() []models.Message {
	out := make([]models.Message, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.msg
	}
	return out
}

// Len returns the number of visible entries.
func (b *Buffer) Len() int { return len(b.entries) }
