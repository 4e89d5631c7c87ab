package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trellis/pkg/models"
)

func TestBufferProvisionalReplacedByEcho(t *testing.T) {
	b := NewBuffer(nil)
	token := b.InsertProvisional(models.Message{Sender: "u1", Body: "hello"})
	require.Equal(t, 1, b.Len())

	// The store echo arrives over the tail before the append ack.
	b.ObserveConfirmed(models.Message{ID: "m1", Sender: "u1", Body: "hello"})
	require.Equal(t, 1, b.Len(), "echo must replace, not duplicate")

	got, ok := b.Get("m1")
	require.True(t, ok)
	assert.False(t, got.Provisional)

	// The old token no longer resolves.
	_, ok = b.Get(token)
	assert.False(t, ok)
}

func TestBufferConfirmAfterEchoIsDuplicateSafe(t *testing.T) {
	b := NewBuffer(nil)
	token := b.InsertProvisional(models.Message{Sender: "u1", Body: "hi"})
	confirmed := models.Message{ID: "m1", Sender: "u1", Body: "hi"}

	b.ObserveConfirmed(confirmed) // echo wins the race
	b.Confirm(token, confirmed)   // append ack lands second
	assert.Equal(t, 1, b.Len())
}

func TestBufferTwoIdenticalSendsConfirmDistinctly(t *testing.T) {
	b := NewBuffer(nil)
	draft := models.Message{Sender: "u1", Body: "ping"}
	t1 := b.InsertProvisional(draft)
	t2 := b.InsertProvisional(draft)
	require.Equal(t, 2, b.Len())

	// The echo for the first append lands before its ack. It must claim the
	// first provisional inserted, and the late ack must not rekey the second
	// one onto the same id.
	b.ObserveConfirmed(models.Message{ID: "m1", Sender: "u1", Body: "ping"})
	b.Confirm(t1, models.Message{ID: "m1", Sender: "u1", Body: "ping"})

	require.Equal(t, 2, b.Len())
	var m1Count int
	for _, m := range b.Snapshot() {
		if m.ID == "m1" {
			m1Count++
		}
	}
	assert.Equal(t, 1, m1Count, "one logical message must stay visible exactly once")

	// The second send is still in flight and confirms on its own id.
	second, ok := b.Get(t2)
	require.True(t, ok)
	assert.True(t, second.Provisional)
	b.Confirm(t2, models.Message{ID: "m2", Sender: "u1", Body: "ping"})
	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.NotEqual(t, snap[0].ID, snap[1].ID)
}

func TestBufferLateConfirmOfFailedSendAfterEcho(t *testing.T) {
	b := NewBuffer(nil)
	token := b.InsertProvisional(models.Message{Sender: "u1", Body: "slow"})
	require.True(t, b.MarkFailed(token))

	// The append made it to the store after all: the echo skips the failed
	// entry and prepends, then the straggling ack resolves the token.
	b.ObserveConfirmed(models.Message{ID: "m1", Sender: "u1", Body: "slow"})
	require.Equal(t, 2, b.Len())
	b.Confirm(token, models.Message{ID: "m1", Sender: "u1", Body: "slow"})

	require.Equal(t, 1, b.Len())
	got, ok := b.Get("m1")
	require.True(t, ok)
	assert.False(t, got.Provisional)
	assert.False(t, got.FailedSend)
	_, ok = b.Get(token)
	assert.False(t, ok)
}

func TestBufferEchoClaimsOldestProvisional(t *testing.T) {
	b := NewBuffer(nil)
	draft := models.Message{Sender: "u1", Body: "dup"}
	t1 := b.InsertProvisional(draft)
	t2 := b.InsertProvisional(draft)

	b.ObserveConfirmed(models.Message{ID: "m1", Sender: "u1", Body: "dup"})

	_, ok := b.Get(t1)
	assert.False(t, ok, "the first send inserted pairs with the first id confirmed")
	newer, ok := b.Get(t2)
	require.True(t, ok)
	assert.True(t, newer.Provisional)
}

func TestBufferDuplicateDeliveryIgnored(t *testing.T) {
	b := NewBuffer(nil)
	msg := models.Message{ID: "m1", Sender: "u2", Body: "yo"}
	b.ObserveConfirmed(msg)
	b.ObserveConfirmed(msg)
	assert.Equal(t, 1, b.Len())
}

func TestBufferUnmatchedConfirmedPrepends(t *testing.T) {
	b := NewBuffer(nil)
	b.InsertProvisional(models.Message{Sender: "u1", Body: "mine"})
	b.ObserveConfirmed(models.Message{ID: "m9", Sender: "u2", Body: "theirs"})
	require.Equal(t, 2, b.Len())
	snap := b.Snapshot()
	assert.Equal(t, "m9", snap[0].ID, "confirmed messages from others go to the head")
	assert.True(t, snap[1].Provisional)
}

func TestBufferFailedSendStaysVisibleAndUnmatchable(t *testing.T) {
	b := NewBuffer(nil)
	token := b.InsertProvisional(models.Message{Sender: "u1", Body: "oops"})
	require.True(t, b.MarkFailed(token))

	// A later confirmed message with identical content must not claim the
	// failed entry.
	b.ObserveConfirmed(models.Message{ID: "m2", Sender: "u1", Body: "oops"})
	require.Equal(t, 2, b.Len())

	got, ok := b.Get(token)
	require.True(t, ok)
	assert.True(t, got.FailedSend)
}

func TestBufferMarkFailedOnConfirmedEntryRefused(t *testing.T) {
	b := NewBuffer(nil)
	token := b.InsertProvisional(models.Message{Sender: "u1", Body: "x"})
	b.Confirm(token, models.Message{ID: "m1", Sender: "u1", Body: "x"})
	assert.False(t, b.MarkFailed(token))
	assert.False(t, b.MarkFailed("m1"))
}

func TestBufferAppendHistoryDedupes(t *testing.T) {
	b := NewBuffer(nil)
	b.ObserveConfirmed(models.Message{ID: "m3", Body: "newest"})
	added := b.AppendHistory([]models.Message{
		{ID: "m3", Body: "newest"}, // already visible via tail
		{ID: "m2", Body: "older"},
		{ID: "m1", Body: "oldest"},
	})
	assert.Equal(t, 2, added)
	snap := b.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"m3", "m2", "m1"}, []string{snap[0].ID, snap[1].ID, snap[2].ID})
}

func TestBufferRemove(t *testing.T) {
	b := NewBuffer(nil)
	token := b.InsertProvisional(models.Message{Sender: "u1", Body: "bye"})
	require.True(t, b.Remove(token))
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.Remove(token))
}

func TestBufferResolveMediaURLKeepsKey(t *testing.T) {
	b := NewBuffer(nil)
	token := b.InsertProvisional(models.Message{
		Sender: "u1",
		Media:  []models.MediaRef{{Kind: models.MediaImage, URL: "file:///tmp/x.jpg", Local: true}},
	})
	require.True(t, b.ResolveMediaURL(token, 0, "https://cdn/x.jpg"))
	got, ok := b.Get(token)
	require.True(t, ok)
	assert.Equal(t, "https://cdn/x.jpg", got.Media[0].URL)
	assert.False(t, got.Media[0].Local)
}

func TestDefaultMatchIgnoresMediaURL(t *testing.T) {
	p := models.Message{Sender: "u1", Body: "", Media: []models.MediaRef{{Kind: models.MediaImage, URL: "file:///local", Local: true}}}
	c := models.Message{Sender: "u1", Body: "", Media: []models.MediaRef{{Kind: models.MediaImage, URL: "https://cdn/1"}}}
	assert.True(t, DefaultMatch(p, c))

	c.Media[0].Kind = models.MediaVideo
	assert.False(t, DefaultMatch(p, c))
}
