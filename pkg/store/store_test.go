package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trellis/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func appendN(t *testing.T, s *Store, convID string, n int) []models.Message {
	t.Helper()
	out := make([]models.Message, 0, n)
	for i := 0; i < n; i++ {
		m, err := s.Append(context.Background(), convID, models.Message{
			Sender: "u1",
			Body:   fmt.Sprintf("msg %d", i),
		})
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func TestAppendAssignsIdentity(t *testing.T) {
	s := openTestStore(t)
	m, err := s.Append(context.Background(), "c1", models.Message{Sender: "u1", Body: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.NotZero(t, m.CreatedAt)
	assert.NotZero(t, m.Seq)
	assert.Equal(t, "c1", m.Conv)

	got, err := s.GetMessage(m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Body, got.Body)
}

func TestReadBackwardPagesNewestFirst(t *testing.T) {
	s := openTestStore(t)
	appended := appendN(t, s, "c1", 25)

	page1, cursor, exhausted, err := s.ReadBackward(context.Background(), "c1", "", 10)
	require.NoError(t, err)
	require.Len(t, page1, 10)
	assert.False(t, exhausted)
	assert.Equal(t, appended[24].ID, page1[0].ID)
	assert.Equal(t, appended[15].ID, page1[9].ID)

	page2, cursor, exhausted, err := s.ReadBackward(context.Background(), "c1", cursor, 10)
	require.NoError(t, err)
	require.Len(t, page2, 10)
	assert.False(t, exhausted)
	assert.Equal(t, appended[14].ID, page2[0].ID)

	page3, _, exhausted, err := s.ReadBackward(context.Background(), "c1", cursor, 10)
	require.NoError(t, err)
	require.Len(t, page3, 5)
	assert.True(t, exhausted, "short page signals the log start")
	assert.Equal(t, appended[0].ID, page3[4].ID)
}

func TestReadBackwardIsolatesConversations(t *testing.T) {
	s := openTestStore(t)
	appendN(t, s, "c1", 3)
	appendN(t, s, "c2", 2)

	msgs, _, exhausted, err := s.ReadBackward(context.Background(), "c1", "", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	assert.True(t, exhausted)
	for _, m := range msgs {
		assert.Equal(t, "c1", m.Conv)
	}
}

func TestReadBackwardEmptyLog(t *testing.T) {
	s := openTestStore(t)
	msgs, _, exhausted, err := s.ReadBackward(context.Background(), "empty", "", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.True(t, exhausted)
}

func TestSubscribeLatestDeliversAppendsInOrder(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, unsub := s.SubscribeLatest(ctx, "c1", 1)
	defer unsub()

	appendN(t, s, "c1", 3)

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case m := <-ch:
			got = append(got, m.Body)
		case <-timeout:
			t.Fatalf("timed out after %d deliveries", len(got))
		}
	}
	assert.Equal(t, []string{"msg 0", "msg 1", "msg 2"}, got)
}

func TestSubscribeLatestScopedToConversation(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, unsub := s.SubscribeLatest(ctx, "c1", 1)
	defer unsub()

	appendN(t, s, "c2", 1)
	appendN(t, s, "c1", 1)

	select {
	case m := <-ch:
		assert.Equal(t, "c1", m.Conv)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
	select {
	case m := <-ch:
		t.Fatalf("unexpected delivery from %s", m.Conv)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := openTestStore(t)
	ch, unsub := s.SubscribeLatest(context.Background(), "c1", 1)
	unsub()
	appendN(t, s, "c1", 1)
	select {
	case m := <-ch:
		t.Fatalf("delivery after unsubscribe: %s", m.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUpdateMessageKeepsLogPosition(t *testing.T) {
	s := openTestStore(t)
	msgs := appendN(t, s, "c1", 3)

	edited := msgs[1]
	edited.EditHistory = append(edited.EditHistory, edited.Body)
	edited.Body = "edited"
	edited.EditedAt = time.Now().UTC().UnixNano()
	require.NoError(t, s.UpdateMessage(edited))

	page, _, _, err := s.ReadBackward(context.Background(), "c1", "", 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	// Order unchanged: the edit rewrote the entry in place.
	assert.Equal(t, msgs[2].ID, page[0].ID)
	assert.Equal(t, msgs[1].ID, page[1].ID)
	assert.Equal(t, "edited", page[1].Body)
	assert.Equal(t, msgs[0].ID, page[2].ID)

	versions, err := s.ListMessageVersions(edited.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "msg 1", versions[0].Body)
}

func TestUpdateMessageReactions(t *testing.T) {
	s := openTestStore(t)
	msgs := appendN(t, s, "c1", 1)

	m := msgs[0]
	require.True(t, m.AddReaction("u2", "🌱"))
	require.False(t, m.AddReaction("u2", "🌱"), "duplicate pair refused")
	require.True(t, m.AddReaction("u2", "👍"), "same user, second emoji allowed")
	require.NoError(t, s.UpdateMessage(m))

	got, err := s.GetMessage(m.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, 2)
	assert.Equal(t, models.Reaction{User: "u2", Emoji: "🌱"}, got.Reactions[0])
}

func TestGetMessageNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetMessage("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationRoundTrip(t *testing.T) {
	s := openTestStore(t)
	conv := models.Conversation{
		ID:           "g1",
		Kind:         models.KindGroup,
		Visibility:   models.VisibilityPublic,
		Participants: []models.Participant{{ID: "u1", Username: "One"}},
	}
	require.NoError(t, s.SaveConversation(conv))

	got, err := s.GetConversation("g1")
	require.NoError(t, err)
	assert.Equal(t, conv.Participants, got.Participants)

	_, err = s.GetConversation("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.ListConversations()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListConversationsSkipsMessageRows(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveConversation(models.Conversation{ID: "c1", Kind: models.KindPrivate}))
	appendN(t, s, "c1", 5)

	all, err := s.ListConversations()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestJoinRequestRows(t *testing.T) {
	s := openTestStore(t)

	_, err := s.PendingJoinRequest("g1", "u9")
	assert.ErrorIs(t, err, ErrNotFound)

	req := models.JoinRequest{ID: "01ARZ", Conv: "g1", User: "u9", Username: "Nine", Status: models.JoinPending}
	require.NoError(t, s.SaveJoinRequest(req))

	pending, err := s.PendingJoinRequest("g1", "u9")
	require.NoError(t, err)
	assert.Equal(t, req.ID, pending.ID)

	pending.Status = models.JoinRejected
	require.NoError(t, s.SaveJoinRequest(pending))

	_, err = s.PendingJoinRequest("g1", "u9")
	assert.ErrorIs(t, err, ErrNotFound)

	latest, err := s.LatestJoinRequest("g1", "u9")
	require.NoError(t, err)
	assert.Equal(t, models.JoinRejected, latest.Status)

	// A fresh request after rejection becomes the newest row.
	require.NoError(t, s.SaveJoinRequest(models.JoinRequest{ID: "01BCD", Conv: "g1", User: "u9", Username: "Nine", Status: models.JoinPending}))
	latest, err = s.LatestJoinRequest("g1", "u9")
	require.NoError(t, err)
	assert.Equal(t, models.JoinPending, latest.Status)

	rows, err := s.ListJoinRequests("g1", "")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestMsgKeyRejectsBadConvIDs(t *testing.T) {
	_, err := MsgKey("", 1, 1)
	assert.Error(t, err)
	_, err = MsgKey("a:b", 1, 1)
	assert.Error(t, err)
	k, err := MsgKey("c1", 42, 7)
	require.NoError(t, err)
	assert.Equal(t, "conv:c1:msg:00000000000000000042-000007", string(k))
}
