package membership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trellis/pkg/models"
	"trellis/pkg/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func adminIs(ids ...string) AdminCheck {
	set := map[string]struct{}{}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(_, userID string) bool {
		_, ok := set[userID]
		return ok
	}
}

func seedGroup(t *testing.T, s *store.Store, vis models.Visibility) models.Conversation {
	t.Helper()
	conv := models.Conversation{
		ID:         "g1",
		Kind:       models.KindGroup,
		Visibility: vis,
		Participants: []models.Participant{
			{ID: "admin", Username: "Admin"},
			{ID: "member", Username: "Member"},
		},
		CreatedTS: time.Now().UTC().UnixNano(),
	}
	require.NoError(t, s.SaveConversation(conv))
	return conv
}

func TestPublicGroupJoinFlow(t *testing.T) {
	s := openStore(t)
	seedGroup(t, s, models.VisibilityPublic)
	c := NewController(s, adminIs("admin"))

	st, err := c.StateOf("g1", "visitor")
	require.NoError(t, err)
	assert.Equal(t, StateNone, st)

	req, err := c.RequestJoin("g1", "visitor", "Visitor")
	require.NoError(t, err)
	assert.Equal(t, models.JoinPending, req.Status)

	st, err = c.StateOf("g1", "visitor")
	require.NoError(t, err)
	assert.Equal(t, StatePending, st)

	// Reads and writes stay gated while pending.
	assert.ErrorIs(t, c.CanRead("g1", "visitor"), ErrAccessDenied)
	assert.ErrorIs(t, c.CanWrite("g1", "visitor"), ErrAccessDenied)

	require.NoError(t, c.Approve("g1", "admin", "visitor"))

	st, err = c.StateOf("g1", "visitor")
	require.NoError(t, err)
	assert.Equal(t, StateMember, st)
	assert.NoError(t, c.CanRead("g1", "visitor"))
	assert.NoError(t, c.CanWrite("g1", "visitor"))

	// The stored username carried over to the participant record so mentions
	// can resolve.
	conv, err := s.GetConversation("g1")
	require.NoError(t, err)
	var found bool
	for _, p := range conv.Participants {
		if p.ID == "visitor" {
			found = true
			assert.Equal(t, "Visitor", p.Username)
		}
	}
	assert.True(t, found)
}

func TestRepeatJoinRequestIsIdempotentWhilePending(t *testing.T) {
	s := openStore(t)
	seedGroup(t, s, models.VisibilityPublic)
	c := NewController(s, adminIs("admin"))

	first, err := c.RequestJoin("g1", "visitor", "Visitor")
	require.NoError(t, err)
	second, err := c.RequestJoin("g1", "visitor", "Visitor")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "duplicate submission surfaces the existing row")

	rows, err := s.ListJoinRequests("g1", "visitor")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRejectedUserMayRequestAgain(t *testing.T) {
	s := openStore(t)
	seedGroup(t, s, models.VisibilityPublic)
	c := NewController(s, adminIs("admin"))

	_, err := c.RequestJoin("g1", "visitor", "Visitor")
	require.NoError(t, err)
	require.NoError(t, c.Reject("g1", "admin", "visitor"))

	st, err := c.StateOf("g1", "visitor")
	require.NoError(t, err)
	assert.Equal(t, StateRejected, st)
	assert.ErrorIs(t, c.CanRead("g1", "visitor"), ErrAccessDenied)

	fresh, err := c.RequestJoin("g1", "visitor", "Visitor")
	require.NoError(t, err)
	assert.Equal(t, models.JoinPending, fresh.Status)

	st, err = c.StateOf("g1", "visitor")
	require.NoError(t, err)
	assert.Equal(t, StatePending, st)
}

func TestPrivateGroupRefusesJoinRequests(t *testing.T) {
	s := openStore(t)
	seedGroup(t, s, models.VisibilityPrivate)
	c := NewController(s, adminIs("admin"))

	_, err := c.RequestJoin("g1", "visitor", "Visitor")
	assert.ErrorIs(t, err, ErrNotPublicGroup)
}

func TestInviteAcceptDecline(t *testing.T) {
	s := openStore(t)
	seedGroup(t, s, models.VisibilityPrivate)
	c := NewController(s, adminIs("admin"))

	require.NoError(t, c.Invite("g1", "member", "guest"))

	st, err := c.StateOf("g1", "guest")
	require.NoError(t, err)
	assert.Equal(t, StateInvited, st)
	assert.ErrorIs(t, c.CanRead("g1", "guest"), ErrAccessDenied)

	require.NoError(t, c.AcceptInvite("g1", "guest", "Guest"))
	st, err = c.StateOf("g1", "guest")
	require.NoError(t, err)
	assert.Equal(t, StateMember, st)

	// Decline path on a second user.
	require.NoError(t, c.Invite("g1", "member", "other"))
	require.NoError(t, c.DeclineInvite("g1", "other"))
	st, err = c.StateOf("g1", "other")
	require.NoError(t, err)
	assert.Equal(t, StateNone, st)
}

func TestInviteRequiresMemberActor(t *testing.T) {
	s := openStore(t)
	seedGroup(t, s, models.VisibilityPrivate)
	c := NewController(s, adminIs("admin"))

	assert.ErrorIs(t, c.Invite("g1", "stranger", "guest"), ErrAccessDenied)
	assert.ErrorIs(t, c.AcceptInvite("g1", "never-invited", "X"), ErrNotInvited)
}

func TestDecisionRequiresAdmin(t *testing.T) {
	s := openStore(t)
	seedGroup(t, s, models.VisibilityPublic)
	c := NewController(s, adminIs("admin"))

	_, err := c.RequestJoin("g1", "visitor", "Visitor")
	require.NoError(t, err)

	assert.ErrorIs(t, c.Approve("g1", "member", "visitor"), ErrNotAdmin)
	assert.ErrorIs(t, c.Reject("g1", "member", "visitor"), ErrNotAdmin)

	_, err = c.ListRequests("g1", "member")
	assert.ErrorIs(t, err, ErrNotAdmin)
	rows, err := c.ListRequests("g1", "admin")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDecisionWithoutPendingRequest(t *testing.T) {
	s := openStore(t)
	seedGroup(t, s, models.VisibilityPublic)
	c := NewController(s, adminIs("admin"))

	assert.ErrorIs(t, c.Approve("g1", "admin", "visitor"), ErrNoPendingRequest)
}

func TestNoCachedVerdictAfterRemoval(t *testing.T) {
	s := openStore(t)
	conv := seedGroup(t, s, models.VisibilityPublic)
	c := NewController(s, adminIs("admin"))

	require.NoError(t, c.CanWrite("g1", "member"))

	// Simulate removal by the moderation surface.
	conv.Participants = []models.Participant{{ID: "admin", Username: "Admin"}}
	require.NoError(t, s.SaveConversation(conv))

	assert.ErrorIs(t, c.CanWrite("g1", "member"), ErrAccessDenied)
	assert.ErrorIs(t, c.CanRead("g1", "member"), ErrAccessDenied)
}

func TestPrivateConversationMembershipIsFixed(t *testing.T) {
	s := openStore(t)
	conv := models.Conversation{
		ID:   "p1",
		Kind: models.KindPrivate,
		Participants: []models.Participant{
			{ID: "buyer", Username: "Buyer"},
			{ID: "seller", Username: "Seller"},
		},
	}
	require.NoError(t, s.SaveConversation(conv))
	c := NewController(s, adminIs("admin"))

	assert.NoError(t, c.CanRead("p1", "buyer"))
	assert.NoError(t, c.CanWrite("p1", "seller"))

	st, err := c.StateOf("p1", "stranger")
	require.NoError(t, err)
	assert.Equal(t, StateNone, st)

	_, err = c.RequestJoin("p1", "stranger", "S")
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.ErrorIs(t, c.Invite("p1", "buyer", "stranger"), ErrAccessDenied)
}

func TestUnknownConversation(t *testing.T) {
	s := openStore(t)
	c := NewController(s, adminIs("admin"))
	_, err := c.StateOf("missing", "u")
	assert.ErrorIs(t, err, ErrUnknownConversation)
	_, err = c.RequestJoin("missing", "u", "U")
	assert.ErrorIs(t, err, ErrUnknownConversation)
}
