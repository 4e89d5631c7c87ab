package models

// ConversationKind separates two-party chats from group rooms.
type ConversationKind string

const (
	KindPrivate ConversationKind = "private"
	KindGroup   ConversationKind = "group"
)

// Visibility applies to group conversations only. Public groups are
// discoverable and accept join requests; private groups admit by invitation.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Participant is a member of a conversation. Username is kept alongside the
// id so @mention tokens can be resolved without an extra lookup.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// Conversation is the metadata record for one message log.
type Conversation struct {
	ID         string           `json:"id"`
	Kind       ConversationKind `json:"kind"`
	Visibility Visibility       `json:"visibility,omitempty"`
	// Participants hold read/write access. For private conversations this is
	// exactly two entries.
	Participants []Participant `json:"participants"`
	// InvitedIDs are users invited to a private group but not yet members.
	InvitedIDs []string `json:"invited_ids,omitempty"`
	// Denormalized fields for list views, refreshed by the maintenance job.
	LastMessagePreview string `json:"last_message_preview,omitempty"`
	LastActivityAt     int64  `json:"last_activity_at,omitempty"`
	CreatedTS          int64  `json:"created_ts,omitempty"`
	UpdatedTS          int64  `json:"updated_ts,omitempty"`
}

// HasParticipant reports whether userID holds membership.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// IsInvited reports whether userID holds an open invitation.
func (c *Conversation) IsInvited(userID string) bool {
	for _, id := range c.InvitedIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AddParticipant appends userID to membership if not already present.
func (c *Conversation) AddParticipant(userID, username string) {
	if c.HasParticipant(userID) {
		return
	}
	c.Participants = append(c.Participants, Participant{ID: userID, Username: username})
}

// RemoveInvite drops an open invitation for userID, if any.
func (c *Conversation) RemoveInvite(userID string) {
	for i, id := range c.InvitedIDs {
		if id == userID {
			c.InvitedIDs = append(c.InvitedIDs[:i], c.InvitedIDs[i+1:]...)
			return
		}
	}
}
