// Package membership governs who may read and write a conversation. State
// is recomputed from the store on every gating decision; nothing here caches
// a member verdict across a state-changing action.
package membership

import (
	"errors"
	"time"

	"trellis/pkg/logger"
	"trellis/pkg/models"
	"trellis/pkg/store"
	"trellis/pkg/telemetry"
	"trellis/pkg/utils"
)

// State is the membership state of a (conversation, user) pair.
type State string

const (
	StateNone     State = "not_a_participant"
	StateInvited  State = "invited"
	StatePending  State = "pending_request"
	StateMember   State = "member"
	StateRejected State = "rejected"
)

// AdminCheck is the injected capability check for approve/reject. The
// marketplace's authorization policy decides who administers a group; the
// engine only asks.
type AdminCheck func(convID, userID string) bool

// Controller exposes the membership state machine over the store.
type Controller struct {
	store   *store.Store
	isAdmin AdminCheck
}

// NewController builds a Controller. A nil isAdmin denies all admin actions.
func NewController(s *store.Store, isAdmin AdminCheck) *Controller {
	if isAdmin == nil {
		isAdmin = func(string, string) bool { return false }
	}
	return &Controller{store: s, isAdmin: isAdmin}
}

// StateOf computes the current state for (convID, userID).
func (c *Controller) StateOf(convID, userID string) (State, error) {
	conv, err := c.store.GetConversation(convID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return StateNone, ErrUnknownConversation
		}
		return StateNone, err
	}
	if conv.HasParticipant(userID) {
		return StateMember, nil
	}
	if conv.Kind == models.KindPrivate {
		return StateNone, nil
	}
	if conv.IsInvited(userID) {
		return StateInvited, nil
	}
	if conv.Visibility == models.VisibilityPublic {
		req, err := c.store.LatestJoinRequest(convID, userID)
		if err == nil {
			switch req.Status {
			case models.JoinPending:
				return StatePending, nil
			case models.JoinRejected:
				return StateRejected, nil
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			return StateNone, err
		}
	}
	return StateNone, nil
}

// CanWrite gates the send path. Only members may write.
func (c *Controller) CanWrite(convID, userID string) error {
	return c.gate(convID, userID)
}

// CanRead gates subscribe and paginate. Only members may read; a rejected
// user may know the conversation exists but sees no content.
func (c *Controller) CanRead(convID, userID string) error {
	return c.gate(convID, userID)
}

func (c *Controller) gate(convID, userID string) error {
	st, err := c.StateOf(convID, userID)
	if err != nil {
		return err
	}
	if st != StateMember {
		telemetry.AccessDenied.Inc()
		logger.Debug("membership_gate_denied", "conv", convID, "user", userID, "state", string(st))
		return ErrAccessDenied
	}
	return nil
}

// Invite records an open invitation for userID. The actor must be a member
// of the group.
func (c *Controller) Invite(convID, actorID, userID string) error {
	conv, err := c.getGroup(convID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(actorID) {
		return ErrAccessDenied
	}
	if conv.HasParticipant(userID) || conv.IsInvited(userID) {
		return nil
	}
	conv.InvitedIDs = append(conv.InvitedIDs, userID)
	conv.UpdatedTS = time.Now().UTC().UnixNano()
	if err := c.store.SaveConversation(conv); err != nil {
		return err
	}
	logger.Info("member_invited", "conv", convID, "user", userID, "by", actorID)
	return nil
}

// AcceptInvite transitions invited -> member.
func (c *Controller) AcceptInvite(convID, userID, username string) error {
	conv, err := c.getGroup(convID)
	if err != nil {
		return err
	}
	if !conv.IsInvited(userID) {
		return ErrNotInvited
	}
	conv.RemoveInvite(userID)
	conv.AddParticipant(userID, username)
	conv.UpdatedTS = time.Now().UTC().UnixNano()
	if err := c.store.SaveConversation(conv); err != nil {
		return err
	}
	logger.Info("invite_accepted", "conv", convID, "user", userID)
	return nil
}

// DeclineInvite transitions invited -> not_a_participant.
func (c *Controller) DeclineInvite(convID, userID string) error {
	conv, err := c.getGroup(convID)
	if err != nil {
		return err
	}
	if !conv.IsInvited(userID) {
		return ErrNotInvited
	}
	conv.RemoveInvite(userID)
	conv.UpdatedTS = time.Now().UTC().UnixNano()
	if err := c.store.SaveConversation(conv); err != nil {
		return err
	}
	logger.Info("invite_declined", "conv", convID, "user", userID)
	return nil
}

// RequestJoin submits a join request against a public group. Idempotent: a
// second submission while one is pending surfaces the existing row instead
// of duplicating it. A rejected user may re-request, producing a new row.
func (c *Controller) RequestJoin(convID, userID, username string) (models.JoinRequest, error) {
	conv, err := c.getGroup(convID)
	if err != nil {
		return models.JoinRequest{}, err
	}
	if conv.Visibility != models.VisibilityPublic {
		return models.JoinRequest{}, ErrNotPublicGroup
	}
	if conv.HasParticipant(userID) {
		return models.JoinRequest{}, ErrAccessDenied
	}
	if existing, err := c.store.PendingJoinRequest(convID, userID); err == nil {
		logger.Debug("join_request_duplicate", "conv", convID, "user", userID, "req", existing.ID)
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.JoinRequest{}, err
	}
	req := models.JoinRequest{
		ID:        utils.GenRequestID(),
		Conv:      convID,
		User:      userID,
		Username:  username,
		Status:    models.JoinPending,
		CreatedTS: time.Now().UTC().UnixNano(),
	}
	if err := c.store.SaveJoinRequest(req); err != nil {
		return models.JoinRequest{}, err
	}
	logger.Info("join_requested", "conv", convID, "user", userID, "req", req.ID)
	return req, nil
}

// Approve transitions pending_request -> member and enrolls the user as a
// participant. Requires the admin capability.
func (c *Controller) Approve(convID, adminID, userID string) error {
	return c.decide(convID, adminID, userID, models.JoinApproved)
}

// Reject transitions pending_request -> rejected. Requires the admin
// capability.
func (c *Controller) Reject(convID, adminID, userID string) error {
	return c.decide(convID, adminID, userID, models.JoinRejected)
}

func (c *Controller) decide(convID, adminID, userID string, status models.JoinRequestStatus) error {
	if !c.isAdmin(convID, adminID) {
		return ErrNotAdmin
	}
	conv, err := c.getGroup(convID)
	if err != nil {
		return err
	}
	req, err := c.store.PendingJoinRequest(convID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoPendingRequest
		}
		return err
	}
	req.Status = status
	req.DecidedTS = time.Now().UTC().UnixNano()
	req.DecidedBy = adminID
	if err := c.store.SaveJoinRequest(req); err != nil {
		return err
	}
	if status == models.JoinApproved {
		conv.AddParticipant(userID, req.Username)
		conv.UpdatedTS = req.DecidedTS
		if err := c.store.SaveConversation(conv); err != nil {
			return err
		}
	}
	logger.Info("join_request_decided", "conv", convID, "user", userID, "status", string(status), "by", adminID)
	return nil
}

// ListRequests returns all join-request rows for a conversation. Part of
// the admin surface; requires the admin capability.
func (c *Controller) ListRequests(convID, adminID string) ([]models.JoinRequest, error) {
	if !c.isAdmin(convID, adminID) {
		return nil, ErrNotAdmin
	}
	if _, err := c.getGroup(convID); err != nil {
		return nil, err
	}
	return c.store.ListJoinRequests(convID, "")
}

// getGroup loads convID and checks it is a group conversation. Private
// two-party conversations have a fixed membership; no transition applies.
func (c *Controller) getGroup(convID string) (models.Conversation, error) {
	conv, err := c.store.GetConversation(convID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return conv, ErrUnknownConversation
		}
		return conv, err
	}
	if conv.Kind != models.KindGroup {
		return conv, ErrAccessDenied
	}
	return conv, nil
}
