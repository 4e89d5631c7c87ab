package membership

import "errors"

var (
	// ErrAccessDenied rejects a gated send/read attempt. Terminal for the
	// action, not for the conversation view.
	ErrAccessDenied = errors.New("membership: access denied")
	// ErrNotInvited rejects invitation accept/decline without an open invite.
	ErrNotInvited = errors.New("membership: not invited")
	// ErrNotPublicGroup rejects join requests against anything that is not a
	// public group.
	ErrNotPublicGroup = errors.New("membership: not a public group")
	// ErrNoPendingRequest rejects approve/reject when no request is open.
	ErrNoPendingRequest = errors.New("membership: no pending join request")
	// ErrNotAdmin rejects approve/reject from a caller without the admin
	// capability.
	ErrNotAdmin = errors.New("membership: admin capability required")
	// ErrUnknownConversation is returned for a missing conversation record.
	ErrUnknownConversation = errors.New("membership: unknown conversation")
)
