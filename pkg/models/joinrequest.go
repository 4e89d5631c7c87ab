package models

// JoinRequestStatus is the lifecycle state of a join request. A request
// transitions pending -> approved|rejected exactly once; re-requesting after
// rejection creates a new record.
type JoinRequestStatus string

const (
	JoinPending  JoinRequestStatus = "pending"
	JoinApproved JoinRequestStatus = "approved"
	JoinRejected JoinRequestStatus = "rejected"
)

// JoinRequest is a membership application for a public group. At most one
// pending request exists per (conversation, user) pair.
type JoinRequest struct {
	ID   string `json:"id"`
	Conv string `json:"conv"`
	User string `json:"user"`
	// Username is carried so approval can enroll a participant that mention
	// resolution can find.
	Username  string            `json:"username,omitempty"`
	Status    JoinRequestStatus `json:"status"`
	CreatedTS int64             `json:"created_ts"`
	DecidedTS int64             `json:"decided_ts,omitempty"`
	// DecidedBy is the admin identity that approved or rejected.
	DecidedBy string `json:"decided_by,omitempty"`
}
