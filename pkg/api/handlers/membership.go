package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"trellis/pkg/auth"
	"trellis/pkg/models"
	"trellis/pkg/utils"
)

// RegisterMembership registers the join-request and invitation workflow.
// Approve/reject are the entry points driven by the admin surface.
func (a *API) RegisterMembership(r *mux.Router) {
	r.HandleFunc("/conversations/{id}/join-requests", a.requestJoin).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/join-requests", a.listJoinRequests).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/join-requests/{user}/approve", a.approveJoin).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/join-requests/{user}/reject", a.rejectJoin).Methods(http.MethodPost)

	r.HandleFunc("/conversations/{id}/invites", a.invite).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/invites/accept", a.acceptInvite).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/invites/decline", a.declineInvite).Methods(http.MethodPost)

	r.HandleFunc("/conversations/{id}/membership", a.membershipState).Methods(http.MethodGet)
}

func (a *API) requestJoin(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	var in struct {
		Username string `json:"username"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	req, err := a.members.RequestJoin(mux.Vars(r)["id"], uid, in.Username)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, req)
}

func (a *API) listJoinRequests(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	rows, err := a.members.ListRequests(mux.Vars(r)["id"], uid)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Requests []models.JoinRequest `json:"requests"`
	}{Requests: rows})
}

func (a *API) approveJoin(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	vars := mux.Vars(r)
	if err := a.members.Approve(vars["id"], uid, vars["user"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) rejectJoin(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	vars := mux.Vars(r)
	if err := a.members.Reject(vars["id"], uid, vars["user"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) invite(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	var in struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.UserID == "" {
		utils.JSONError(w, http.StatusBadRequest, "missing user_id")
		return
	}
	if err := a.members.Invite(mux.Vars(r)["id"], uid, in.UserID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) acceptInvite(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	var in struct {
		Username string `json:"username"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	if err := a.members.AcceptInvite(mux.Vars(r)["id"], uid, in.Username); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) declineInvite(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	if err := a.members.DeclineInvite(mux.Vars(r)["id"], uid); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) membershipState(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	st, err := a.members.StateOf(mux.Vars(r)["id"], uid)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		State string `json:"state"`
	}{State: string(st)})
}
