package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"trellis/pkg/auth"
	"trellis/pkg/logger"
	"trellis/pkg/models"
	"trellis/pkg/utils"
)

// RegisterConversations registers conversation CRUD endpoints.
func (a *API) RegisterConversations(r *mux.Router) {
	r.HandleFunc("/conversations", a.createConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations", a.listConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}", a.getConversation).Methods(http.MethodGet)
}

func (a *API) createConversation(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	var in struct {
		Kind         models.ConversationKind `json:"kind"`
		Visibility   models.Visibility       `json:"visibility"`
		Participants []models.Participant    `json:"participants"`
		InvitedIDs   []string                `json:"invited_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	conv := models.Conversation{
		ID:           utils.GenConvID(),
		Kind:         in.Kind,
		Visibility:   in.Visibility,
		Participants: in.Participants,
		InvitedIDs:   in.InvitedIDs,
		CreatedTS:    time.Now().UTC().UnixNano(),
	}
	conv.UpdatedTS = conv.CreatedTS
	switch conv.Kind {
	case models.KindPrivate:
		if len(conv.Participants) != 2 {
			utils.JSONError(w, http.StatusBadRequest, "private conversation requires exactly two participants")
			return
		}
		conv.Visibility = ""
		conv.InvitedIDs = nil
	case models.KindGroup:
		if conv.Visibility != models.VisibilityPublic && conv.Visibility != models.VisibilityPrivate {
			utils.JSONError(w, http.StatusBadRequest, "group conversation requires visibility")
			return
		}
	default:
		utils.JSONError(w, http.StatusBadRequest, "unknown conversation kind")
		return
	}
	if !conv.HasParticipant(uid) {
		utils.JSONError(w, http.StatusBadRequest, "creator must be a participant")
		return
	}
	if err := a.store.SaveConversation(conv); err != nil {
		writeErr(w, err)
		return
	}
	logger.Info("conversation_created", "conv", conv.ID, "kind", string(conv.Kind), "by", uid)
	_ = utils.JSONWrite(w, http.StatusCreated, conv)
}

// listConversations returns conversations visible to the caller: their own
// plus discoverable public groups.
func (a *API) listConversations(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	all, err := a.store.ListConversations()
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]models.Conversation, 0, len(all))
	for _, c := range all {
		if c.HasParticipant(uid) || c.IsInvited(uid) ||
			(c.Kind == models.KindGroup && c.Visibility == models.VisibilityPublic) {
			out = append(out, c)
		}
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Conversations []models.Conversation `json:"conversations"`
	}{Conversations: out})
}

// getConversation returns conversation metadata. Discoverability extends to
// public groups: a rejected requester may still see that the group exists,
// just never its content.
func (a *API) getConversation(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	conv, err := a.store.GetConversation(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	visible := conv.HasParticipant(uid) || conv.IsInvited(uid) ||
		(conv.Kind == models.KindGroup && conv.Visibility == models.VisibilityPublic)
	if !visible {
		utils.JSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, conv)
}
