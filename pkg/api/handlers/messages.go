package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"trellis/pkg/annotate"
	"trellis/pkg/auth"
	"trellis/pkg/external"
	"trellis/pkg/logger"
	"trellis/pkg/models"
	"trellis/pkg/utils"
)

// RegisterMessages registers message log, reaction, and stream endpoints.
func (a *API) RegisterMessages(r *mux.Router) {
	r.HandleFunc("/conversations/{id}/messages", a.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", a.readBackward).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/stream", a.streamMessages).Methods(http.MethodGet)

	r.HandleFunc("/messages/{id}", a.getMessage).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", a.editMessage).Methods(http.MethodPut)
	r.HandleFunc("/messages/{id}/versions", a.listVersions).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/reactions", a.addReaction).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/reactions/{emoji}", a.removeReaction).Methods(http.MethodDelete)
}

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	convID := mux.Vars(r)["id"]
	if err := a.members.CanWrite(convID, uid); err != nil {
		writeErr(w, err)
		return
	}
	var in struct {
		Body      string            `json:"body"`
		Media     []models.MediaRef `json:"media"`
		ReplyTo   string            `json:"reply_to"`
		ListingID string            `json:"listing_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if in.Body == "" && len(in.Media) == 0 && in.ListingID == "" {
		utils.JSONError(w, http.StatusBadRequest, "empty message")
		return
	}
	msg, err := a.store.Append(r.Context(), convID, models.Message{
		Sender:    uid,
		Body:      in.Body,
		Media:     in.Media,
		ReplyTo:   in.ReplyTo,
		ListingID: in.ListingID,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	logger.Info("message_sent", "conv", convID, "id", msg.ID)
	_ = utils.JSONWrite(w, http.StatusCreated, msg)
}

func (a *API) readBackward(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	convID := mux.Vars(r)["id"]
	if err := a.members.CanRead(convID, uid); err != nil {
		writeErr(w, err)
		return
	}
	limit := a.pageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	msgs, next, exhausted, err := a.store.ReadBackward(r.Context(), convID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Messages   []models.Message `json:"messages"`
		NextCursor string           `json:"next_cursor"`
		Exhausted  bool             `json:"exhausted"`
	}{Messages: msgs, NextCursor: next, Exhausted: exhausted})
}

// streamMessages serves the live tail over SSE. Only messages appended
// after the request are delivered; history belongs to readBackward.
func (a *API) streamMessages(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	convID := mux.Vars(r)["id"]
	if err := a.members.CanRead(convID, uid); err != nil {
		writeErr(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.JSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ch, cancel := a.store.SubscribeLatest(r.Context(), convID, 1)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()
	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, open := <-ch:
			if !open {
				return
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if err := enc.Encode(msg); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// getMessage returns the latest version of a message plus its derived
// annotations (reaction groups, mentions).
func (a *API) getMessage(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	msg, err := a.store.GetMessage(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.members.CanRead(msg.Conv, uid); err != nil {
		writeErr(w, err)
		return
	}
	conv, err := a.store.GetConversation(msg.Conv)
	if err != nil {
		writeErr(w, err)
		return
	}
	// Listing enrichment is best-effort: the id stays opaque when the
	// marketplace is unreachable.
	var listing *external.ListingSummary
	if msg.ListingID != "" && a.market != nil {
		if sum, err := a.market.GetListingSummary(r.Context(), msg.ListingID); err == nil {
			listing = &sum
		} else {
			logger.Warn("listing_summary_failed", "listing", msg.ListingID, "error", err)
		}
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		models.Message
		Annotations annotate.Annotations     `json:"annotations"`
		Listing     *external.ListingSummary `json:"listing,omitempty"`
	}{Message: msg, Annotations: annotate.Aggregate(msg, conv.Participants), Listing: listing})
}

// editMessage rewrites the body, keeping the prior body in the edit
// history. Only the original sender may edit.
func (a *API) editMessage(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	msg, err := a.store.GetMessage(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	// Authorship alone is not enough: a sender who has since left the
	// conversation may no longer rewrite its log.
	if err := a.members.CanWrite(msg.Conv, uid); err != nil {
		writeErr(w, err)
		return
	}
	if msg.Sender != uid {
		utils.JSONError(w, http.StatusForbidden, "only the sender may edit")
		return
	}
	var in struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Body == "" {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	msg.EditHistory = append(msg.EditHistory, msg.Body)
	msg.Body = in.Body
	msg.EditedAt = time.Now().UTC().UnixNano()
	if err := a.store.UpdateMessage(msg); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, msg)
}

func (a *API) listVersions(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	id := mux.Vars(r)["id"]
	msg, err := a.store.GetMessage(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.members.CanRead(msg.Conv, uid); err != nil {
		writeErr(w, err)
		return
	}
	versions, err := a.store.ListMessageVersions(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		ID       string           `json:"id"`
		Versions []models.Message `json:"versions"`
	}{ID: id, Versions: versions})
}

func (a *API) addReaction(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	msg, err := a.store.GetMessage(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.members.CanWrite(msg.Conv, uid); err != nil {
		writeErr(w, err)
		return
	}
	var in struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Emoji == "" {
		utils.JSONError(w, http.StatusBadRequest, "missing emoji")
		return
	}
	// (user, emoji) uniqueness makes repeat reactions idempotent.
	if msg.AddReaction(uid, in.Emoji) {
		if err := a.store.UpdateMessage(msg); err != nil {
			writeErr(w, err)
			return
		}
	}
	_ = utils.JSONWrite(w, http.StatusOK, msg)
}

func (a *API) removeReaction(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	vars := mux.Vars(r)
	msg, err := a.store.GetMessage(vars["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.members.CanWrite(msg.Conv, uid); err != nil {
		writeErr(w, err)
		return
	}
	if msg.RemoveReaction(uid, vars["emoji"]) {
		if err := a.store.UpdateMessage(msg); err != nil {
			writeErr(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
