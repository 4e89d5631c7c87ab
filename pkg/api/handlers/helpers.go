package handlers

import (
	"errors"
	"net/http"

	"trellis/pkg/external"
	"trellis/pkg/membership"
	"trellis/pkg/store"
	"trellis/pkg/timeline"
	"trellis/pkg/utils"
)

// API bundles the dependencies shared by all handlers.
type API struct {
	store    *store.Store
	members  *membership.Controller
	market   external.MarketplaceAPI
	pageSize int
}

// New builds the handler set. market may be nil, in which case listing
// references stay unenriched. pageSize <= 0 falls back to the engine
// default.
func New(s *store.Store, members *membership.Controller, market external.MarketplaceAPI, pageSize int) *API {
	if pageSize <= 0 {
		pageSize = timeline.PageSize
	}
	return &API{store: s, members: members, market: market, pageSize: pageSize}
}

// writeErr maps engine errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, membership.ErrAccessDenied), errors.Is(err, membership.ErrNotAdmin):
		utils.JSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, membership.ErrUnknownConversation), errors.Is(err, store.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, membership.ErrNotInvited), errors.Is(err, membership.ErrNoPendingRequest),
		errors.Is(err, membership.ErrNotPublicGroup):
		utils.JSONError(w, http.StatusConflict, err.Error())
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}
