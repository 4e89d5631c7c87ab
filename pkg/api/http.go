// Package api exposes the chat engine over HTTP. Marketplace CRUD lives in
// other services; this surface covers conversations, the message log, the
// live stream, and the membership workflow.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"trellis/pkg/api/handlers"
	"trellis/pkg/external"
	"trellis/pkg/membership"
	"trellis/pkg/store"
)

// Handler builds the versioned API router. market may be nil.
func Handler(s *store.Store, members *membership.Controller, market external.MarketplaceAPI, pageSize int) http.Handler {
	h := handlers.New(s, members, market, pageSize)
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	h.RegisterConversations(v1)
	h.RegisterMessages(v1)
	h.RegisterMembership(v1)
	return r
}
