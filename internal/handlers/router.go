package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"crm-insights/internal/middleware"
)

// Deps collects the handlers the router exposes. OAuth is nil in static
// credential mode, which leaves the install routes unregistered.
type Deps struct {
	Webhook *WebhookHandler
	Card    *CardHandler
	Health  *HealthHandler
	OAuth   *OAuthHandler
}

// NewRouter builds the HTTP routing table.
func NewRouter(deps Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)

	r.Handle("/webhooks/hubspot", deps.Webhook).Methods(http.MethodPost)
	r.Handle("/crm-card", deps.Card).Methods(http.MethodGet)
	r.Handle("/health", deps.Health).Methods(http.MethodGet)

	if deps.OAuth != nil {
		r.HandleFunc("/oauth/install", deps.OAuth.Install).Methods(http.MethodGet)
		r.HandleFunc("/oauth/callback", deps.OAuth.Callback).Methods(http.MethodGet)
	}

	return r
}
