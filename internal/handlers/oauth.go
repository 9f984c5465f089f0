package handlers

import (
	"fmt"
	"net/http"

	"crm-insights/internal/common/logging"
	"crm-insights/internal/credentials"
)

// OAuthHandler serves the app install flow: a redirect to the platform's
// authorize page, and the callback that exchanges the code and records the
// tenant's credentials.
type OAuthHandler struct {
	client   *credentials.OAuthClient
	provider *credentials.OAuthProvider
	logger   logging.Logger
}

// NewOAuthHandler creates the install flow handler.
func NewOAuthHandler(client *credentials.OAuthClient, provider *credentials.OAuthProvider, logger logging.Logger) *OAuthHandler {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &OAuthHandler{client: client, provider: provider, logger: logger}
}

// Install redirects the browser to the platform's authorize page.
func (h *OAuthHandler) Install(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.client.AuthorizeURL(), http.StatusFound)
}

// Callback completes the install: exchange the code, introspect the token to
// learn which portal authorized, and store the credential under that tenant.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	tokens, err := h.client.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Error("Code exchange failed", err)
		http.Error(w, "authorization failed", http.StatusBadGateway)
		return
	}

	info, err := h.client.Introspect(r.Context(), tokens.AccessToken)
	if err != nil {
		h.logger.Error("Token introspection failed", err)
		http.Error(w, "authorization failed", http.StatusBadGateway)
		return
	}

	tenantID := fmt.Sprintf("%d", info.HubID)
	h.provider.Install(tenantID, tokens)

	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "App installed for portal %s. You can close this window.", tenantID)
}
