package credentials

import (
	"context"
	"sync"

	"crm-insights/internal/common/errors"
	"crm-insights/internal/common/logging"
)

// OAuthProvider holds per-tenant OAuth credentials in memory and refreshes
// them synchronously on first use after expiry. Concurrent refreshes for the
// same tenant are tolerated; the last writer wins and both tokens are valid.
type OAuthProvider struct {
	client *OAuthClient
	logger logging.Logger

	mu    sync.RWMutex
	creds map[string]*Credential
}

// NewOAuthProvider creates an empty provider. Tenants appear via Install.
func NewOAuthProvider(client *OAuthClient, logger logging.Logger) *OAuthProvider {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &OAuthProvider{
		client: client,
		logger: logger,
		creds:  make(map[string]*Credential),
	}
}

// Install records the token pair obtained from the install callback,
// replacing any previous credential for the tenant.
func (p *OAuthProvider) Install(tenantID string, tokens *TokenResponse) {
	cred := tokens.Credential("")

	p.mu.Lock()
	p.creds[tenantID] = cred
	p.mu.Unlock()

	p.logger.Info("Tenant credentials installed",
		logging.Field{Key: "tenant_id", Value: tenantID},
		logging.Field{Key: "expires_at", Value: cred.ExpiresAt},
	)
}

// Installed reports whether a tenant has credentials on record.
func (p *OAuthProvider) Installed(tenantID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.creds[tenantID]
	return ok
}

// AccessToken returns a usable token for the tenant, refreshing first when
// the cached one has passed its margin-adjusted expiry. A failed refresh
// propagates; the stale credential is kept so a later attempt can retry.
func (p *OAuthProvider) AccessToken(ctx context.Context, tenantID string) (string, error) {
	p.mu.RLock()
	cred, ok := p.creds[tenantID]
	p.mu.RUnlock()

	if !ok {
		return "", errors.CredentialError("tenant has no installed credentials", nil).
			WithContext("tenant_id", tenantID)
	}
	if !cred.IsExpired() {
		return cred.AccessToken, nil
	}

	tokens, err := p.client.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		p.logger.Error("Token refresh failed", err,
			logging.Field{Key: "tenant_id", Value: tenantID},
		)
		return "", err
	}

	fresh := tokens.Credential(cred.RefreshToken)

	p.mu.Lock()
	p.creds[tenantID] = fresh
	p.mu.Unlock()

	p.logger.Info("Tenant credentials refreshed",
		logging.Field{Key: "tenant_id", Value: tenantID},
		logging.Field{Key: "expires_at", Value: fresh.ExpiresAt},
	)
	return fresh.AccessToken, nil
}
