// Package credentials manages per-tenant platform credentials. A Provider
// hands out a usable access token for a tenant; the OAuth implementation
// tracks expiry and refreshes synchronously, while the static implementation
// serves a single fixed token for private-app installs.
package credentials

import (
	"context"
	"time"

	"crm-insights/internal/common/errors"
)

// RefreshMargin is subtracted from the advertised token lifetime so a token
// is refreshed before it can expire mid-request.
const RefreshMargin = 60 * time.Second

// Provider yields an access token for a tenant's platform account.
type Provider interface {
	AccessToken(ctx context.Context, tenantID string) (string, error)
}

// Credential is the stored OAuth state for one tenant.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired reports whether the access token can no longer be trusted.
// ExpiresAt already includes the refresh margin.
func (c *Credential) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// StaticProvider serves one fixed private-app token for every tenant.
type StaticProvider struct {
	token string
}

// NewStaticProvider creates a provider around a private-app token.
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

// AccessToken returns the configured token regardless of tenant.
func (p *StaticProvider) AccessToken(_ context.Context, _ string) (string, error) {
	if p.token == "" {
		return "", errors.CredentialError("no private app token configured", nil)
	}
	return p.token, nil
}
