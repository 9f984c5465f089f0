package credentials

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crm-insights/internal/circuitbreaker"
	"crm-insights/internal/common/errors"
	"crm-insights/internal/common/logging"
)

// TokenResponse is the token endpoint's response body, per RFC 6749.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type,omitempty"`
}

// OAuthClientConfig configures the token endpoint client.
type OAuthClientConfig struct {
	// AuthBaseURL is the base for the user-facing authorize page
	AuthBaseURL string
	// TokenURL is the token exchange endpoint
	TokenURL string
	// APIBaseURL is the platform API base, used for token introspection
	APIBaseURL string
	// ClientID and ClientSecret identify the app installation
	ClientID     string
	ClientSecret string
	// RedirectURI is the registered OAuth callback
	RedirectURI string
	// Scopes is the space-separated scope list requested at install time
	Scopes string
}

// OAuthClient talks to the platform's OAuth token endpoint. All calls run
// through a circuit breaker so a broken endpoint fails fast instead of
// stalling the pipeline.
type OAuthClient struct {
	config     OAuthClientConfig
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     logging.Logger
}

// NewOAuthClient creates a token endpoint client.
func NewOAuthClient(config OAuthClientConfig, logger logging.Logger) *OAuthClient {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &OAuthClient{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		breaker:    circuitbreaker.New("oauth", circuitbreaker.OAuthConfig, logger),
		logger:     logger,
	}
}

// AuthorizeURL builds the user-facing install URL for the app, carrying a
// fresh random hex state.
func (c *OAuthClient) AuthorizeURL() string {
	base := c.config.AuthBaseURL
	if base == "" {
		base = "https://app.hubspot.com/oauth/authorize"
	}
	params := url.Values{}
	params.Set("client_id", c.config.ClientID)
	params.Set("redirect_uri", c.config.RedirectURI)
	params.Set("state", randomState())
	if c.config.Scopes != "" {
		params.Set("scope", strings.ReplaceAll(c.config.Scopes, ",", " "))
	}
	return base + "?" + params.Encode()
}

func randomState() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// ExchangeCode trades an authorization code from the install callback for
// the tenant's first token pair.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	if code == "" {
		return nil, errors.ValidationError("authorization code is required")
	}
	params := url.Values{}
	params.Set("grant_type", "authorization_code")
	params.Set("code", code)
	params.Set("redirect_uri", c.config.RedirectURI)
	return c.requestToken(ctx, params)
}

// Refresh obtains a fresh access token from a refresh token.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, errors.CredentialError("no refresh token available", nil)
	}
	params := url.Values{}
	params.Set("grant_type", "refresh_token")
	params.Set("refresh_token", refreshToken)
	return c.requestToken(ctx, params)
}

func (c *OAuthClient) requestToken(ctx context.Context, params url.Values) (*TokenResponse, error) {
	params.Set("client_id", c.config.ClientID)
	params.Set("client_secret", c.config.ClientSecret)
	grantType := params.Get("grant_type")

	var tokenResp *TokenResponse
	err := c.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL,
			strings.NewReader(params.Encode()))
		if err != nil {
			return errors.InternalError("failed to create token request", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.WrapRemoteError("oauth token request", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return errors.WrapRemoteError("oauth token response read", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.logger.Warn("Token endpoint returned an error",
				logging.Field{Key: "grant_type", Value: grantType},
				logging.Field{Key: "status", Value: resp.StatusCode},
			)
			return errors.NewRemoteError("oauth token request", resp.StatusCode, string(body))
		}

		var tr TokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return errors.InternalError("failed to decode token response", err)
		}
		if tr.AccessToken == "" {
			return errors.CredentialError("token endpoint returned no access token", nil)
		}
		tokenResp = &tr
		return nil
	})
	if err != nil {
		return nil, errors.CredentialError(
			fmt.Sprintf("token request failed (grant_type=%s)", grantType), err)
	}
	return tokenResp, nil
}

// TokenInfo is the introspection result for an access token.
type TokenInfo struct {
	HubID  int64  `json:"hub_id"`
	UserID int64  `json:"user_id"`
	User   string `json:"user"`
}

// Introspect resolves the tenant behind an access token. The install
// callback uses it to learn which portal just authorized the app.
func (c *OAuthClient) Introspect(ctx context.Context, accessToken string) (*TokenInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(c.config.APIBaseURL, "/")+"/oauth/v1/access-tokens/"+accessToken, nil)
	if err != nil {
		return nil, errors.InternalError("failed to create introspection request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WrapRemoteError("token introspection", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.WrapRemoteError("token introspection", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewRemoteError("token introspection", resp.StatusCode, string(body))
	}

	var info TokenInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, errors.InternalError("failed to decode introspection response", err)
	}
	if info.HubID == 0 {
		return nil, errors.CredentialError("introspection response has no hub id", nil)
	}
	return &info, nil
}

// Credential converts a token response into stored credential state, applying
// the refresh margin to the advertised lifetime. When the endpoint rotates
// the refresh token the new one wins; otherwise the previous one is kept.
func (tr *TokenResponse) Credential(previousRefreshToken string) *Credential {
	refreshToken := tr.RefreshToken
	if refreshToken == "" {
		refreshToken = previousRefreshToken
	}
	return &Credential{
		AccessToken:  tr.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - RefreshMargin),
	}
}
