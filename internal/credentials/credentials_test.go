package credentials

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-insights/internal/common/errors"
)

func newTokenServer(t *testing.T, handler func(w http.ResponseWriter, form url.Values)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		handler(w, r.PostForm)
	}))
}

func writeTokens(w http.ResponseWriter, tr TokenResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tr)
}

func newClient(tokenURL string) *OAuthClient {
	return NewOAuthClient(OAuthClientConfig{
		TokenURL:     tokenURL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://insights.example.com/oauth/callback",
		Scopes:       "crm.objects.contacts.read crm.objects.meetings.read",
	}, nil)
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider("pat-na1-token")
	token, err := p.AccessToken(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, "pat-na1-token", token)

	_, err = NewStaticProvider("").AccessToken(context.Background(), "12345")
	assert.True(t, errors.IsType(err, errors.ErrTypeCredential))
}

func TestExchangeCode(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, form url.Values) {
		assert.Equal(t, "authorization_code", form.Get("grant_type"))
		assert.Equal(t, "auth-code-1", form.Get("code"))
		assert.Equal(t, "client-id", form.Get("client_id"))
		assert.Equal(t, "client-secret", form.Get("client_secret"))
		assert.Equal(t, "https://insights.example.com/oauth/callback", form.Get("redirect_uri"))
		writeTokens(w, TokenResponse{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 1800})
	})
	defer server.Close()

	tokens, err := newClient(server.URL).ExchangeCode(context.Background(), "auth-code-1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tokens.AccessToken)
	assert.Equal(t, "refresh-1", tokens.RefreshToken)
}

func TestExchangeCode_EmptyCode(t *testing.T) {
	_, err := newClient("http://unused").ExchangeCode(context.Background(), "")
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestRequestToken_UpstreamError(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, _ url.Values) {
		http.Error(w, `{"status":"error"}`, http.StatusBadRequest)
	})
	defer server.Close()

	_, err := newClient(server.URL).Refresh(context.Background(), "refresh-1")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeCredential))
	assert.Equal(t, http.StatusBadRequest, errors.StatusCode(err))
}

func TestCredential_RefreshMargin(t *testing.T) {
	tr := &TokenResponse{AccessToken: "a", RefreshToken: "r", ExpiresIn: 1800}
	cred := tr.Credential("")

	lifetime := time.Until(cred.ExpiresAt)
	assert.Greater(t, lifetime, 1800*time.Second-RefreshMargin-5*time.Second)
	assert.Less(t, lifetime, 1800*time.Second-RefreshMargin+5*time.Second)
	assert.False(t, cred.IsExpired())
}

func TestCredential_KeepsPreviousRefreshToken(t *testing.T) {
	tr := &TokenResponse{AccessToken: "a", ExpiresIn: 1800}
	assert.Equal(t, "old-refresh", tr.Credential("old-refresh").RefreshToken)

	tr.RefreshToken = "rotated"
	assert.Equal(t, "rotated", tr.Credential("old-refresh").RefreshToken)
}

func TestOAuthProvider_ServesCachedToken(t *testing.T) {
	var calls atomic.Int32
	server := newTokenServer(t, func(w http.ResponseWriter, _ url.Values) {
		calls.Add(1)
		writeTokens(w, TokenResponse{AccessToken: "never", ExpiresIn: 1800})
	})
	defer server.Close()

	p := NewOAuthProvider(newClient(server.URL), nil)
	p.Install("12345", &TokenResponse{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 1800})

	token, err := p.AccessToken(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.Equal(t, int32(0), calls.Load(), "fresh token must not hit the endpoint")
}

func TestOAuthProvider_RefreshesExpiredToken(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, form url.Values) {
		assert.Equal(t, "refresh_token", form.Get("grant_type"))
		assert.Equal(t, "refresh-1", form.Get("refresh_token"))
		writeTokens(w, TokenResponse{AccessToken: "access-2", ExpiresIn: 1800})
	})
	defer server.Close()

	p := NewOAuthProvider(newClient(server.URL), nil)
	// expires_in below the margin makes the credential immediately expired
	p.Install("12345", &TokenResponse{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 10})

	token, err := p.AccessToken(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)

	// the rotated credential keeps the old refresh token and is now fresh
	token, err = p.AccessToken(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)
}

func TestOAuthProvider_UnknownTenant(t *testing.T) {
	p := NewOAuthProvider(newClient("http://unused"), nil)
	_, err := p.AccessToken(context.Background(), "99999")
	assert.True(t, errors.IsType(err, errors.ErrTypeCredential))
	assert.False(t, p.Installed("99999"))
}

func TestOAuthProvider_RefreshFailurePropagates(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, _ url.Values) {
		http.Error(w, `{"status":"error"}`, http.StatusUnauthorized)
	})
	defer server.Close()

	p := NewOAuthProvider(newClient(server.URL), nil)
	p.Install("12345", &TokenResponse{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 10})

	_, err := p.AccessToken(context.Background(), "12345")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeCredential))
	assert.True(t, p.Installed("12345"), "stale credential stays for a later retry")
}

func TestAuthorizeURL(t *testing.T) {
	u := newClient("http://unused").AuthorizeURL()
	parsed, err := url.Parse(u)
	require.NoError(t, err)

	assert.Equal(t, "app.hubspot.com", parsed.Host)
	assert.Equal(t, "client-id", parsed.Query().Get("client_id"))
	assert.Equal(t, "crm.objects.contacts.read crm.objects.meetings.read", parsed.Query().Get("scope"))

	state := parsed.Query().Get("state")
	require.Len(t, state, 32, "16 random bytes hex-encoded")
	_, err = hex.DecodeString(state)
	assert.NoError(t, err)

	// a second URL carries a different state
	second, err := url.Parse(newClient("http://unused").AuthorizeURL())
	require.NoError(t, err)
	assert.NotEqual(t, state, second.Query().Get("state"))
}
