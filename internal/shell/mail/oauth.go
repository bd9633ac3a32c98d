// Package mail connects Gmail and Outlook mailboxes: the OAuth flows, the
// Gmail and Microsoft Graph clients, webhook forwarding and the Service that
// ties them to the token store.
package mail

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/dochero/dochero/internal/core/domain"
)

// GmailReadonlyScope is the only Google scope requested.
const GmailReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"

// DefaultMicrosoftScopes are requested when none are configured.
const DefaultMicrosoftScopes = "openid profile offline_access https://graph.microsoft.com/Mail.Read"

// ErrMissingCode is returned when a callback arrives without a code.
var ErrMissingCode = errors.New("authorization code is required")

// =============================================================================
// Configuration
// =============================================================================

// OAuthConfig holds the client registration of one provider.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint overrides the provider's endpoint, e.g. in tests.
	Endpoint *oauth2.Endpoint

	// HTTPClient is used for token requests. Defaults to a 30s timeout client.
	HTTPClient *http.Client
}

// =============================================================================
// OAuth Provider
// =============================================================================

// OAuthProvider runs the authorization code flow for one mail provider.
type OAuthProvider struct {
	provider    domain.Provider
	conf        *oauth2.Config
	authOptions []oauth2.AuthCodeOption
	httpClient  *http.Client
}

// NewGoogleOAuth creates the Gmail flow: read-only scope, offline access and
// forced consent so Google always returns a refresh token.
func NewGoogleOAuth(cfg OAuthConfig) *OAuthProvider {
	endpoint := endpoints.Google
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return newOAuthProvider(domain.ProviderGmail, cfg, endpoint, []string{GmailReadonlyScope},
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// NewMicrosoftOAuth creates the Outlook flow against the identity platform
// of tenant ("common" when empty). scopes is a space separated list.
func NewMicrosoftOAuth(cfg OAuthConfig, tenant, scopes string) *OAuthProvider {
	if tenant == "" {
		tenant = "common"
	}
	if strings.TrimSpace(scopes) == "" {
		scopes = DefaultMicrosoftScopes
	}
	endpoint := endpoints.AzureAD(tenant)
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return newOAuthProvider(domain.ProviderOutlook, cfg, endpoint, strings.Fields(scopes),
		oauth2.SetAuthURLParam("response_mode", "query"),
	)
}

func newOAuthProvider(p domain.Provider, cfg OAuthConfig, endpoint oauth2.Endpoint, scopes []string, opts ...oauth2.AuthCodeOption) *OAuthProvider {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OAuthProvider{
		provider: p,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		authOptions: opts,
		httpClient:  client,
	}
}

// Provider returns the mail provider of the flow.
func (o *OAuthProvider) Provider() domain.Provider {
	return o.provider
}

// AuthURL returns the consent page URL. state is echoed back to the callback.
func (o *OAuthProvider) AuthURL(state string) string {
	return o.conf.AuthCodeURL(state, o.authOptions...)
}

// Exchange trades an authorization code for tokens.
func (o *OAuthProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	return o.conf.Exchange(o.withClient(ctx), code)
}

// Refresh obtains a new access token for refreshToken.
func (o *OAuthProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, domain.ErrNoRefreshToken
	}
	src := o.conf.TokenSource(o.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

func (o *OAuthProvider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

// Lifetime returns how long tok stays valid from now, 0 when the provider
// did not say.
func Lifetime(tok *oauth2.Token, now time.Time) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}
	if secs := extraSeconds(tok.Extra("expires_in")); secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if !tok.Expiry.IsZero() {
		if d := tok.Expiry.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func extraSeconds(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case string:
		secs, _ := strconv.ParseInt(n, 10, 64)
		return secs
	}
	return 0
}
