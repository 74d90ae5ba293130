package crm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// Credentials are the CRM private-app / OAuth secrets.
type Credentials struct {
	AccessToken  string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// TokenManager holds the current CRM access token and refreshes it on demand.
// Concurrent refreshes are not coalesced; the last writer wins.
type TokenManager struct {
	mu           sync.RWMutex
	access       string
	refreshToken string

	clientID     string
	clientSecret string
	oauth        *oauth2.Config
	httpClient   *http.Client
	log          *slog.Logger
}

func NewTokenManager(baseURL string, creds Credentials, httpClient *http.Client, log *slog.Logger) *TokenManager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &TokenManager{
		access:       creds.AccessToken,
		refreshToken: creds.RefreshToken,
		clientID:     creds.ClientID,
		clientSecret: creds.ClientSecret,
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + "/oauth/v1/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
		log:        log,
	}
}

// Token returns the current access token (may be empty).
func (m *TokenManager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access
}

// Refresh exchanges the refresh token for a new access token.
// Every failure wraps ErrAuthConfig.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	m.mu.RLock()
	rt := m.refreshToken
	m.mu.RUnlock()

	if m.clientID == "" || m.clientSecret == "" || rt == "" {
		return "", fmt.Errorf("%w: client id, client secret and refresh token are required", ErrAuthConfig)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	tok, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthConfig, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: token response missing access_token", ErrAuthConfig)
	}

	m.mu.Lock()
	m.access = tok.AccessToken
	if tok.RefreshToken != "" {
		m.refreshToken = tok.RefreshToken
	}
	m.mu.Unlock()

	m.log.Info("crm access token refreshed", "expires_at", tok.Expiry)
	return tok.AccessToken, nil
}
