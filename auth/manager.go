// Package auth provides the credential capability the connection engine consumes.
// Token acquisition itself lives behind golang.org/x/oauth2 token sources.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

var (
	// ErrEmptyEndpoint is returned when a Manager is constructed without a base endpoint.
	ErrEmptyEndpoint = errors.New("authenticated endpoint is empty")
	// ErrEmptyToken is returned when the token source yields a token without an access token.
	ErrEmptyToken = errors.New("token source returned an empty access token")
)

// Manager supplies credentials and the tenant specific endpoint.
// Implementations own token refresh and must be safe for concurrent use.
type Manager interface {
	// Token returns the full Authorization header value (e.g. "Bearer abc"),
	// refreshing the underlying token first if it has expired.
	Token() (string, error)
	// AuthenticatedEndpoint returns the base URL relative request paths are resolved against.
	AuthenticatedEndpoint() string
}

// AddAuthentication sets the Authorization header from m, fetching (and if needed refreshing) the token.
func AddAuthentication(header http.Header, m Manager) error {
	token, err := m.Token()
	if err != nil {
		return fmt.Errorf("add authentication: %w", err)
	}
	header.Set("Authorization", token)
	return nil
}

// TokenSourceManager is a Manager backed by an oauth2.TokenSource.
type TokenSourceManager struct {
	endpoint string
	source   oauth2.TokenSource
}

// NewTokenSourceManager wraps source so that a token is only refreshed once it has expired.
func NewTokenSourceManager(endpoint string, source oauth2.TokenSource) (*TokenSourceManager, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}
	if source == nil {
		return nil, errors.New("token source is nil")
	}

	return &TokenSourceManager{
		endpoint: endpoint,
		source:   oauth2.ReuseTokenSource(nil, source),
	}, nil
}

// NewRefreshTokenManager creates a Manager that redeems refreshToken against conf's token endpoint
// whenever the current access token expires.
func NewRefreshTokenManager(ctx context.Context, conf *oauth2.Config, refreshToken, endpoint string) (*TokenSourceManager, error) {
	if conf == nil {
		return nil, errors.New("oauth2 config is nil")
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.New("refresh token is empty")
	}

	return NewTokenSourceManager(endpoint, conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}))
}

// NewStaticManager creates a Manager that always presents the same access token.
func NewStaticManager(endpoint, accessToken string) (*TokenSourceManager, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrEmptyToken
	}

	return NewTokenSourceManager(endpoint, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}

// Token ...
func (m *TokenSourceManager) Token() (string, error) {
	token, err := m.source.Token()
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if token.AccessToken == "" {
		return "", ErrEmptyToken
	}
	return token.Type() + " " + token.AccessToken, nil
}

// AuthenticatedEndpoint ...
func (m *TokenSourceManager) AuthenticatedEndpoint() string {
	return m.endpoint
}
