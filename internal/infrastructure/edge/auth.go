package edge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"
)

// TokenProvider supplies bearer credentials for the workspace API. Token is
// lazy: nothing is fetched until the first call, and the credential is then
// cached. Invalidate discards the cached credential so the next Token call
// fetches a fresh one.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// AssertionTokenSource implements the JWT-bearer assertion grant: it signs
// a short-lived assertion with the integration's private key and exchanges
// it at the auth server for an access token.
type AssertionTokenSource struct {
	cfg *jwt.Config

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewAssertionTokenSource builds a token source for the given auth server.
// privateKey is the PEM-encoded RSA signing key; issuer is the audience the
// auth server expects; scope is carried as the "scp" claim.
func NewAssertionTokenSource(authURL, clientID, issuer, scope string, privateKey []byte) *AssertionTokenSource {
	return &AssertionTokenSource{
		cfg: &jwt.Config{
			Email:      clientID,
			PrivateKey: privateKey,
			TokenURL:   authURL,
			Audience:   issuer,
			Expires:    10 * time.Minute,
			PrivateClaims: map[string]interface{}{
				"scp": scope,
			},
		},
	}
}

func (s *AssertionTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		s.source = s.cfg.TokenSource(ctx)
	}
	tok, err := s.source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain access token: %w", err)
	}
	return tok.AccessToken, nil
}

func (s *AssertionTokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = nil
}
