package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenProvider supplies the bearer token attached to outbound requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken returns a fixed bearer token (e.g. an API key).
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// HMACTokenProvider mints short-lived HS256 tokens from a shared secret and
// caches them until shortly before expiry.
type HMACTokenProvider struct {
	Secret  string
	Subject string
	TTL     time.Duration

	mu      sync.Mutex
	current string
	expires time.Time
}

// NewHMACTokenProvider creates a provider with a 1 hour token lifetime.
func NewHMACTokenProvider(secret, subject string) *HMACTokenProvider {
	return &HMACTokenProvider{
		Secret:  secret,
		Subject: subject,
		TTL:     time.Hour,
	}
}

func (p *HMACTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != "" && time.Now().Add(time.Minute).Before(p.expires) {
		return p.current, nil
	}

	expires := time.Now().Add(p.TTL)
	claims := jwt.MapClaims{
		"sub": p.Subject,
		"iat": time.Now().Unix(),
		"exp": expires.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(p.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign sync token: %w", err)
	}

	p.current = signed
	p.expires = expires
	return signed, nil
}
