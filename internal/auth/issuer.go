package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/avolkovs/portal-api/internal/repository"
)

const (
	// tokenByteLength is the number of random bytes per token (256 bits)
	tokenByteLength = 32
	// issueRetries bounds regeneration on the (practically impossible)
	// unique-constraint collision
	issueRetries = 3
)

// TokenIssuer mints opaque API tokens and persists them with an expiry
type TokenIssuer struct {
	tokens repository.TokenRepository
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer with the given token lifetime
func NewTokenIssuer(tokens repository.TokenRepository, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{
		tokens: tokens,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue generates a fresh random token for the user and stores it.
// The plaintext value is returned exactly once, on the created record;
// afterwards only existence and validity are queryable.
func (i *TokenIssuer) Issue(ctx context.Context, userID int64) (*repository.APIToken, error) {
	var lastErr error
	for attempt := 0; attempt < issueRetries; attempt++ {
		value, err := generateTokenValue()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}

		token := &repository.APIToken{
			Token:     value,
			UserID:    userID,
			ExpiresAt: i.now().UTC().Add(i.ttl),
		}

		err = i.tokens.Create(ctx, token)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, repository.ErrTokenExists) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("issue token: %w", lastErr)
}

// TTL returns the configured token lifetime
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// generateTokenValue reads 32 bytes from the system CSPRNG and encodes
// them as base64, matching the stored token format.
func generateTokenValue() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
