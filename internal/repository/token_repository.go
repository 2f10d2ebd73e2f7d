package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Token repository errors
var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExists   = errors.New("token value already exists")
)

// TokenRepository defines the interface for API token data access
type TokenRepository interface {
	Create(ctx context.Context, token *APIToken) error
	// FindValid returns the token only when its expiry is strictly in the
	// future; expired rows are filtered server-side.
	FindValid(ctx context.Context, token string) (*APIToken, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// tokenRepository implements TokenRepository using PostgreSQL
type tokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository creates a new TokenRepository instance
func NewTokenRepository(pool *pgxpool.Pool) TokenRepository {
	return &tokenRepository{pool: pool}
}

// Create inserts a new API token. A collision on the unique token value
// surfaces as ErrTokenExists so the issuer can regenerate.
func (r *tokenRepository) Create(ctx context.Context, token *APIToken) error {
	query := `
		INSERT INTO api_tokens (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		token.Token,
		token.UserID,
		token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt)

	if err != nil {
		if strings.Contains(err.Error(), "api_tokens_token_key") {
			return ErrTokenExists
		}
		return err
	}

	return nil
}

// FindValid retrieves an unexpired token by its value
func (r *tokenRepository) FindValid(ctx context.Context, token string) (*APIToken, error) {
	query := `
		SELECT id, token, user_id, expires_at, created_at
		FROM api_tokens
		WHERE token = $1 AND expires_at > now()
	`

	t := &APIToken{}
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&t.ID,
		&t.Token,
		&t.UserID,
		&t.ExpiresAt,
		&t.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	return t, nil
}

// DeleteExpired removes all expired tokens. Expiry is checked lazily on
// read, so this is storage hygiene, not a correctness requirement.
func (r *tokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM api_tokens WHERE expires_at < $1`

	result, err := r.pool.Exec(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}
