package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Attempt repository errors
var (
	ErrAttemptNotFound = errors.New("attempt record not found")
)

// AttemptRepository defines the interface for failed-attempt counter access
type AttemptRepository interface {
	Find(ctx context.Context, identifier string) (*LoginAttempt, error)
	// Increment performs a single atomic insert-or-increment for the
	// identifier. A record whose window has elapsed restarts at 1 instead
	// of incrementing, so concurrent recordings never lose counts.
	Increment(ctx context.Context, identifier string, window time.Duration) (*LoginAttempt, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// attemptRepository implements AttemptRepository using PostgreSQL
type attemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository instance
func NewAttemptRepository(pool *pgxpool.Pool) AttemptRepository {
	return &attemptRepository{pool: pool}
}

// Find retrieves the attempt record for an identifier
func (r *attemptRepository) Find(ctx context.Context, identifier string) (*LoginAttempt, error) {
	query := `
		SELECT id, identifier, attempts, last_attempt
		FROM login_attempts
		WHERE identifier = $1
	`

	a := &LoginAttempt{}
	err := r.pool.QueryRow(ctx, query, identifier).Scan(
		&a.ID,
		&a.Identifier,
		&a.Attempts,
		&a.LastAttempt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}

	return a, nil
}

// Increment upserts the counter for an identifier in one statement.
// The window comparison lives in the SQL so two concurrent failures for
// the same identifier serialize on the row instead of read-then-write
// racing in the application.
func (r *attemptRepository) Increment(ctx context.Context, identifier string, window time.Duration) (*LoginAttempt, error) {
	query := `
		INSERT INTO login_attempts (identifier, attempts, last_attempt)
		VALUES ($1, 1, now())
		ON CONFLICT (identifier) DO UPDATE
		SET attempts = CASE
				WHEN login_attempts.last_attempt > now() - make_interval(secs => $2)
				THEN login_attempts.attempts + 1
				ELSE 1
			END,
			last_attempt = now()
		RETURNING id, identifier, attempts, last_attempt
	`

	a := &LoginAttempt{}
	err := r.pool.QueryRow(ctx, query, identifier, window.Seconds()).Scan(
		&a.ID,
		&a.Identifier,
		&a.Attempts,
		&a.LastAttempt,
	)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// DeleteOlderThan removes attempt records whose last activity predates the
// cutoff. Stale rows are already treated as zero by readers.
func (r *attemptRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM login_attempts WHERE last_attempt < $1`

	result, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}
