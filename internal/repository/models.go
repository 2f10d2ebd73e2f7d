package repository

import (
	"time"
)

// User represents a registered account in the database
type User struct {
	ID           int64      `db:"id"`
	Email        string     `db:"email"`
	Roles        []string   `db:"roles"`
	PasswordHash string     `db:"password_hash"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    *time.Time `db:"updated_at"`
}

// APIToken represents an issued opaque bearer token in the database
type APIToken struct {
	ID        int64     `db:"id"`
	Token     string    `db:"token"`
	UserID    int64     `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// LoginAttempt represents the failed-attempt counter for one identifier.
// One row per identifier; the counter is reset in-SQL once the window
// around last_attempt has elapsed.
type LoginAttempt struct {
	ID          int64     `db:"id"`
	Identifier  string    `db:"identifier"`
	Attempts    int       `db:"attempts"`
	LastAttempt time.Time `db:"last_attempt"`
}
