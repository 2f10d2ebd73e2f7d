package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/avolkovs/portal-api/internal/repository"
)

// Auth service errors. Credential and token failures are expected control
// flow; handlers map them to responses with deliberately generic messages.
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrMalformedToken        = errors.New("invalid token format")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrDuplicateEmail        = errors.New("email already in use")
)

// DefaultRole is assigned to every newly registered user
const DefaultRole = "ROLE_USER"

// Principal is the authenticated identity resulting from successful
// credential or token validation
type Principal struct {
	ID    int64    `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// AuthService decides whether presented credentials or bearer tokens
// correspond to a valid, active principal
type AuthService struct {
	users  repository.UserRepository
	tokens repository.TokenRepository
	hasher *PasswordHasher
	issuer *TokenIssuer
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthService creates a new AuthService instance
func NewAuthService(
	users repository.UserRepository,
	tokens repository.TokenRepository,
	hasher *PasswordHasher,
	issuer *TokenIssuer,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		issuer: issuer,
		logger: logger,
		now:    time.Now,
	}
}

// Register creates a new user account with the default role set.
// The duplicate pre-check gives the common case a friendly answer; the
// store's unique index decides races, surfaced as the same ErrDuplicateEmail.
func (s *AuthService) Register(ctx context.Context, email, password string) (*repository.User, error) {
	if existing, err := s.users.FindByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrDuplicateEmail
	} else if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &repository.User{
		Email:        email,
		Roles:        []string{DefaultRole},
		PasswordHash: hash,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// ValidateCredentials checks an email/password pair against the credential
// store. An unknown email and a wrong password produce the same failure so
// responses cannot be used to enumerate accounts.
func (s *AuthService) ValidateCredentials(ctx context.Context, email, password string) (Principal, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, err
	}

	if err := s.hasher.Verify(password, user.PasswordHash); err != nil {
		return Principal{}, ErrInvalidCredentials
	}

	return principalOf(user), nil
}

// Login validates credentials and, on success, mints a fresh API token.
// The plaintext token is returned to the caller exactly once.
func (s *AuthService) Login(ctx context.Context, email, password string) (Principal, string, error) {
	principal, err := s.ValidateCredentials(ctx, email, password)
	if err != nil {
		return Principal{}, "", err
	}

	token, err := s.issuer.Issue(ctx, principal.ID)
	if err != nil {
		return Principal{}, "", err
	}

	s.logger.Info("login succeeded", "user_id", principal.ID)
	return principal, token.Token, nil
}

// ValidateToken resolves a raw Authorization header value to a principal.
// Both "Bearer <token>" and a bare token are accepted.
func (s *AuthService) ValidateToken(ctx context.Context, header string) (Principal, error) {
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return Principal{}, ErrMalformedToken
	}

	record, err := s.tokens.FindValid(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return Principal{}, ErrInvalidOrExpiredToken
		}
		return Principal{}, err
	}

	// The store filters on its own clock; re-check here so a token read
	// moments before expiry cannot authenticate past it.
	if !record.ExpiresAt.After(s.now()) {
		return Principal{}, ErrInvalidOrExpiredToken
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Principal{}, ErrInvalidOrExpiredToken
		}
		return Principal{}, err
	}

	return principalOf(user), nil
}

func principalOf(user *repository.User) Principal {
	roles := user.Roles
	if len(roles) == 0 {
		roles = []string{DefaultRole}
	}
	return Principal{
		ID:    user.ID,
		Email: user.Email,
		Roles: roles,
	}
}
