// Package authpw provides email/password authentication: sign-up (including
// claiming invited placeholder accounts), sign-in, refresh-token rotation,
// and password reset.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"wishlane/api/internal/auth"
	"wishlane/api/internal/store"
	"wishlane/api/internal/util"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidSession     = errors.New("invalid or expired session")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// UserStore is the user/reset slice of the entity store.
type UserStore interface {
	CreateUser(ctx context.Context, u store.User) error
	GetUserByID(ctx context.Context, id string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetAnyUserByEmail(ctx context.Context, email string) (store.User, error)
	ClaimPlaceholderUser(ctx context.Context, userID, displayName, passwordHash string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

// SessionStore persists refresh-token sessions keyed by token hash.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// ResetMailer sends the password-reset link.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, to, resetURL string) error
}

const resetTokenTTL = time.Hour

type Service struct {
	users       UserStore
	sessions    SessionStore
	mailer      ResetMailer // nil disables reset mail
	jwtSecret   []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
	frontendURL string
}

func NewService(users UserStore, sessions SessionStore, mailer ResetMailer,
	jwtSecret string, accessTTL, refreshTTL time.Duration, frontendURL string) *Service {
	return &Service{
		users:       users,
		sessions:    sessions,
		mailer:      mailer,
		jwtSecret:   []byte(jwtSecret),
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// Tokens is an issued access/refresh token pair.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// SignUp registers a new account. If the email belongs to an invited
// placeholder (a row without a password), the placeholder is claimed so
// shares addressed to it survive.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (store.User, *Tokens, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" || displayName == "" {
		return store.User{}, nil, errors.New("email, password, and name are required")
	}
	if len(password) < 8 {
		return store.User{}, nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, nil, fmt.Errorf("hash password: %w", err)
	}

	existing, err := s.users.GetAnyUserByEmail(ctx, email)
	switch {
	case err == nil && existing.PasswordHash == "" && !existing.IsActive:
		if err := s.users.ClaimPlaceholderUser(ctx, existing.ID, displayName, string(hash)); err != nil {
			return store.User{}, nil, err
		}
		existing.DisplayName = displayName
		existing.PasswordHash = string(hash)
		existing.IsActive = true
		tokens, err := s.issueTokens(ctx, existing)
		return existing, tokens, err
	case err == nil:
		return store.User{}, nil, ErrEmailTaken
	case !errors.Is(err, sql.ErrNoRows):
		return store.User{}, nil, err
	}

	user := store.User{
		ID:           util.NewID("usr"),
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return store.User{}, nil, fmt.Errorf("create user: %w", err)
	}
	tokens, err := s.issueTokens(ctx, user)
	return user, tokens, err
}

// SignIn checks credentials and issues a token pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, *Tokens, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, nil, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, nil, err
	}
	if user.PasswordHash == "" {
		return store.User{}, nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return store.User{}, nil, ErrInvalidCredentials
	}
	tokens, err := s.issueTokens(ctx, user)
	return user, tokens, err
}

// Refresh rotates the refresh token and issues a fresh access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (store.User, *Tokens, error) {
	hash := auth.HashToken(refreshToken)
	partial, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return store.User{}, nil, ErrInvalidSession
	}
	user, err := s.users.GetUserByID(ctx, partial.ID)
	if err != nil || !user.IsActive {
		return store.User{}, nil, ErrInvalidSession
	}

	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		return store.User{}, nil, err
	}
	tokens, err := s.issueTokens(ctx, user)
	return user, tokens, err
}

// SignOut revokes the refresh session.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// Authenticate validates an access token and returns the user id.
func (s *Service) Authenticate(tokenString string) (string, error) {
	claims, err := auth.ParseToken(s.jwtSecret, tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// RequestPasswordReset creates a reset token and mails the link. Unknown
// emails succeed silently so the endpoint is not an account oracle.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	token := util.NewToken()
	if err := s.users.CreatePasswordReset(ctx, user.ID, token, time.Now().Add(resetTokenTTL)); err != nil {
		return err
	}
	if s.mailer != nil {
		resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)
		if err := s.mailer.SendPasswordReset(ctx, user.Email, resetURL); err != nil {
			return fmt.Errorf("send reset mail: %w", err)
		}
	}
	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}
	userID, err := s.users.GetPasswordReset(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	return s.users.MarkPasswordResetUsed(ctx, token)
}

// HashPassword is exposed for the user-update path.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) issueTokens(ctx context.Context, user store.User) (*Tokens, error) {
	access, err := auth.IssueToken(s.jwtSecret, user.ID, user.DisplayName, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh := util.NewToken()
	expiresAt := time.Now().Add(s.refreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, expiresAt); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}
