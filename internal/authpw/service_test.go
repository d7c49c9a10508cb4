package authpw

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"wishlane/api/internal/store"
)

type memUsers struct {
	byID     map[string]store.User
	resets   map[string]string // token -> userID
	used     map[string]bool
	claimErr error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]store.User{}, resets: map[string]string{}, used: map[string]bool{}}
}

func (m *memUsers) CreateUser(_ context.Context, u store.User) error {
	u.Email = strings.ToLower(u.Email)
	m.byID[u.ID] = u
	return nil
}

func (m *memUsers) GetUserByID(_ context.Context, id string) (store.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, u := range m.byID {
		if u.Email == strings.ToLower(email) && u.IsActive {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memUsers) GetAnyUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, u := range m.byID {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memUsers) ClaimPlaceholderUser(_ context.Context, userID, displayName, passwordHash string) error {
	if m.claimErr != nil {
		return m.claimErr
	}
	u := m.byID[userID]
	u.DisplayName = displayName
	u.PasswordHash = passwordHash
	u.IsActive = true
	m.byID[userID] = u
	return nil
}

func (m *memUsers) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	u := m.byID[userID]
	u.PasswordHash = passwordHash
	m.byID[userID] = u
	return nil
}

func (m *memUsers) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	m.resets[token] = userID
	return nil
}

func (m *memUsers) GetPasswordReset(_ context.Context, token string) (string, error) {
	if m.used[token] {
		return "", sql.ErrNoRows
	}
	userID, ok := m.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (m *memUsers) MarkPasswordResetUsed(_ context.Context, token string) error {
	m.used[token] = true
	return nil
}

type memSessions struct {
	sessions map[string]string // hash -> userID
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]string{}}
}

func (m *memSessions) SaveRefreshSession(_ context.Context, hash, userID string, _ time.Time) error {
	m.sessions[hash] = userID
	return nil
}

func (m *memSessions) LookupRefreshSession(_ context.Context, hash string) (store.User, error) {
	userID, ok := m.sessions[hash]
	if !ok {
		return store.User{}, errors.New("token not found")
	}
	return store.User{ID: userID, IsActive: true}, nil
}

func (m *memSessions) RevokeRefreshSession(_ context.Context, hash string) error {
	delete(m.sessions, hash)
	return nil
}

type recordingMailer struct {
	to, url string
}

func (r *recordingMailer) SendPasswordReset(_ context.Context, to, resetURL string) error {
	r.to, r.url = to, resetURL
	return nil
}

func newService(users *memUsers, sessions *memSessions, mailer ResetMailer) *Service {
	return NewService(users, sessions, mailer, "secret", 15*time.Minute, 30*24*time.Hour, "https://app.wishlane.test")
}

func TestSignUpAndSignIn(t *testing.T) {
	users := newMemUsers()
	svc := newService(users, newMemSessions(), nil)
	ctx := context.Background()

	user, tokens, err := svc.SignUp(ctx, "Alice@Example.com", "correcthorse", "Alice")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email not folded: %q", user.Email)
	}
	if tokens == nil || tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("tokens = %+v", tokens)
	}

	// Duplicate signup conflicts.
	if _, _, err := svc.SignUp(ctx, "alice@example.com", "anotherpass", "Alice2"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	// Sign-in is case-insensitive on email.
	got, _, err := svc.SignIn(ctx, "ALICE@example.COM", "correcthorse")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("signed in as %s, want %s", got.ID, user.ID)
	}

	if _, _, err := svc.SignIn(ctx, "alice@example.com", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSignUpRejectsWeakPassword(t *testing.T) {
	svc := newService(newMemUsers(), newMemSessions(), nil)
	if _, _, err := svc.SignUp(context.Background(), "a@b.c", "short", "A"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestSignUpClaimsInvitedPlaceholder(t *testing.T) {
	users := newMemUsers()
	users.byID["ph1"] = store.User{ID: "ph1", Email: "invited@example.com", IsActive: false}
	svc := newService(users, newMemSessions(), nil)

	user, _, err := svc.SignUp(context.Background(), "invited@example.com", "longenough", "Invited")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if user.ID != "ph1" {
		t.Fatalf("placeholder not claimed, got new id %s", user.ID)
	}
	if !users.byID["ph1"].IsActive || users.byID["ph1"].PasswordHash == "" {
		t.Fatalf("placeholder row = %+v", users.byID["ph1"])
	}
}

func TestPlaceholderCannotSignIn(t *testing.T) {
	users := newMemUsers()
	users.byID["ph1"] = store.User{ID: "ph1", Email: "ghost@example.com", IsActive: true}
	svc := newService(users, newMemSessions(), nil)

	if _, _, err := svc.SignIn(context.Background(), "ghost@example.com", "whatever1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	users := newMemUsers()
	sessions := newMemSessions()
	svc := newService(users, sessions, nil)
	ctx := context.Background()

	_, tokens, err := svc.SignUp(ctx, "bob@example.com", "longenough", "Bob")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	_, fresh, err := svc.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if fresh.RefreshToken == tokens.RefreshToken {
		t.Fatal("refresh token not rotated")
	}

	// The old token is dead after rotation.
	if _, _, err := svc.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc := newService(newMemUsers(), newMemSessions(), nil)
	_, tokens, err := svc.SignUp(context.Background(), "c@d.e", "longenough", "C")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	userID, err := svc.Authenticate(tokens.AccessToken)
	if err != nil || userID == "" {
		t.Fatalf("Authenticate: %s, %v", userID, err)
	}
	if _, err := svc.Authenticate("garbage"); err == nil {
		t.Fatal("garbage token accepted")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	users := newMemUsers()
	mailer := &recordingMailer{}
	svc := newService(users, newMemSessions(), mailer)
	ctx := context.Background()

	_, _, err := svc.SignUp(ctx, "dora@example.com", "originalpw", "Dora")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	if err := svc.RequestPasswordReset(ctx, "dora@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if mailer.to != "dora@example.com" || !strings.Contains(mailer.url, "https://app.wishlane.test/reset-password?token=") {
		t.Fatalf("mail = %q %q", mailer.to, mailer.url)
	}

	token := strings.TrimPrefix(mailer.url, "https://app.wishlane.test/reset-password?token=")
	if err := svc.ResetPassword(ctx, token, "brandnewpw"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	if _, _, err := svc.SignIn(ctx, "dora@example.com", "brandnewpw"); err != nil {
		t.Fatalf("SignIn with new password: %v", err)
	}
	if _, _, err := svc.SignIn(ctx, "dora@example.com", "originalpw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("old password still works")
	}

	// Tokens are single use.
	if err := svc.ResetPassword(ctx, token, "yetanother1"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected ErrInvalidResetToken, got %v", err)
	}

	// Unknown emails are silently accepted.
	if err := svc.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset unknown: %v", err)
	}
}
