package app

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"wishlane/api/internal/authpw"
	"wishlane/api/internal/ave"
	"wishlane/api/internal/redact"
	"wishlane/api/internal/store"
	"wishlane/api/internal/util"
)

func (s *Service) GetMe(ctx context.Context, session Session) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return redact.User(session.UserID, user), nil
}

func (s *Service) GetUser(ctx context.Context, session Session, userID string) (map[string]any, error) {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	target, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, notFoundError("user not found")
		}
		return nil, err
	}
	if !ave.CanViewUser(snap, target) {
		return nil, notFoundError("user not found")
	}
	return redact.User(session.UserID, target), nil
}

// UpdateMeInput is a closed-variant profile change: exactly one field kind
// per request, with the current password required for credential changes.
type UpdateMeInput struct {
	Type            string `json:"type"` // name | email | password
	Value           string `json:"value"`
	CurrentPassword string `json:"currentPassword"`
}

func (s *Service) UpdateMe(ctx context.Context, session Session, in UpdateMeInput) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	switch in.Type {
	case "name":
		name := strings.TrimSpace(in.Value)
		if name == "" {
			return nil, validationError("name must not be empty")
		}
		if err := s.store.UpdateUserName(ctx, session.UserID, name); err != nil {
			return nil, err
		}

	case "email":
		email := strings.ToLower(strings.TrimSpace(in.Value))
		if email == "" {
			return nil, validationError("email must not be empty")
		}
		if err := s.requireCurrentPassword(user, in.CurrentPassword); err != nil {
			return nil, err
		}
		if existing, err := s.store.GetAnyUserByEmail(ctx, email); err == nil && existing.ID != session.UserID {
			return nil, conflictError("email already registered")
		} else if err != nil && !isNoRows(err) {
			return nil, err
		}
		if err := s.store.UpdateUserEmail(ctx, session.UserID, email); err != nil {
			return nil, err
		}

	case "password":
		if err := s.requireCurrentPassword(user, in.CurrentPassword); err != nil {
			return nil, err
		}
		hash, err := authpw.HashPassword(in.Value)
		if err != nil {
			return nil, validationError(err.Error())
		}
		if err := s.store.UpdateUserPassword(ctx, session.UserID, hash); err != nil {
			return nil, err
		}

	default:
		return nil, validationError("type must be one of name, email, password")
	}

	updated, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return redact.User(session.UserID, updated), nil
}

func (s *Service) requireCurrentPassword(user store.User, password string) error {
	if password == "" {
		return validationError("currentPassword is required")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return unauthorizedError()
	}
	return nil
}

// SetMyVisibility toggles whether the caller appears in public discovery.
func (s *Service) SetMyVisibility(ctx context.Context, session Session, isPublic bool) (map[string]any, error) {
	if err := s.store.UpdateUserPublic(ctx, session.UserID, isPublic); err != nil {
		return nil, err
	}
	return s.GetMe(ctx, session)
}

// DeleteMe deactivates the account. Rows stay so shared history survives,
// but the user drops out of every Accessible set.
func (s *Service) DeleteMe(ctx context.Context, session Session) error {
	return s.store.DeactivateUser(ctx, session.UserID)
}

// CreateSubuser creates a managed family account under the caller. Subusers
// have no credentials of their own; the synthetic address keeps the email
// uniqueness constraint satisfied.
func (s *Service) CreateSubuser(ctx context.Context, session Session, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required")
	}
	self, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if self.ParentID != nil {
		return nil, forbiddenError("sub-users cannot create sub-users")
	}
	parentID := session.UserID
	u := store.User{
		ID:          util.NewID("usr"),
		DisplayName: name,
		Email:       "",
		IsActive:    true,
		ParentID:    &parentID,
	}
	u.Email = fmt.Sprintf("%s@subusers.wishlane.internal", u.ID)
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	created, err := s.store.GetUserByID(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return redact.User(session.UserID, created), nil
}

func (s *Service) ListMySubusers(ctx context.Context, session Session) ([]map[string]any, error) {
	subusers, err := s.store.ListSubusers(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(subusers))
	for _, u := range subusers {
		out = append(out, redact.User(session.UserID, u))
	}
	return out, nil
}
