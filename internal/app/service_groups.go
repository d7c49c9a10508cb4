package app

import (
	"context"
	"fmt"
	"strings"

	"wishlane/api/internal/ave"
	"wishlane/api/internal/family"
	"wishlane/api/internal/redact"
	"wishlane/api/internal/store"
	"wishlane/api/internal/util"
)

type CreateGroupInput struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"memberIds"`
	AdminIDs  []string `json:"adminIds"`
}

func (s *Service) CreateGroup(ctx context.Context, session Session, in CreateGroupInput) (map[string]any, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, validationError("group name is required")
	}
	g := store.Group{
		ID:        util.NewID("grp"),
		OwnerID:   session.UserID,
		Name:      strings.TrimSpace(in.Name),
		MemberIDs: withoutString(in.MemberIDs, session.UserID),
		AdminIDs:  withoutString(in.AdminIDs, session.UserID),
	}
	if err := validateGroupSets(g); err != nil {
		return nil, err
	}
	if err := s.store.CreateGroup(ctx, g); err != nil {
		return nil, err
	}
	created, err := s.store.GetGroup(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	return redact.Group(created), nil
}

func (s *Service) GetGroup(ctx context.Context, session Session, groupID string) (map[string]any, error) {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.accessibleGroup(ctx, snap, groupID)
	if err != nil {
		return nil, err
	}
	return redact.Group(g), nil
}

func (s *Service) ListMyGroups(ctx context.Context, session Session) ([]map[string]any, error) {
	groups, err := s.store.ListGroupsForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		out = append(out, redact.Group(g))
	}
	return out, nil
}

type UpdateGroupInput struct {
	Name      *string   `json:"name"`
	MemberIDs *[]string `json:"memberIds"`
	AdminIDs  *[]string `json:"adminIds"`
}

// UpdateGroup changes group metadata and membership. Only the owner and
// admins may do this.
func (s *Service) UpdateGroup(ctx context.Context, session Session, groupID string, in UpdateGroupInput) (map[string]any, error) {
	g, err := s.administrableGroup(ctx, session, groupID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, validationError("group name must not be empty")
		}
		g.Name = strings.TrimSpace(*in.Name)
	}
	if in.MemberIDs != nil {
		g.MemberIDs = withoutString(*in.MemberIDs, g.OwnerID)
	}
	if in.AdminIDs != nil {
		g.AdminIDs = withoutString(*in.AdminIDs, g.OwnerID)
	}
	if err := validateGroupSets(g); err != nil {
		return nil, err
	}
	if err := s.store.UpdateGroup(ctx, g); err != nil {
		return nil, err
	}
	updated, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return redact.Group(updated), nil
}

// DeleteGroup soft-deletes a group. Owner only.
func (s *Service) DeleteGroup(ctx context.Context, session Session, groupID string) error {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		if isNoRows(err) {
			return notFoundError("group not found")
		}
		return err
	}
	if g.Deleted || g.OwnerID != session.UserID {
		return notFoundError("group not found")
	}
	return s.store.SoftDeleteGroup(ctx, groupID)
}

// InviteToGroup invites an email address. Unknown addresses get a
// placeholder account so shares addressed to them survive until they sign
// up and claim it.
func (s *Service) InviteToGroup(ctx context.Context, session Session, groupID, email string) (map[string]any, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, validationError("email is required")
	}
	g, err := s.administrableGroup(ctx, session, groupID)
	if err != nil {
		return nil, err
	}

	target, err := s.store.GetAnyUserByEmail(ctx, email)
	if isNoRows(err) {
		target = store.User{
			ID:          util.NewID("usr"),
			DisplayName: email,
			Email:       email,
			IsActive:    false,
		}
		if err := s.store.CreateUser(ctx, target); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if target.ID == g.OwnerID || containsString(g.MemberIDs, target.ID) || containsString(g.AdminIDs, target.ID) {
		return nil, conflictError("user is already in the group")
	}
	if !containsString(g.InvitedIDs, target.ID) {
		g.InvitedIDs = append(g.InvitedIDs, target.ID)
		if err := s.store.UpdateGroup(ctx, g); err != nil {
			return nil, err
		}
	}

	if s.mailer != nil && s.mailer.IsConfigured() {
		joinURL := fmt.Sprintf("%s/groups/%s/join", strings.TrimRight(s.frontendURL, "/"), g.ID)
		if err := s.mailer.SendGroupInvite(ctx, email, session.UserName, g.Name, joinURL); err != nil {
			s.log.Warn("group invite mail failed", "group_id", g.ID, "error", err)
		}
	}
	return redact.Group(g), nil
}

// JoinGroup accepts a pending invitation.
func (s *Service) JoinGroup(ctx context.Context, session Session, groupID string) (map[string]any, error) {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		if isNoRows(err) {
			return nil, notFoundError("group not found")
		}
		return nil, err
	}
	if g.Deleted {
		return nil, notFoundError("group not found")
	}
	if !containsString(g.InvitedIDs, session.UserID) {
		return nil, notFoundError("group not found")
	}
	g.InvitedIDs = withoutString(g.InvitedIDs, session.UserID)
	g.MemberIDs = append(g.MemberIDs, session.UserID)
	if err := s.store.UpdateGroup(ctx, g); err != nil {
		return nil, err
	}
	return redact.Group(g), nil
}

// LeaveGroup removes the caller from a group. The owner cannot leave their
// own group.
func (s *Service) LeaveGroup(ctx context.Context, session Session, groupID string) error {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return err
	}
	g, err := s.accessibleGroup(ctx, snap, groupID)
	if err != nil {
		return err
	}
	if g.OwnerID == session.UserID {
		return validationError("the owner cannot leave their own group")
	}
	g.MemberIDs = withoutString(g.MemberIDs, session.UserID)
	g.AdminIDs = withoutString(g.AdminIDs, session.UserID)
	g.InvitedIDs = withoutString(g.InvitedIDs, session.UserID)
	return s.store.UpdateGroup(ctx, g)
}

func (s *Service) accessibleGroup(ctx context.Context, snap *family.Snapshot, groupID string) (store.Group, error) {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		if isNoRows(err) {
			return store.Group{}, notFoundError("group not found")
		}
		return store.Group{}, err
	}
	if g.Deleted || !ave.CanAccessGroup(snap, g) {
		return store.Group{}, notFoundError("group not found")
	}
	return g, nil
}

func (s *Service) administrableGroup(ctx context.Context, session Session, groupID string) (store.Group, error) {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return store.Group{}, err
	}
	g, err := s.accessibleGroup(ctx, snap, groupID)
	if err != nil {
		return store.Group{}, err
	}
	if !ave.CanAdministerGroup(snap, g) {
		return store.Group{}, forbiddenError("only the owner and admins can change the group")
	}
	return g, nil
}

// validateGroupSets enforces pairwise-disjoint member/admin/invited sets
// with the owner outside all of them.
func validateGroupSets(g store.Group) error {
	seen := map[string]string{}
	check := func(ids []string, set string) error {
		for _, id := range ids {
			if id == g.OwnerID {
				return validationError("the owner cannot appear in the " + set + " set")
			}
			if prev, ok := seen[id]; ok && prev != set {
				return validationError("a user cannot be in both the " + prev + " and " + set + " sets")
			}
			seen[id] = set
		}
		return nil
	}
	if err := check(g.MemberIDs, "member"); err != nil {
		return err
	}
	if err := check(g.AdminIDs, "admin"); err != nil {
		return err
	}
	return check(g.InvitedIDs, "invited")
}

func withoutString(s []string, v string) []string {
	out := make([]string, 0, len(s))
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
