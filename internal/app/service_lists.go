package app

import (
	"context"
	"strings"

	"wishlane/api/internal/ave"
	"wishlane/api/internal/redact"
	"wishlane/api/internal/store"
	"wishlane/api/internal/util"
)

// CreateListInput is the create/update payload for lists.
type CreateListInput struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Public          bool     `json:"public"`
	VisibleToUsers  []string `json:"visibleToUsers"`
	VisibleToGroups []string `json:"visibleToGroups"`
	OwnerID         string   `json:"ownerId"` // optional, must be self or a subuser
}

func (s *Service) CreateList(ctx context.Context, session Session, in CreateListInput) (map[string]any, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, validationError("list name is required")
	}
	ownerID := session.UserID
	if in.OwnerID != "" && in.OwnerID != session.UserID {
		if !s.isParentOf(ctx, session, in.OwnerID) {
			return nil, forbiddenError("lists can only be created for yourself or your sub-users")
		}
		ownerID = in.OwnerID
	}
	l := store.List{
		ID:              util.NewID("lst"),
		OwnerID:         ownerID,
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		Public:          in.Public,
		VisibleToUsers:  in.VisibleToUsers,
		VisibleToGroups: in.VisibleToGroups,
	}
	if err := s.store.CreateList(ctx, l); err != nil {
		return nil, err
	}
	created, err := s.store.GetList(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	return redact.List(created, ave.ListAccess{Granted: true, Type: ave.AccessOwner}), nil
}

// GetList returns list metadata plus the items the caller may see in it.
func (s *Service) GetList(ctx context.Context, session Session, listID string) (map[string]any, error) {
	v := s.viewerFor(session)
	l, access, err := s.accessibleList(ctx, v, listID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.ListItemsInList(ctx, listID)
	if err != nil {
		return nil, err
	}
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	visible, err := s.itemPayloads(ctx, snap, items, map[string]ave.ListAccess{l.ID: access})
	if err != nil {
		return nil, err
	}

	out := redact.List(l, access)
	out["items"] = visible
	return out, nil
}

func (s *Service) ListMyLists(ctx context.Context, session Session, limit, offset int) ([]map[string]any, error) {
	if err := checkPagination(limit, offset); err != nil {
		return nil, err
	}
	lists, err := s.store.ListListsByOwner(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(lists))
	for _, l := range lists {
		out = append(out, redact.List(l, ave.ListAccess{Granted: true, Type: ave.AccessOwner}))
	}
	return paginate(out, limit, offset), nil
}

// ListListsByUser returns the target user's lists the caller can access.
func (s *Service) ListListsByUser(ctx context.Context, session Session, targetUserID string, limit, offset int) ([]map[string]any, error) {
	if err := checkPagination(limit, offset); err != nil {
		return nil, err
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	target, err := s.store.GetUserByID(ctx, targetUserID)
	if err != nil {
		if isNoRows(err) {
			return nil, notFoundError("user not found")
		}
		return nil, err
	}
	if !ave.CanViewUser(snap, target) {
		return nil, notFoundError("user not found")
	}
	lists, err := s.store.ListListsByOwner(ctx, targetUserID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(lists))
	for _, l := range lists {
		access := ave.CanAccessList(snap, l)
		if !access.Granted {
			continue
		}
		out = append(out, redact.List(l, access))
	}
	return paginate(out, limit, offset), nil
}

// ListListsByGroup returns the lists shared with a group the caller belongs
// to.
func (s *Service) ListListsByGroup(ctx context.Context, session Session, groupID string, limit, offset int) ([]map[string]any, error) {
	if err := checkPagination(limit, offset); err != nil {
		return nil, err
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		if isNoRows(err) {
			return nil, notFoundError("group not found")
		}
		return nil, err
	}
	if !ave.CanAccessGroup(snap, g) {
		return nil, notFoundError("group not found")
	}
	lists, err := s.store.ListListsVisibleToGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(lists))
	for _, l := range lists {
		access := ave.CanAccessList(snap, l)
		if !access.Granted {
			continue
		}
		out = append(out, redact.List(l, access))
	}
	return paginate(out, limit, offset), nil
}

type UpdateListInput struct {
	Name            *string   `json:"name"`
	Description     *string   `json:"description"`
	Public          *bool     `json:"public"`
	VisibleToUsers  *[]string `json:"visibleToUsers"`
	VisibleToGroups *[]string `json:"visibleToGroups"`
}

func (s *Service) UpdateList(ctx context.Context, session Session, listID string, in UpdateListInput) (map[string]any, error) {
	l, err := s.mutableList(ctx, session, listID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, validationError("list name must not be empty")
		}
		l.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		l.Description = *in.Description
	}
	if in.Public != nil {
		l.Public = *in.Public
	}
	if in.VisibleToUsers != nil {
		l.VisibleToUsers = *in.VisibleToUsers
	}
	if in.VisibleToGroups != nil {
		l.VisibleToGroups = *in.VisibleToGroups
	}
	if err := s.store.UpdateList(ctx, l); err != nil {
		return nil, err
	}
	updated, err := s.store.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	return redact.List(updated, ave.ListAccess{Granted: true, Type: ave.AccessOwner}), nil
}

func (s *Service) DeleteList(ctx context.Context, session Session, listID string) error {
	if _, err := s.mutableList(ctx, session, listID); err != nil {
		return err
	}
	return s.store.SoftDeleteList(ctx, listID)
}

// GetPublicList serves the unauthenticated public view of a list.
func (s *Service) GetPublicList(ctx context.Context, listID string) (map[string]any, error) {
	l, err := s.store.GetList(ctx, listID)
	if err != nil {
		if isNoRows(err) {
			return nil, notFoundError("list not found")
		}
		return nil, err
	}
	if l.Deleted || !l.Public {
		return nil, notFoundError("list not found")
	}
	items, err := s.store.ListItemsInList(ctx, listID)
	if err != nil {
		return nil, err
	}

	creatorIDs := make([]string, 0, len(items))
	seen := map[string]bool{}
	for _, i := range items {
		if !seen[i.CreatedByID] {
			seen[i.CreatedByID] = true
			creatorIDs = append(creatorIDs, i.CreatedByID)
		}
	}
	publicCreators := map[string]bool{}
	if len(creatorIDs) > 0 {
		creators, err := s.store.ListUsersByIDs(ctx, creatorIDs)
		if err != nil {
			return nil, err
		}
		for _, u := range creators {
			if u.IsPublic && u.IsActive {
				publicCreators[u.ID] = true
			}
		}
	}
	return redact.PublicList(l, items, publicCreators), nil
}

// UnviewedCount reports how many accessible items in a list the caller has
// not marked viewed.
func (s *Service) UnviewedCount(ctx context.Context, session Session, listID string) (map[string]any, error) {
	v := s.viewerFor(session)
	l, access, err := s.accessibleList(ctx, v, listID)
	if err != nil {
		return nil, err
	}
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListUnviewedItemsInList(ctx, session.UserID, listID)
	if err != nil {
		return nil, err
	}
	accesses := map[string]ave.ListAccess{l.ID: access}
	count := 0
	for _, item := range items {
		if ave.CanViewItem(snap, item, accesses) {
			count++
		}
	}
	return map[string]any{"listId": listID, "unviewedCount": count}, nil
}

// accessibleList loads a list and checks view access; a denial reads like a
// missing list.
func (s *Service) accessibleList(ctx context.Context, v *viewer, listID string) (store.List, ave.ListAccess, error) {
	l, err := s.store.GetList(ctx, listID)
	if err != nil {
		if isNoRows(err) {
			return store.List{}, ave.ListAccess{}, notFoundError("list not found")
		}
		return store.List{}, ave.ListAccess{}, err
	}
	snap, err := v.snapshot(ctx)
	if err != nil {
		return store.List{}, ave.ListAccess{}, err
	}
	access := ave.CanAccessList(snap, l)
	if !access.Granted {
		return store.List{}, ave.ListAccess{}, notFoundError("list not found")
	}
	return l, access, nil
}

// mutableList loads a list and checks the owner-or-parent mutation rule.
func (s *Service) mutableList(ctx context.Context, session Session, listID string) (store.List, error) {
	l, err := s.store.GetList(ctx, listID)
	if err != nil {
		if isNoRows(err) {
			return store.List{}, notFoundError("list not found")
		}
		return store.List{}, err
	}
	if l.Deleted {
		return store.List{}, notFoundError("list not found")
	}
	if !s.ownsOrParents(ctx, session, l.OwnerID) {
		return store.List{}, notFoundError("list not found")
	}
	return l, nil
}
