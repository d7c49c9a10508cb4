package app

import (
	"context"

	"wishlane/api/internal/ave"
)

// MarkItemsViewed records that the caller has seen a batch of items.
// Already-recorded views are ignored, so the call is idempotent.
func (s *Service) MarkItemsViewed(ctx context.Context, session Session, itemIDs []string) (map[string]any, error) {
	if len(itemIDs) == 0 {
		return nil, validationError("itemIds are required")
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	// Only items the caller can actually see count as viewed.
	viewable := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		if _, err := s.visibleItem(ctx, snap, id); err != nil {
			var de *DomainError
			if asDomainError(err, &de) && de.Status == 404 {
				continue
			}
			return nil, err
		}
		viewable = append(viewable, id)
	}
	if len(viewable) > 0 {
		if err := s.store.MarkItemsViewed(ctx, session.UserID, viewable); err != nil {
			return nil, err
		}
	}
	return map[string]any{"markedCount": len(viewable)}, nil
}

// MarkListSeen marks every visible item in a list as viewed.
func (s *Service) MarkListSeen(ctx context.Context, session Session, listID string) (map[string]any, error) {
	v := s.viewerFor(session)
	l, access, err := s.accessibleList(ctx, v, listID)
	if err != nil {
		return nil, err
	}
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListItemsInList(ctx, listID)
	if err != nil {
		return nil, err
	}
	accesses := map[string]ave.ListAccess{l.ID: access}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.Deleted || !ave.CanViewItem(snap, item, accesses) {
			continue
		}
		ids = append(ids, item.ID)
	}
	if len(ids) > 0 {
		if err := s.store.MarkItemsViewed(ctx, session.UserID, ids); err != nil {
			return nil, err
		}
	}
	return map[string]any{"markedCount": len(ids)}, nil
}

// ListViewedItems returns the ids of items the caller has marked viewed.
func (s *Service) ListViewedItems(ctx context.Context, session Session) (map[string]any, error) {
	ids, err := s.store.ListViewedItemIDs(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return map[string]any{"itemIds": ids}, nil
}

// ListItemViewers reports who has seen an item. Only users who could see
// the item anyway learn this, and viewer identities are filtered the same
// way.
func (s *Service) ListItemViewers(ctx context.Context, session Session, itemID string) (map[string]any, error) {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.visibleItem(ctx, snap, itemID); err != nil {
		return nil, err
	}
	views, err := s.store.ListItemViewers(ctx, itemID)
	if err != nil {
		return nil, err
	}
	userIDs := make([]string, 0, len(views))
	for _, view := range views {
		userIDs = append(userIDs, view.UserID)
	}
	var visible []map[string]any
	if len(userIDs) > 0 {
		users, err := s.store.ListUsersByIDs(ctx, userIDs)
		if err != nil {
			return nil, err
		}
		viewedAt := make(map[string]any, len(views))
		for _, view := range views {
			viewedAt[view.UserID] = view.ViewedAt
		}
		for _, u := range users {
			if !ave.CanViewUser(snap, u) {
				continue
			}
			visible = append(visible, map[string]any{
				"userId":   u.ID,
				"name":     u.DisplayName,
				"viewedAt": viewedAt[u.ID],
			})
		}
	}
	if visible == nil {
		visible = []map[string]any{}
	}
	return map[string]any{"itemId": itemID, "viewers": visible}, nil
}

// ItemViewCount reports how many users have seen an item.
func (s *Service) ItemViewCount(ctx context.Context, session Session, itemID string) (map[string]any, error) {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.visibleItem(ctx, snap, itemID); err != nil {
		return nil, err
	}
	count, err := s.store.CountItemViews(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"itemId": itemID, "viewCount": count}, nil
}
