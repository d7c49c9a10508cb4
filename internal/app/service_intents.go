package app

import (
	"context"

	"wishlane/api/internal/ave"
	"wishlane/api/internal/redact"
	"wishlane/api/internal/store"
)

func validGettingStatus(status string) bool {
	switch status {
	case store.GettingWant, store.GettingBuying, store.GettingBought, store.GettingWrapped, store.GettingGiven:
		return true
	}
	return false
}

// SetGetting marks the caller as getting an item for its wisher. The wisher
// can never take this action on their own items, which is the same rule
// that hides the resulting state from them.
func (s *Service) SetGetting(ctx context.Context, session Session, itemID, status string) (map[string]any, error) {
	if !validGettingStatus(status) {
		return nil, validationError("invalid getting status")
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	item, err := s.visibleItem(ctx, snap, itemID)
	if err != nil {
		return nil, err
	}
	if !ave.CanSeeGotten(snap, item) {
		return nil, notFoundError("item not found")
	}
	g := store.Getting{
		GiverID:  session.UserID,
		GetterID: item.CreatedByID,
		ItemID:   item.ID,
		Status:   status,
	}
	if err := s.store.UpsertGetting(ctx, g); err != nil {
		return nil, err
	}
	return s.buildItemPayload(ctx, snap, item)
}

func (s *Service) ClearGetting(ctx context.Context, session Session, itemID string) (map[string]any, error) {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	item, err := s.visibleItem(ctx, snap, itemID)
	if err != nil {
		return nil, err
	}
	if !ave.CanSeeGotten(snap, item) {
		return nil, notFoundError("item not found")
	}
	if err := s.store.DeleteGetting(ctx, session.UserID, item.CreatedByID, item.ID); err != nil {
		return nil, err
	}
	return s.buildItemPayload(ctx, snap, item)
}

// SetGoInOn registers the caller's interest in splitting the cost of an
// item.
func (s *Service) SetGoInOn(ctx context.Context, session Session, itemID string) (map[string]any, error) {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	item, err := s.visibleItem(ctx, snap, itemID)
	if err != nil {
		return nil, err
	}
	if !ave.CanSeeGotten(snap, item) {
		return nil, notFoundError("item not found")
	}
	g := store.GoInOn{
		GiverID:  session.UserID,
		GetterID: item.CreatedByID,
		ItemID:   item.ID,
	}
	if err := s.store.UpsertGoInOn(ctx, g); err != nil {
		return nil, err
	}
	return s.buildItemPayload(ctx, snap, item)
}

func (s *Service) ClearGoInOn(ctx context.Context, session Session, itemID string) (map[string]any, error) {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	item, err := s.visibleItem(ctx, snap, itemID)
	if err != nil {
		return nil, err
	}
	if !ave.CanSeeGotten(snap, item) {
		return nil, notFoundError("item not found")
	}
	if err := s.store.DeleteGoInOn(ctx, session.UserID, item.CreatedByID, item.ID); err != nil {
		return nil, err
	}
	return s.buildItemPayload(ctx, snap, item)
}

// ListMyGettings returns the caller's own gift intents toward one
// recipient.
func (s *Service) ListMyGettings(ctx context.Context, session Session, getterID string) (map[string]any, error) {
	if getterID == "" {
		return nil, validationError("getterId is required")
	}
	gettings, err := s.store.ListGettingsByGiver(ctx, session.UserID, getterID)
	if err != nil {
		return nil, err
	}
	goInOns, err := s.store.ListGoInOnsByGiver(ctx, session.UserID, getterID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"getting": redact.Gettings(gettings),
		"goInOn":  redact.GoInOns(goInOns),
	}, nil
}
