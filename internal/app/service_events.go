package app

import (
	"context"
	"strings"
	"time"

	"wishlane/api/internal/ave"
	"wishlane/api/internal/family"
	"wishlane/api/internal/redact"
	"wishlane/api/internal/store"
	"wishlane/api/internal/util"
)

type CreateEventInput struct {
	Name      string     `json:"name"`
	DueDate   *time.Time `json:"dueDate"`
	ViewerIDs []string   `json:"viewerIds"`
}

func (s *Service) CreateEvent(ctx context.Context, session Session, in CreateEventInput) (map[string]any, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, validationError("event name is required")
	}
	e := store.Event{
		ID:        util.NewID("evt"),
		OwnerID:   session.UserID,
		Name:      strings.TrimSpace(in.Name),
		DueDate:   in.DueDate,
		ViewerIDs: in.ViewerIDs,
	}
	if err := s.store.CreateEvent(ctx, e); err != nil {
		return nil, err
	}
	created, err := s.store.GetEvent(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	return redact.Event(created), nil
}

func (s *Service) ListEvents(ctx context.Context, session Session) ([]map[string]any, error) {
	events, err := s.store.ListEventsForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		out = append(out, redact.Event(e))
	}
	return out, nil
}

// GetEvent composes the planning view: the event, its recipients, and for
// each recipient the caller's own gift intents, enriched with proposals and
// with visible co-givers on shared items.
func (s *Service) GetEvent(ctx context.Context, session Session, eventID string) (map[string]any, error) {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	e, err := s.accessibleEvent(ctx, snap, eventID)
	if err != nil {
		return nil, err
	}
	recipients, err := s.store.ListEventRecipients(ctx, eventID)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(recipients))
	for _, r := range recipients {
		row := redact.EventRecipient(r)

		gettings, err := s.store.ListGettingsByGiver(ctx, session.UserID, r.UserID)
		if err != nil {
			return nil, err
		}
		gettingRows := redact.Gettings(gettings)
		for i, g := range gettings {
			if g.ProposalID == nil {
				continue
			}
			payload, err := s.proposalPayload(ctx, *g.ProposalID)
			if err != nil {
				continue
			}
			gettingRows[i]["proposal"] = payload
		}
		row["getting"] = gettingRows

		goInOns, err := s.store.ListGoInOnsByGiver(ctx, session.UserID, r.UserID)
		if err != nil {
			return nil, err
		}
		goInOnRows := redact.GoInOns(goInOns)
		for i, g := range goInOns {
			others, err := s.visibleCoGivers(ctx, snap, g.ItemID, session.UserID)
			if err != nil {
				return nil, err
			}
			goInOnRows[i]["alsoGoingIn"] = others
		}
		row["goInOn"] = goInOnRows

		rows = append(rows, row)
	}

	out := redact.Event(e)
	out["recipients"] = rows
	return out, nil
}

// visibleCoGivers lists the other givers going in on an item, filtered to
// those the caller is allowed to see.
func (s *Service) visibleCoGivers(ctx context.Context, snap *family.Snapshot, itemID, selfID string) ([]map[string]any, error) {
	all, err := s.store.ListGoInOnsForItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	giverIDs := make([]string, 0, len(all))
	for _, g := range all {
		if g.GiverID != selfID {
			giverIDs = append(giverIDs, g.GiverID)
		}
	}
	if len(giverIDs) == 0 {
		return []map[string]any{}, nil
	}
	givers, err := s.store.ListUsersByIDs(ctx, giverIDs)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(givers))
	for _, u := range givers {
		if !ave.CanViewUser(snap, u) {
			continue
		}
		out = append(out, map[string]any{"userId": u.ID, "name": u.DisplayName})
	}
	return out, nil
}

type UpdateEventInput struct {
	Name      *string    `json:"name"`
	DueDate   *time.Time `json:"dueDate"`
	ViewerIDs *[]string  `json:"viewerIds"`
	Archived  *bool      `json:"archived"`
}

// UpdateEvent mutates event metadata. Only the owner may do this.
func (s *Service) UpdateEvent(ctx context.Context, session Session, eventID string, in UpdateEventInput) (map[string]any, error) {
	e, err := s.ownedEvent(ctx, session, eventID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, validationError("event name must not be empty")
		}
		e.Name = strings.TrimSpace(*in.Name)
	}
	if in.DueDate != nil {
		e.DueDate = in.DueDate
	}
	if in.ViewerIDs != nil {
		e.ViewerIDs = *in.ViewerIDs
	}
	if in.Archived != nil {
		e.Archived = *in.Archived
	}
	if err := s.store.UpdateEvent(ctx, e); err != nil {
		return nil, err
	}
	updated, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return redact.Event(updated), nil
}

func (s *Service) DeleteEvent(ctx context.Context, session Session, eventID string) error {
	if _, err := s.ownedEvent(ctx, session, eventID); err != nil {
		return err
	}
	return s.store.SoftDeleteEvent(ctx, eventID)
}

type EventRecipientInput struct {
	UserID string   `json:"userId"`
	Note   string   `json:"note"`
	Budget *float64 `json:"budget"`
	Status string   `json:"status"`
}

// UpsertEventRecipient adds or edits a recipient row. Owner and viewers may
// both do this, but only for people they can already see.
func (s *Service) UpsertEventRecipient(ctx context.Context, session Session, eventID string, in EventRecipientInput) (map[string]any, error) {
	if in.UserID == "" {
		return nil, validationError("recipient userId is required")
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.accessibleEvent(ctx, snap, eventID); err != nil {
		return nil, err
	}
	target, err := s.store.GetUserByID(ctx, in.UserID)
	if err != nil {
		if isNoRows(err) {
			return nil, notFoundError("recipient not found")
		}
		return nil, err
	}
	if !ave.CanViewUser(snap, target) {
		return nil, notFoundError("recipient not found")
	}
	r := store.EventRecipient{
		EventID: eventID,
		UserID:  in.UserID,
		Note:    in.Note,
		Budget:  in.Budget,
		Status:  in.Status,
	}
	if err := s.store.UpsertEventRecipient(ctx, r); err != nil {
		return nil, err
	}
	return redact.EventRecipient(r), nil
}

func (s *Service) DeleteEventRecipient(ctx context.Context, session Session, eventID, userID string) error {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return err
	}
	if _, err := s.accessibleEvent(ctx, snap, eventID); err != nil {
		return err
	}
	return s.store.DeleteEventRecipient(ctx, eventID, userID)
}

func (s *Service) accessibleEvent(ctx context.Context, snap *family.Snapshot, eventID string) (store.Event, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if isNoRows(err) {
			return store.Event{}, notFoundError("event not found")
		}
		return store.Event{}, err
	}
	if e.Deleted || !ave.CanAccessEvent(snap, e) {
		return store.Event{}, notFoundError("event not found")
	}
	return e, nil
}

func (s *Service) ownedEvent(ctx context.Context, session Session, eventID string) (store.Event, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if isNoRows(err) {
			return store.Event{}, notFoundError("event not found")
		}
		return store.Event{}, err
	}
	if e.Deleted || e.OwnerID != session.UserID {
		return store.Event{}, notFoundError("event not found")
	}
	return e, nil
}
