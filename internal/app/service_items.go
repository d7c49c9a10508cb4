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

// ItemLinkInput is an external link attached to an item.
type ItemLinkInput struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// CreateItemInput is the create payload for items.
type CreateItemInput struct {
	Name                string          `json:"name"`
	Price               *float64        `json:"price"`
	MinPrice            *float64        `json:"minPrice"`
	MaxPrice            *float64        `json:"maxPrice"`
	Notes               string          `json:"notes"`
	AmountWantedMin     int             `json:"amountWantedMin"`
	AmountWantedMax     int             `json:"amountWantedMax"`
	Priority            int             `json:"priority"`
	Lists               []string        `json:"lists"`
	VisibleToUsers      []string        `json:"visibleToUsers"`
	VisibleToGroups     []string        `json:"visibleToGroups"`
	IsPublic            bool            `json:"isPublic"`
	MatchListVisibility bool            `json:"matchListVisibility"`
	IsCustom            bool            `json:"isCustom"`
	DeleteOnDate        *time.Time      `json:"deleteOnDate"`
	Links               []ItemLinkInput `json:"links"`
}

// CreateItem adds an item to one or more lists. A non-owner adding a custom
// item creates it on the list owner's behalf: the row is attributed to the
// owner while customItemCreator records who actually added it, which is what
// keeps the surprise hidden from the owner.
func (s *Service) CreateItem(ctx context.Context, session Session, in CreateItemInput) (map[string]any, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, validationError("item name is required")
	}
	if len(in.Lists) == 0 {
		return nil, validationError("item must belong to at least one list")
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	lists, ownerParents, err := s.listsWithOwnerParents(ctx, in.Lists)
	if err != nil {
		return nil, err
	}

	item := store.ListItem{
		ID:                  util.NewID("itm"),
		CreatedByID:         session.UserID,
		Name:                strings.TrimSpace(in.Name),
		Price:               in.Price,
		MinPrice:            in.MinPrice,
		MaxPrice:            in.MaxPrice,
		Notes:               in.Notes,
		AmountWantedMin:     in.AmountWantedMin,
		AmountWantedMax:     in.AmountWantedMax,
		Priority:            in.Priority,
		Lists:               in.Lists,
		VisibleToUsers:      in.VisibleToUsers,
		VisibleToGroups:     in.VisibleToGroups,
		IsPublic:            in.IsPublic,
		MatchListVisibility: in.MatchListVisibility,
		DeleteOnDate:        in.DeleteOnDate,
	}

	if in.IsCustom && lists[0].OwnerID != session.UserID && !s.isParentOf(ctx, session, lists[0].OwnerID) {
		if len(lists) != 1 {
			return nil, validationError("a custom item can only be added to a single list")
		}
		access := ave.CanAccessList(snap, lists[0])
		if !access.Granted || (access.Type != ave.AccessOwner && !access.ExplicitlyInvited) {
			return nil, notFoundError("list not found")
		}
		creator := session.UserID
		item.CreatedByID = lists[0].OwnerID
		item.IsCustom = true
		item.CustomItemCreator = &creator
		// Custom items never match list visibility or go public; the
		// engine ignores those flags for them anyway.
		item.IsPublic = false
		item.MatchListVisibility = false
	} else {
		if !ave.CanAddToLists(snap, lists, ownerParents) {
			return nil, notFoundError("list not found")
		}
		item.IsCustom = in.IsCustom
	}

	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	for _, link := range in.Links {
		if link.URL == "" {
			continue
		}
		l := store.ItemLink{ID: util.NewID("lnk"), ItemID: item.ID, Label: link.Label, URL: link.URL}
		if err := s.store.CreateItemLink(ctx, l); err != nil {
			return nil, err
		}
	}
	return s.itemPayload(ctx, snap, item.ID)
}

// bulkOutcome is the response shape of the bulk endpoints that isolate
// per-row failures.
type bulkOutcome struct {
	success int
	errors  []map[string]any
}

func (b *bulkOutcome) fail(index int, err error) {
	msg := err.Error()
	var de *DomainError
	if asDomainError(err, &de) {
		msg = de.Message
	}
	b.errors = append(b.errors, map[string]any{"index": index, "error": msg})
}

func (b *bulkOutcome) payload(extra map[string]any) map[string]any {
	out := map[string]any{
		"successCount": b.success,
		"errorCount":   len(b.errors),
		"errors":       b.errors,
	}
	if b.errors == nil {
		out["errors"] = []map[string]any{}
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// BulkCreateItems creates many items in one call. Rows fail independently.
func (s *Service) BulkCreateItems(ctx context.Context, session Session, inputs []CreateItemInput) (map[string]any, error) {
	if len(inputs) == 0 {
		return nil, validationError("items are required")
	}
	var out bulkOutcome
	created := make([]map[string]any, 0, len(inputs))
	for i, in := range inputs {
		payload, err := s.CreateItem(ctx, session, in)
		if err != nil {
			out.fail(i, err)
			continue
		}
		out.success++
		created = append(created, payload)
	}
	return out.payload(map[string]any{"items": created}), nil
}

// GetItem returns a single item if the visibility engine grants it.
func (s *Service) GetItem(ctx context.Context, session Session, itemID string) (map[string]any, error) {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	item, err := s.visibleItem(ctx, snap, itemID)
	if err != nil {
		return nil, err
	}
	return s.buildItemPayload(ctx, snap, item)
}

type UpdateItemInput struct {
	Name            *string    `json:"name"`
	Price           *float64   `json:"price"`
	MinPrice        *float64   `json:"minPrice"`
	MaxPrice        *float64   `json:"maxPrice"`
	Notes           *string    `json:"notes"`
	AmountWantedMin *int       `json:"amountWantedMin"`
	AmountWantedMax *int       `json:"amountWantedMax"`
	Priority        *int       `json:"priority"`
	VisibleToUsers  *[]string  `json:"visibleToUsers"`
	VisibleToGroups *[]string  `json:"visibleToGroups"`
	IsPublic        *bool      `json:"isPublic"`
	MatchList       *bool      `json:"matchListVisibility"`
	DeleteOnDate    *time.Time `json:"deleteOnDate"`
}

func (s *Service) UpdateItem(ctx context.Context, session Session, itemID string, in UpdateItemInput) (map[string]any, error) {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	item, err := s.modifiableItem(ctx, snap, itemID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, validationError("item name must not be empty")
		}
		item.Name = strings.TrimSpace(*in.Name)
	}
	if in.Price != nil {
		item.Price = in.Price
	}
	if in.MinPrice != nil {
		item.MinPrice = in.MinPrice
	}
	if in.MaxPrice != nil {
		item.MaxPrice = in.MaxPrice
	}
	if in.Notes != nil {
		item.Notes = *in.Notes
	}
	if in.AmountWantedMin != nil {
		item.AmountWantedMin = *in.AmountWantedMin
	}
	if in.AmountWantedMax != nil {
		item.AmountWantedMax = *in.AmountWantedMax
	}
	if in.Priority != nil {
		item.Priority = *in.Priority
	}
	if in.VisibleToUsers != nil {
		item.VisibleToUsers = *in.VisibleToUsers
	}
	if in.VisibleToGroups != nil {
		item.VisibleToGroups = *in.VisibleToGroups
	}
	if in.IsPublic != nil && !item.IsCustom {
		item.IsPublic = *in.IsPublic
	}
	if in.MatchList != nil && !item.IsCustom {
		item.MatchListVisibility = *in.MatchList
	}
	if in.DeleteOnDate != nil {
		item.DeleteOnDate = in.DeleteOnDate
	}
	if err := s.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return s.itemPayload(ctx, snap, itemID)
}

func (s *Service) DeleteItem(ctx context.Context, session Session, itemID string) error {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return err
	}
	if _, err := s.modifiableItem(ctx, snap, itemID); err != nil {
		return err
	}
	return s.store.SoftDeleteItem(ctx, itemID)
}

// BulkDeleteItems removes a batch of items atomically: if any item is not
// deletable by the caller, nothing is deleted.
func (s *Service) BulkDeleteItems(ctx context.Context, session Session, itemIDs []string) (map[string]any, error) {
	if len(itemIDs) == 0 {
		return nil, validationError("itemIds are required")
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range itemIDs {
		if _, err := s.modifiableItem(ctx, snap, id); err != nil {
			return nil, err
		}
	}
	if err := s.store.SoftDeleteItems(ctx, itemIDs); err != nil {
		return nil, err
	}
	return map[string]any{"deletedCount": len(itemIDs)}, nil
}

// BulkAddToList appends items to a list. Rows fail independently.
func (s *Service) BulkAddToList(ctx context.Context, session Session, itemIDs []string, listID string) (map[string]any, error) {
	if len(itemIDs) == 0 {
		return nil, validationError("itemIds are required")
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	lists, ownerParents, err := s.listsWithOwnerParents(ctx, []string{listID})
	if err != nil {
		return nil, err
	}
	if !ave.CanAddToLists(snap, lists, ownerParents) {
		return nil, notFoundError("list not found")
	}

	var out bulkOutcome
	for i, id := range itemIDs {
		item, err := s.modifiableItem(ctx, snap, id)
		if err != nil {
			out.fail(i, err)
			continue
		}
		if containsString(item.Lists, listID) {
			out.success++
			continue
		}
		if err := s.store.UpdateItemLists(ctx, id, append(item.Lists, listID)); err != nil {
			out.fail(i, err)
			continue
		}
		out.success++
	}
	return out.payload(nil), nil
}

// VisibilityUpdate is one row of a bulk visibility change.
type VisibilityUpdate struct {
	ItemID              string   `json:"itemId"`
	VisibleToUsers      []string `json:"visibleToUsers"`
	VisibleToGroups     []string `json:"visibleToGroups"`
	MatchListVisibility bool     `json:"matchListVisibility"`
}

func (s *Service) BulkUpdateVisibility(ctx context.Context, session Session, updates []VisibilityUpdate) (map[string]any, error) {
	if len(updates) == 0 {
		return nil, validationError("updates are required")
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var out bulkOutcome
	for i, u := range updates {
		if _, err := s.modifiableItem(ctx, snap, u.ItemID); err != nil {
			out.fail(i, err)
			continue
		}
		if err := s.store.UpdateItemVisibility(ctx, u.ItemID, u.VisibleToUsers, u.VisibleToGroups, u.MatchListVisibility); err != nil {
			out.fail(i, err)
			continue
		}
		out.success++
	}
	return out.payload(nil), nil
}

// PublicityUpdate is one row of a bulk publicity/priority change.
type PublicityUpdate struct {
	ItemID   string `json:"itemId"`
	IsPublic bool   `json:"isPublic"`
	Priority int    `json:"priority"`
}

func (s *Service) BulkUpdatePublicity(ctx context.Context, session Session, updates []PublicityUpdate) (map[string]any, error) {
	if len(updates) == 0 {
		return nil, validationError("updates are required")
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var out bulkOutcome
	for i, u := range updates {
		item, err := s.modifiableItem(ctx, snap, u.ItemID)
		if err != nil {
			out.fail(i, err)
			continue
		}
		if item.IsCustom && u.IsPublic {
			out.fail(i, validationError("custom items cannot be public"))
			continue
		}
		if err := s.store.UpdateItemPublicityPriority(ctx, u.ItemID, u.IsPublic, u.Priority); err != nil {
			out.fail(i, err)
			continue
		}
		out.success++
	}
	return out.payload(nil), nil
}

// DeleteOnDateUpdate is one row of a bulk expiry change. A nil date clears
// the expiry.
type DeleteOnDateUpdate struct {
	ItemID       string     `json:"itemId"`
	DeleteOnDate *time.Time `json:"deleteOnDate"`
}

func (s *Service) BulkUpdateDeleteOnDate(ctx context.Context, session Session, updates []DeleteOnDateUpdate) (map[string]any, error) {
	if len(updates) == 0 {
		return nil, validationError("updates are required")
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var out bulkOutcome
	for i, u := range updates {
		if _, err := s.modifiableItem(ctx, snap, u.ItemID); err != nil {
			out.fail(i, err)
			continue
		}
		if err := s.store.UpdateItemDeleteOnDate(ctx, u.ItemID, u.DeleteOnDate); err != nil {
			out.fail(i, err)
			continue
		}
		out.success++
	}
	return out.payload(nil), nil
}

// ListAssignmentUpdate is one row of a bulk list reassignment.
type ListAssignmentUpdate struct {
	ItemID string   `json:"itemId"`
	Lists  []string `json:"lists"`
}

func (s *Service) BulkUpdateListAssignments(ctx context.Context, session Session, updates []ListAssignmentUpdate) (map[string]any, error) {
	if len(updates) == 0 {
		return nil, validationError("updates are required")
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var out bulkOutcome
	for i, u := range updates {
		if len(u.Lists) == 0 {
			out.fail(i, validationError("item must belong to at least one list"))
			continue
		}
		if _, err := s.modifiableItem(ctx, snap, u.ItemID); err != nil {
			out.fail(i, err)
			continue
		}
		lists, ownerParents, err := s.listsWithOwnerParents(ctx, u.Lists)
		if err != nil {
			out.fail(i, err)
			continue
		}
		if !ave.CanAddToLists(snap, lists, ownerParents) {
			out.fail(i, notFoundError("list not found"))
			continue
		}
		if err := s.store.UpdateItemLists(ctx, u.ItemID, u.Lists); err != nil {
			out.fail(i, err)
			continue
		}
		out.success++
	}
	return out.payload(nil), nil
}

// AddItemLink attaches an external link to an item.
func (s *Service) AddItemLink(ctx context.Context, session Session, itemID string, in ItemLinkInput) (map[string]any, error) {
	if in.URL == "" {
		return nil, validationError("link url is required")
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.modifiableItem(ctx, snap, itemID); err != nil {
		return nil, err
	}
	link := store.ItemLink{ID: util.NewID("lnk"), ItemID: itemID, Label: in.Label, URL: in.URL}
	if err := s.store.CreateItemLink(ctx, link); err != nil {
		return nil, err
	}
	return map[string]any{"id": link.ID, "label": link.Label, "url": link.URL}, nil
}

func (s *Service) DeleteItemLink(ctx context.Context, session Session, itemID, linkID string) error {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return err
	}
	if _, err := s.modifiableItem(ctx, snap, itemID); err != nil {
		return err
	}
	return s.store.DeleteItemLink(ctx, linkID)
}

// visibleItem loads an item and applies the view rules. Denials and missing
// rows are indistinguishable in the response.
func (s *Service) visibleItem(ctx context.Context, snap *family.Snapshot, itemID string) (store.ListItem, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		if isNoRows(err) {
			return store.ListItem{}, notFoundError("item not found")
		}
		return store.ListItem{}, err
	}
	if item.Deleted {
		return store.ListItem{}, notFoundError("item not found")
	}
	accesses, err := s.listAccesses(ctx, snap, item.Lists)
	if err != nil {
		return store.ListItem{}, err
	}
	if !ave.CanViewItem(snap, item, accesses) {
		return store.ListItem{}, notFoundError("item not found")
	}
	return item, nil
}

// modifiableItem loads an item and applies the modify rules (creator,
// creator's parent, or the custom-item creator).
func (s *Service) modifiableItem(ctx context.Context, snap *family.Snapshot, itemID string) (store.ListItem, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		if isNoRows(err) {
			return store.ListItem{}, notFoundError("item not found")
		}
		return store.ListItem{}, err
	}
	if item.Deleted {
		return store.ListItem{}, notFoundError("item not found")
	}
	var creatorParentID *string
	if creator, err := s.store.GetUserByID(ctx, item.CreatedByID); err == nil {
		creatorParentID = creator.ParentID
	}
	if !ave.CanModifyItem(snap, item, creatorParentID) {
		return store.ListItem{}, notFoundError("item not found")
	}
	return item, nil
}

// listAccesses evaluates list access for every id the item references.
func (s *Service) listAccesses(ctx context.Context, snap *family.Snapshot, listIDs []string) (map[string]ave.ListAccess, error) {
	if len(listIDs) == 0 {
		return map[string]ave.ListAccess{}, nil
	}
	lists, err := s.store.ListListsByIDs(ctx, listIDs)
	if err != nil {
		return nil, err
	}
	accesses := make(map[string]ave.ListAccess, len(lists))
	for _, l := range lists {
		accesses[l.ID] = ave.CanAccessList(snap, l)
	}
	return accesses, nil
}

// listsWithOwnerParents loads lists by id (failing if any is missing or
// deleted) and resolves each owner's parent for the add-to-list rule.
func (s *Service) listsWithOwnerParents(ctx context.Context, listIDs []string) ([]store.List, map[string]*string, error) {
	lists, err := s.store.ListListsByIDs(ctx, listIDs)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]store.List, len(lists))
	for _, l := range lists {
		byID[l.ID] = l
	}
	for _, id := range listIDs {
		l, ok := byID[id]
		if !ok || l.Deleted {
			return nil, nil, notFoundError("list not found")
		}
	}
	ownerParents := make(map[string]*string, len(lists))
	for _, l := range lists {
		if _, done := ownerParents[l.OwnerID]; done {
			continue
		}
		owner, err := s.store.GetUserByID(ctx, l.OwnerID)
		if err != nil {
			if isNoRows(err) {
				return nil, nil, notFoundError("list not found")
			}
			return nil, nil, err
		}
		ownerParents[l.OwnerID] = owner.ParentID
	}
	return lists, ownerParents, nil
}

// itemPayload reloads an item and serializes it for the caller.
func (s *Service) itemPayload(ctx context.Context, snap *family.Snapshot, itemID string) (map[string]any, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.buildItemPayload(ctx, snap, item)
}

// buildItemPayload serializes an already-authorized item, attaching links
// and, when the spoiler rules allow, gift intents.
func (s *Service) buildItemPayload(ctx context.Context, snap *family.Snapshot, item store.ListItem) (map[string]any, error) {
	links, err := s.store.ListItemLinks(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	opts := redact.ItemOpts{Links: links}
	if ave.CanSeeGotten(snap, item) {
		opts.CanSeeGotten = true
		opts.Gettings, err = s.store.ListGettingsForItem(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		opts.GoInOns, err = s.store.ListGoInOnsForItem(ctx, item.ID)
		if err != nil {
			return nil, err
		}
	}
	return redact.Item(item, opts), nil
}

// itemPayloads filters a batch of items through the view rules and
// serializes the survivors.
func (s *Service) itemPayloads(ctx context.Context, snap *family.Snapshot, items []store.ListItem, accesses map[string]ave.ListAccess) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if item.Deleted || !ave.CanViewItem(snap, item, accesses) {
			continue
		}
		payload, err := s.buildItemPayload(ctx, snap, item)
		if err != nil {
			return nil, err
		}
		out = append(out, payload)
	}
	return out, nil
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
