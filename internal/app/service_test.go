package app

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"wishlane/api/internal/store"
)

// fakeStore implements the slices of Store the tests exercise. Unimplemented
// methods panic through the embedded interface.
type fakeStore struct {
	Store
	users     map[string]store.User
	groups    map[string]store.Group
	lists     map[string]store.List
	items     map[string]store.ListItem
	links     map[string][]store.ItemLink
	gettings  map[string][]store.Getting
	goInOns   map[string][]store.GoInOn
	proposals map[string]store.Proposal
	parts     map[string][]store.ProposalParticipant
	sessions  map[string]string
	pingErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[string]store.User{},
		groups:    map[string]store.Group{},
		lists:     map[string]store.List{},
		items:     map[string]store.ListItem{},
		links:     map[string][]store.ItemLink{},
		gettings:  map[string][]store.Getting{},
		goInOns:   map[string][]store.GoInOn{},
		proposals: map[string]store.Proposal{},
		parts:     map[string][]store.ProposalParticipant{},
		sessions:  map[string]string{},
	}
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) ListGroupsForUser(_ context.Context, userID string) ([]store.Group, error) {
	var out []store.Group
	for _, g := range f.groups {
		if g.Deleted {
			continue
		}
		if g.OwnerID == userID || containsString(g.MemberIDs, userID) ||
			containsString(g.AdminIDs, userID) || containsString(g.InvitedIDs, userID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeStore) ListSubusers(_ context.Context, parentID string) ([]store.User, error) {
	var out []store.User
	for _, u := range f.users {
		if u.ParentID != nil && *u.ParentID == parentID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) ListUsersByIDs(_ context.Context, ids []string) ([]store.User, error) {
	var out []store.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) FilterActiveUserIDs(_ context.Context, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		if u, ok := f.users[id]; ok && u.IsActive {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeStore) GetList(_ context.Context, id string) (store.List, error) {
	l, ok := f.lists[id]
	if !ok {
		return store.List{}, sql.ErrNoRows
	}
	return l, nil
}

func (f *fakeStore) ListListsByIDs(_ context.Context, ids []string) ([]store.List, error) {
	var out []store.List
	for _, id := range ids {
		if l, ok := f.lists[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateItem(_ context.Context, i store.ListItem) error {
	f.items[i.ID] = i
	return nil
}

func (f *fakeStore) GetItem(_ context.Context, id string) (store.ListItem, error) {
	i, ok := f.items[id]
	if !ok {
		return store.ListItem{}, sql.ErrNoRows
	}
	return i, nil
}

func (f *fakeStore) CreateItemLink(_ context.Context, link store.ItemLink) error {
	f.links[link.ItemID] = append(f.links[link.ItemID], link)
	return nil
}

func (f *fakeStore) ListItemLinks(_ context.Context, itemID string) ([]store.ItemLink, error) {
	return f.links[itemID], nil
}

func (f *fakeStore) ListGettingsForItem(_ context.Context, itemID string) ([]store.Getting, error) {
	return f.gettings[itemID], nil
}

func (f *fakeStore) ListGoInOnsForItem(_ context.Context, itemID string) ([]store.GoInOn, error) {
	return f.goInOns[itemID], nil
}

func (f *fakeStore) UpsertGetting(_ context.Context, g store.Getting) error {
	rows := f.gettings[g.ItemID]
	for i, existing := range rows {
		if existing.GiverID == g.GiverID && existing.GetterID == g.GetterID {
			rows[i] = g
			return nil
		}
	}
	f.gettings[g.ItemID] = append(rows, g)
	return nil
}

func (f *fakeStore) CreateProposal(_ context.Context, p store.Proposal, participants []store.ProposalParticipant) error {
	f.proposals[p.ID] = p
	f.parts[p.ID] = participants
	return nil
}

func (f *fakeStore) GetProposal(_ context.Context, id string) (store.Proposal, error) {
	p, ok := f.proposals[id]
	if !ok {
		return store.Proposal{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) ListProposalParticipants(_ context.Context, id string) ([]store.ProposalParticipant, error) {
	return f.parts[id], nil
}

func (f *fakeStore) RespondToProposal(_ context.Context, proposalID, userID string, accepted, rejected, isBuying bool) (string, error) {
	rows := f.parts[proposalID]
	for i, part := range rows {
		if part.UserID == userID {
			rows[i].Accepted = accepted
			rows[i].Rejected = rejected
			rows[i].IsBuying = isBuying
		}
	}
	status := store.ProposalAccepted
	for _, part := range rows {
		if part.Rejected {
			status = store.ProposalRejected
			break
		}
		if !part.Accepted {
			status = store.ProposalPending
		}
	}
	p := f.proposals[proposalID]
	p.Status = status
	f.proposals[proposalID] = p
	return status, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedSharedGroup sets up two active users sharing a group, with a list
// owned by the first and shared with the group.
func seedSharedGroup(f *fakeStore) {
	f.users["usr_alice"] = store.User{ID: "usr_alice", DisplayName: "Alice", IsActive: true}
	f.users["usr_bob"] = store.User{ID: "usr_bob", DisplayName: "Bob", IsActive: true}
	f.groups["grp_1"] = store.Group{ID: "grp_1", OwnerID: "usr_alice", MemberIDs: []string{"usr_bob"}}
	f.lists["lst_1"] = store.List{ID: "lst_1", OwnerID: "usr_alice", Name: "Birthday", VisibleToGroups: []string{"grp_1"}}
}

func TestGetItemHidesGiftIntentFromWisher(t *testing.T) {
	f := newFakeStore()
	seedSharedGroup(f)
	f.items["itm_1"] = store.ListItem{
		ID:                  "itm_1",
		CreatedByID:         "usr_alice",
		Name:                "Lego set",
		Lists:               []string{"lst_1"},
		MatchListVisibility: true,
	}
	f.gettings["itm_1"] = []store.Getting{
		{GiverID: "usr_bob", GetterID: "usr_alice", ItemID: "itm_1", Status: store.GettingBuying},
	}
	svc := NewService(f, nil, nil, nil, "", testLogger())
	ctx := context.Background()

	// The wisher sees the item but never the intent attached to it.
	payload, err := svc.GetItem(ctx, Session{UserID: "usr_alice"}, "itm_1")
	if err != nil {
		t.Fatalf("GetItem as wisher: %v", err)
	}
	if _, ok := payload["getting"]; ok {
		t.Fatal("getting key leaked to the wisher")
	}
	if _, ok := payload["goInOn"]; ok {
		t.Fatal("goInOn key leaked to the wisher")
	}

	// A group peer sees the full picture.
	payload, err = svc.GetItem(ctx, Session{UserID: "usr_bob"}, "itm_1")
	if err != nil {
		t.Fatalf("GetItem as giver: %v", err)
	}
	gettings, ok := payload["getting"].([]map[string]any)
	if !ok || len(gettings) != 1 {
		t.Fatalf("getting = %v", payload["getting"])
	}
	if gettings[0]["status"] != store.GettingBuying {
		t.Fatalf("status = %v", gettings[0]["status"])
	}
}

func TestCustomItemHiddenFromListOwner(t *testing.T) {
	f := newFakeStore()
	seedSharedGroup(f)
	svc := NewService(f, nil, nil, nil, "", testLogger())
	ctx := context.Background()

	payload, err := svc.CreateItem(ctx, Session{UserID: "usr_bob"}, CreateItemInput{
		Name:     "Surprise scarf",
		Lists:    []string{"lst_1"},
		IsCustom: true,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if payload["createdById"] != "usr_alice" {
		t.Fatalf("createdById = %v, want the list owner", payload["createdById"])
	}
	if payload["customItemCreator"] != "usr_bob" {
		t.Fatalf("customItemCreator = %v", payload["customItemCreator"])
	}
	itemID := payload["id"].(string)

	// The list owner cannot tell the item exists.
	if _, err := svc.GetItem(ctx, Session{UserID: "usr_alice"}, itemID); err == nil {
		t.Fatal("list owner can see the surprise item")
	} else {
		var de *DomainError
		if !asDomainError(err, &de) || de.Status != 404 {
			t.Fatalf("expected 404, got %v", err)
		}
	}

	// The arranging user still sees it.
	if _, err := svc.GetItem(ctx, Session{UserID: "usr_bob"}, itemID); err != nil {
		t.Fatalf("GetItem as arranger: %v", err)
	}
}

func TestProposalAcceptanceCreatesGettings(t *testing.T) {
	f := newFakeStore()
	seedSharedGroup(f)
	f.users["usr_carol"] = store.User{ID: "usr_carol", DisplayName: "Carol", IsActive: true}
	g := f.groups["grp_1"]
	g.MemberIDs = append(g.MemberIDs, "usr_carol")
	f.groups["grp_1"] = g
	f.items["itm_1"] = store.ListItem{
		ID:                  "itm_1",
		CreatedByID:         "usr_alice",
		Name:                "Telescope",
		Lists:               []string{"lst_1"},
		MatchListVisibility: true,
	}
	svc := NewService(f, nil, nil, nil, "", testLogger())
	ctx := context.Background()

	created, err := svc.CreateProposal(ctx, Session{UserID: "usr_bob"}, "itm_1", []ProposalParticipantInput{
		{UserID: "usr_carol"},
	})
	if err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}
	if created["status"] != store.ProposalPending {
		t.Fatalf("status = %v, want pending", created["status"])
	}
	proposalID := created["id"].(string)

	// The last acceptance flips the proposal and materializes gift intent
	// for every buyer.
	resolved, err := svc.RespondToProposal(ctx, Session{UserID: "usr_carol"}, proposalID, ProposalResponseInput{
		Accepted: true,
		IsBuying: true,
	})
	if err != nil {
		t.Fatalf("RespondToProposal: %v", err)
	}
	if resolved["status"] != store.ProposalAccepted {
		t.Fatalf("status = %v, want accepted", resolved["status"])
	}
	rows := f.gettings["itm_1"]
	if len(rows) != 2 {
		t.Fatalf("gettings = %+v, want one per buyer", rows)
	}
	for _, row := range rows {
		if row.ProposalID == nil || *row.ProposalID != proposalID {
			t.Fatalf("getting not linked to proposal: %+v", row)
		}
		if row.GetterID != "usr_alice" || row.Status != store.GettingBuying {
			t.Fatalf("unexpected getting: %+v", row)
		}
	}
}

func TestProposalAcceptanceFailsWhenItemMissing(t *testing.T) {
	f := newFakeStore()
	seedSharedGroup(f)
	f.users["usr_carol"] = store.User{ID: "usr_carol", DisplayName: "Carol", IsActive: true}
	g := f.groups["grp_1"]
	g.MemberIDs = append(g.MemberIDs, "usr_carol")
	f.groups["grp_1"] = g
	f.items["itm_1"] = store.ListItem{
		ID:                  "itm_1",
		CreatedByID:         "usr_alice",
		Name:                "Globe",
		Lists:               []string{"lst_1"},
		MatchListVisibility: true,
	}
	svc := NewService(f, nil, nil, nil, "", testLogger())
	ctx := context.Background()

	created, err := svc.CreateProposal(ctx, Session{UserID: "usr_bob"}, "itm_1", []ProposalParticipantInput{
		{UserID: "usr_carol"},
	})
	if err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}
	proposalID := created["id"].(string)
	delete(f.items, "itm_1")

	// The item load after the final acceptance must surface, not be
	// swallowed leaving the proposal accepted with no gift intent.
	_, err = svc.RespondToProposal(ctx, Session{UserID: "usr_carol"}, proposalID, ProposalResponseInput{
		Accepted: true,
		IsBuying: true,
	})
	if err == nil {
		t.Fatal("missing item swallowed on acceptance")
	}
	if len(f.gettings["itm_1"]) != 0 {
		t.Fatalf("gettings created for missing item: %+v", f.gettings["itm_1"])
	}
}

func TestProposalRejectionWins(t *testing.T) {
	f := newFakeStore()
	seedSharedGroup(f)
	f.items["itm_1"] = store.ListItem{
		ID:                  "itm_1",
		CreatedByID:         "usr_alice",
		Name:                "Kayak",
		Lists:               []string{"lst_1"},
		MatchListVisibility: true,
	}
	svc := NewService(f, nil, nil, nil, "", testLogger())
	ctx := context.Background()

	created, err := svc.CreateProposal(ctx, Session{UserID: "usr_bob"}, "itm_1", []ProposalParticipantInput{
		{UserID: "usr_alice"},
	})
	if err == nil {
		t.Fatal("wisher accepted as participant")
	}
	_ = created

	f.users["usr_carol"] = store.User{ID: "usr_carol", DisplayName: "Carol", IsActive: true}
	g := f.groups["grp_1"]
	g.MemberIDs = append(g.MemberIDs, "usr_carol")
	f.groups["grp_1"] = g

	created, err = svc.CreateProposal(ctx, Session{UserID: "usr_bob"}, "itm_1", []ProposalParticipantInput{
		{UserID: "usr_carol"},
	})
	if err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}
	proposalID := created["id"].(string)

	resolved, err := svc.RespondToProposal(ctx, Session{UserID: "usr_carol"}, proposalID, ProposalResponseInput{
		Rejected: true,
	})
	if err != nil {
		t.Fatalf("RespondToProposal: %v", err)
	}
	if resolved["status"] != store.ProposalRejected {
		t.Fatalf("status = %v, want rejected", resolved["status"])
	}
	if len(f.gettings["itm_1"]) != 0 {
		t.Fatalf("rejected proposal produced gettings: %+v", f.gettings["itm_1"])
	}
}

func TestBulkCreateIsolatesRowErrors(t *testing.T) {
	f := newFakeStore()
	seedSharedGroup(f)
	svc := NewService(f, nil, nil, nil, "", testLogger())

	out, err := svc.BulkCreateItems(context.Background(), Session{UserID: "usr_alice"}, []CreateItemInput{
		{Name: "Good one", Lists: []string{"lst_1"}},
		{Name: "", Lists: []string{"lst_1"}},
	})
	if err != nil {
		t.Fatalf("BulkCreateItems: %v", err)
	}
	if out["successCount"] != 1 {
		t.Fatalf("successCount = %v", out["successCount"])
	}
	if out["errorCount"] != 1 {
		t.Fatalf("errorCount = %v", out["errorCount"])
	}
	rows := out["errors"].([]map[string]any)
	if len(rows) != 1 || rows[0]["index"] != 1 {
		t.Fatalf("errors = %v", rows)
	}
}

func TestPaginationBounds(t *testing.T) {
	f := newFakeStore()
	seedSharedGroup(f)
	svc := NewService(f, nil, nil, nil, "", testLogger())
	ctx := context.Background()

	for _, tc := range []struct{ limit, offset int }{
		{0, 0}, {1001, 0}, {10, -1},
	} {
		_, err := svc.ListMyLists(ctx, Session{UserID: "usr_alice"}, tc.limit, tc.offset)
		var de *DomainError
		if !asDomainError(err, &de) || de.Status != 400 {
			t.Fatalf("limit=%d offset=%d: expected validation error, got %v", tc.limit, tc.offset, err)
		}
	}
}
