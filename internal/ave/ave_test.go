package ave

import (
	"testing"

	"wishlane/api/internal/family"
	"wishlane/api/internal/store"
)

func snapFor(userID string, groupIDs ...string) *family.Snapshot {
	s := &family.Snapshot{
		UserID:     userID,
		GroupIDs:   make(map[string]bool),
		GroupPeers: make(map[string]bool),
		Family:     map[string]bool{userID: true},
		Accessible: map[string]bool{userID: true},
	}
	for _, id := range groupIDs {
		s.GroupIDs[id] = true
	}
	return s
}

func strptr(s string) *string { return &s }

func TestCanAccessListPriority(t *testing.T) {
	l := store.List{
		ID:              "l1",
		OwnerID:         "alice",
		Public:          true,
		VisibleToUsers:  []string{"bob"},
		VisibleToGroups: []string{"g1"},
	}

	cases := []struct {
		name    string
		snap    *family.Snapshot
		granted bool
		typ     AccessType
		invited bool
	}{
		{name: "owner wins over public", snap: snapFor("alice", "g1"), granted: true, typ: AccessOwner},
		{name: "explicit user wins over group", snap: snapFor("bob", "g1"), granted: true, typ: AccessExplicitUser, invited: true},
		{name: "group member", snap: snapFor("carol", "g1"), granted: true, typ: AccessExplicitGroup, invited: true},
		{name: "public fallback", snap: snapFor("dave"), granted: true, typ: AccessPublic},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CanAccessList(tc.snap, l)
			if got.Granted != tc.granted || got.Type != tc.typ || got.ExplicitlyInvited != tc.invited {
				t.Fatalf("CanAccessList = %+v, want granted=%v type=%s invited=%v", got, tc.granted, tc.typ, tc.invited)
			}
		})
	}

	t.Run("private list denies stranger", func(t *testing.T) {
		private := store.List{ID: "l2", OwnerID: "alice"}
		if got := CanAccessList(snapFor("dave"), private); got.Granted {
			t.Fatalf("expected denial, got %+v", got)
		}
	})
	t.Run("deleted list denies owner", func(t *testing.T) {
		deleted := store.List{ID: "l3", OwnerID: "alice", Deleted: true}
		if got := CanAccessList(snapFor("alice"), deleted); got.Granted {
			t.Fatalf("expected denial, got %+v", got)
		}
	})
}

func TestCustomItemHiddenFromListOwner(t *testing.T) {
	// Alice owns list 7, Bob is explicitly invited and sneaks in a surprise
	// item. Alice must never see it, even though it is public and matches
	// list visibility.
	item := store.ListItem{
		ID:                  "i1",
		CreatedByID:         "alice",
		IsCustom:            true,
		CustomItemCreator:   strptr("bob"),
		Lists:               []string{"7"},
		MatchListVisibility: true,
		IsPublic:            true,
	}
	ownerAccess := map[string]ListAccess{"7": {Granted: true, Type: AccessOwner}}
	invitedAccess := map[string]ListAccess{"7": {Granted: true, Type: AccessExplicitUser, ExplicitlyInvited: true}}
	publicAccess := map[string]ListAccess{"7": {Granted: true, Type: AccessPublic}}

	if CanViewItem(snapFor("alice"), item, ownerAccess) {
		t.Fatal("list owner can see the surprise item")
	}
	if !CanViewItem(snapFor("bob"), item, invitedAccess) {
		t.Fatal("creator of the custom item cannot see it")
	}
	if !CanViewItem(snapFor("carol"), item, invitedAccess) {
		t.Fatal("explicitly invited viewer cannot see the custom item")
	}
	if CanViewItem(snapFor("dave"), item, publicAccess) {
		t.Fatal("public list access leaked a custom item")
	}
	if CanViewItem(snapFor("eve"), item, nil) {
		t.Fatal("isPublic leaked a custom item")
	}

	if CanSeeGotten(snapFor("alice"), item) {
		t.Fatal("list owner can see gift intents on the surprise item")
	}
	if !CanSeeGotten(snapFor("bob"), item) {
		t.Fatal("custom item creator cannot see gift intents")
	}
	if !CanSeeGotten(snapFor("carol"), item) {
		t.Fatal("third party cannot see gift intents on custom item")
	}
}

func TestCanViewRegularItem(t *testing.T) {
	item := store.ListItem{
		ID:                  "i2",
		CreatedByID:         "alice",
		Lists:               []string{"l1"},
		VisibleToUsers:      []string{"bob"},
		VisibleToGroups:     []string{"g1"},
		MatchListVisibility: true,
	}
	listAccess := map[string]ListAccess{"l1": {Granted: true, Type: AccessPublic}}

	cases := []struct {
		name     string
		snap     *family.Snapshot
		accesses map[string]ListAccess
		want     bool
	}{
		{name: "creator", snap: snapFor("alice"), want: true},
		{name: "explicit user", snap: snapFor("bob"), want: true},
		{name: "group member", snap: snapFor("carol", "g1"), want: true},
		{name: "via list visibility", snap: snapFor("dave"), accesses: listAccess, want: true},
		{name: "stranger without list access", snap: snapFor("dave"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanViewItem(tc.snap, item, tc.accesses); got != tc.want {
				t.Fatalf("CanViewItem = %v, want %v", got, tc.want)
			}
		})
	}

	t.Run("public item visible to anyone", func(t *testing.T) {
		pub := store.ListItem{ID: "i3", CreatedByID: "alice", IsPublic: true}
		if !CanViewItem(snapFor("stranger"), pub, nil) {
			t.Fatal("public regular item should be visible to everyone")
		}
	})
	t.Run("deleted item invisible to creator", func(t *testing.T) {
		del := store.ListItem{ID: "i4", CreatedByID: "alice", Deleted: true, IsPublic: true}
		if CanViewItem(snapFor("alice"), del, nil) {
			t.Fatal("deleted item should be invisible")
		}
	})
	t.Run("matchListVisibility off ignores list access", func(t *testing.T) {
		noMatch := store.ListItem{ID: "i5", CreatedByID: "alice", Lists: []string{"l1"}}
		if CanViewItem(snapFor("dave"), noMatch, listAccess) {
			t.Fatal("item without matchListVisibility leaked via list access")
		}
	})
}

func TestCanSeeGottenRegularItem(t *testing.T) {
	item := store.ListItem{ID: "i1", CreatedByID: "alice"}
	if CanSeeGotten(snapFor("alice"), item) {
		t.Fatal("item owner can see their own gift intents")
	}
	if !CanSeeGotten(snapFor("bob"), item) {
		t.Fatal("giver cannot see gift intents")
	}
}

func TestCanModifyItem(t *testing.T) {
	item := store.ListItem{ID: "i1", CreatedByID: "kid", IsCustom: true, CustomItemCreator: strptr("friend")}
	parent := strptr("mom")

	if !CanModifyItem(snapFor("kid"), item, parent) {
		t.Fatal("creator cannot modify")
	}
	if !CanModifyItem(snapFor("mom"), item, parent) {
		t.Fatal("parent of creator cannot modify")
	}
	if !CanModifyItem(snapFor("friend"), item, parent) {
		t.Fatal("custom item creator cannot modify")
	}
	if CanModifyItem(snapFor("stranger"), item, parent) {
		t.Fatal("stranger can modify")
	}

	regular := store.ListItem{ID: "i2", CreatedByID: "kid", CustomItemCreator: strptr("friend")}
	if CanModifyItem(snapFor("friend"), regular, nil) {
		t.Fatal("customItemCreator grants modify on non-custom item")
	}
}

func TestCanAddToLists(t *testing.T) {
	lists := []store.List{
		{ID: "l1", OwnerID: "alice"},
		{ID: "l2", OwnerID: "kid"},
	}
	parents := map[string]*string{"kid": strptr("alice")}

	if !CanAddToLists(snapFor("alice"), lists, parents) {
		t.Fatal("owner+parent should be allowed on both lists")
	}
	if CanAddToLists(snapFor("kid"), lists, parents) {
		t.Fatal("kid owns only one of the two lists")
	}
	if CanAddToLists(snapFor("stranger"), lists, parents) {
		t.Fatal("stranger allowed to add")
	}
	if !CanAddToLists(snapFor("anyone"), nil, nil) {
		t.Fatal("empty list set should be allowed")
	}
}

func TestGroupAccess(t *testing.T) {
	g := store.Group{
		ID: "g1", OwnerID: "alice",
		MemberIDs:  []string{"bob"},
		AdminIDs:   []string{"carol"},
		InvitedIDs: []string{"dave"},
	}
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		if !CanAccessGroup(snapFor(id), g) {
			t.Fatalf("%s should access the group", id)
		}
	}
	if CanAccessGroup(snapFor("eve"), g) {
		t.Fatal("non-member can access")
	}

	if !CanAdministerGroup(snapFor("alice"), g) || !CanAdministerGroup(snapFor("carol"), g) {
		t.Fatal("owner and admin should administer")
	}
	if CanAdministerGroup(snapFor("bob"), g) {
		t.Fatal("plain member can administer")
	}
}

func TestProposalVisibility(t *testing.T) {
	p := store.Proposal{ID: "p1", CreatorID: "alice"}
	parts := []store.ProposalParticipant{{ProposalID: "p1", UserID: "bob"}}

	if !CanViewProposal(snapFor("alice"), p, parts) {
		t.Fatal("creator cannot view")
	}
	if !CanViewProposal(snapFor("bob"), p, parts) {
		t.Fatal("participant cannot view")
	}
	if CanViewProposal(snapFor("carol"), p, parts) {
		t.Fatal("outsider can view")
	}
	if CanRespondToProposal(snapFor("alice"), parts) {
		t.Fatal("non-participant creator can respond")
	}
	if !CanRespondToProposal(snapFor("bob"), parts) {
		t.Fatal("participant cannot respond")
	}
}

func TestCanViewUser(t *testing.T) {
	target := store.User{ID: "kid", ParentID: strptr("mom")}

	if !CanViewUser(snapFor("kid"), target) {
		t.Fatal("self-view denied")
	}
	if !CanViewUser(snapFor("mom"), target) {
		t.Fatal("parent view denied")
	}
	peer := snapFor("friend")
	peer.GroupPeers["kid"] = true
	if !CanViewUser(peer, target) {
		t.Fatal("group peer view denied")
	}
	if CanViewUser(snapFor("stranger"), target) {
		t.Fatal("stranger can view private user")
	}

	target.IsPublic = true
	if !CanViewUser(snapFor("stranger"), target) {
		t.Fatal("public profile hidden")
	}
}
