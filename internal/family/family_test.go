package family

import (
	"context"
	"testing"

	"wishlane/api/internal/store"
)

type fakeStore struct {
	users    map[string]store.User
	groups   map[string][]store.Group
	subusers map[string][]store.User
	inactive map[string]bool
	calls    int
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	return f.users[id], nil
}

func (f *fakeStore) ListGroupsForUser(_ context.Context, userID string) ([]store.Group, error) {
	f.calls++
	return f.groups[userID], nil
}

func (f *fakeStore) ListSubusers(_ context.Context, parentID string) ([]store.User, error) {
	return f.subusers[parentID], nil
}

func (f *fakeStore) FilterActiveUserIDs(_ context.Context, ids []string) ([]string, error) {
	active := make([]string, 0, len(ids))
	for _, id := range ids {
		if !f.inactive[id] {
			active = append(active, id)
		}
	}
	return active, nil
}

func TestResolveBuildsSnapshot(t *testing.T) {
	mom := "mom"
	st := &fakeStore{
		users: map[string]store.User{
			"kid": {ID: "kid", ParentID: &mom, IsActive: true},
		},
		groups: map[string][]store.Group{
			"kid": {{
				ID: "g1", OwnerID: "alice",
				MemberIDs:  []string{"kid", "bob"},
				AdminIDs:   []string{"carol"},
				InvitedIDs: []string{"ghost"},
			}},
		},
		subusers: map[string][]store.User{},
		inactive: map[string]bool{"ghost": true},
	}

	snap, err := NewResolver(st).Resolve(context.Background(), "kid")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if !snap.InGroup("g1") || snap.InGroup("g2") {
		t.Fatalf("group membership wrong: %v", snap.GroupIDs)
	}
	for _, id := range []string{"alice", "kid", "bob", "carol", "ghost"} {
		if !snap.GroupPeers[id] {
			t.Fatalf("missing group peer %s", id)
		}
	}
	if !snap.Family["kid"] || !snap.Family["mom"] {
		t.Fatalf("family wrong: %v", snap.Family)
	}
	if snap.Accessible["ghost"] {
		t.Fatal("inactive user leaked into accessible set")
	}
	if !snap.Accessible["mom"] || !snap.Accessible["bob"] {
		t.Fatalf("accessible missing members: %v", snap.Accessible)
	}
}

func TestResolveMemoizes(t *testing.T) {
	st := &fakeStore{
		users:    map[string]store.User{"u": {ID: "u", IsActive: true}},
		groups:   map[string][]store.Group{},
		subusers: map[string][]store.User{},
	}
	r := NewResolver(st)

	first, err := r.Resolve(context.Background(), "u")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), "u")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first != second {
		t.Fatal("expected memoized snapshot")
	}
	if st.calls != 1 {
		t.Fatalf("expected one group query, got %d", st.calls)
	}
}

func TestSharesGroupWith(t *testing.T) {
	snap := &Snapshot{GroupIDs: map[string]bool{"g1": true}}
	if !snap.SharesGroupWith([]string{"g2", "g1"}) {
		t.Fatal("expected overlap")
	}
	if snap.SharesGroupWith([]string{"g2", "g3"}) {
		t.Fatal("unexpected overlap")
	}
	if snap.SharesGroupWith(nil) {
		t.Fatal("empty set should not overlap")
	}
}
