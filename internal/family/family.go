// Package family resolves a user's social universe: the groups they belong
// to, the people reachable through those groups, and their household (parent
// and subusers). The visibility engine consumes these sets.
package family

import (
	"context"

	"wishlane/api/internal/store"
)

// Store is the slice of the entity store the resolver reads from.
type Store interface {
	GetUserByID(ctx context.Context, id string) (store.User, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]store.Group, error)
	ListSubusers(ctx context.Context, parentID string) ([]store.User, error)
	FilterActiveUserIDs(ctx context.Context, ids []string) ([]string, error)
}

// Snapshot holds the resolved sets for one user at one point in time. All
// fields are computed from a single pass over the store; callers that need
// fresher data build a new snapshot.
type Snapshot struct {
	UserID     string
	Groups     []store.Group
	GroupIDs   map[string]bool
	GroupPeers map[string]bool // owner ∪ members ∪ admins ∪ invited across Groups
	Family     map[string]bool // self ∪ parent ∪ subusers
	Accessible map[string]bool // (GroupPeers ∪ Family) restricted to active users
}

// InGroup reports whether the snapshot's user belongs to the given group.
func (s *Snapshot) InGroup(groupID string) bool {
	return s.GroupIDs[groupID]
}

// SharesGroupWith reports whether any of the given group ids is one of the
// user's groups.
func (s *Snapshot) SharesGroupWith(groupIDs []string) bool {
	for _, id := range groupIDs {
		if s.GroupIDs[id] {
			return true
		}
	}
	return false
}

// Resolver builds snapshots and memoizes them. A resolver is scoped to one
// request; it is not safe for concurrent use.
type Resolver struct {
	store Store
	memo  map[string]*Snapshot
}

func NewResolver(st Store) *Resolver {
	return &Resolver{store: st, memo: make(map[string]*Snapshot)}
}

// Resolve returns the snapshot for userID, computing it on first use.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*Snapshot, error) {
	if snap, ok := r.memo[userID]; ok {
		return snap, nil
	}

	groups, err := r.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		UserID:     userID,
		Groups:     groups,
		GroupIDs:   make(map[string]bool, len(groups)),
		GroupPeers: make(map[string]bool),
		Family:     map[string]bool{userID: true},
		Accessible: make(map[string]bool),
	}
	for _, g := range groups {
		snap.GroupIDs[g.ID] = true
		snap.GroupPeers[g.OwnerID] = true
		for _, id := range g.MemberIDs {
			snap.GroupPeers[id] = true
		}
		for _, id := range g.AdminIDs {
			snap.GroupPeers[id] = true
		}
		for _, id := range g.InvitedIDs {
			snap.GroupPeers[id] = true
		}
	}

	user, err := r.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ParentID != nil {
		snap.Family[*user.ParentID] = true
	}
	subusers, err := r.store.ListSubusers(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, su := range subusers {
		snap.Family[su.ID] = true
	}

	union := make([]string, 0, len(snap.GroupPeers)+len(snap.Family))
	seen := make(map[string]bool, len(snap.GroupPeers)+len(snap.Family))
	for id := range snap.GroupPeers {
		if !seen[id] {
			seen[id] = true
			union = append(union, id)
		}
	}
	for id := range snap.Family {
		if !seen[id] {
			seen[id] = true
			union = append(union, id)
		}
	}
	active, err := r.store.FilterActiveUserIDs(ctx, union)
	if err != nil {
		return nil, err
	}
	for _, id := range active {
		snap.Accessible[id] = true
	}

	r.memo[userID] = snap
	return snap, nil
}
