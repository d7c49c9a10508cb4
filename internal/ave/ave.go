// Package ave is the access and visibility engine. Every authorization
// decision in the system is made here, as a closed rule set over entities and
// a resolved family snapshot. Functions are pure: no store calls, no errors.
// Unknown-entity handling is the caller's problem.
package ave

import (
	"wishlane/api/internal/family"
	"wishlane/api/internal/store"
)

// AccessType names the rule that granted list access, in priority order.
type AccessType string

const (
	AccessOwner         AccessType = "owner"
	AccessExplicitUser  AccessType = "explicit_user"
	AccessExplicitGroup AccessType = "explicit_group"
	AccessPublic        AccessType = "public"
)

// ListAccess is the outcome of a list-access check.
type ListAccess struct {
	Granted           bool
	Type              AccessType
	ExplicitlyInvited bool
}

// CanAccessList evaluates the four list rules in priority order and reports
// the first that matches. Deleted lists are invisible to everyone.
func CanAccessList(snap *family.Snapshot, l store.List) ListAccess {
	if l.Deleted {
		return ListAccess{}
	}
	if l.OwnerID == snap.UserID {
		return ListAccess{Granted: true, Type: AccessOwner}
	}
	for _, id := range l.VisibleToUsers {
		if id == snap.UserID {
			return ListAccess{Granted: true, Type: AccessExplicitUser, ExplicitlyInvited: true}
		}
	}
	if snap.SharesGroupWith(l.VisibleToGroups) {
		return ListAccess{Granted: true, Type: AccessExplicitGroup, ExplicitlyInvited: true}
	}
	if l.Public {
		return ListAccess{Granted: true, Type: AccessPublic}
	}
	return ListAccess{}
}

// CanViewItem decides item visibility. listAccesses holds the viewer's access
// to each containing list the caller resolved (absent entries mean no
// access).
//
// Custom items are surprise additions arranged around the list owner: the
// arranging user always sees them, the owner never does, and everyone else
// needs an explicit or owner grant on a containing list. Public flags and
// matchListVisibility do not apply to them.
func CanViewItem(snap *family.Snapshot, item store.ListItem, listAccesses map[string]ListAccess) bool {
	if item.Deleted {
		return false
	}

	if item.IsCustom {
		if item.CustomItemCreator != nil && *item.CustomItemCreator == snap.UserID {
			return true
		}
		if item.CreatedByID == snap.UserID {
			return false
		}
		for _, listID := range item.Lists {
			acc, ok := listAccesses[listID]
			if !ok || !acc.Granted {
				continue
			}
			if acc.Type == AccessOwner || acc.ExplicitlyInvited {
				return true
			}
		}
		return false
	}

	if item.CreatedByID == snap.UserID {
		return true
	}
	for _, id := range item.VisibleToUsers {
		if id == snap.UserID {
			return true
		}
	}
	if snap.SharesGroupWith(item.VisibleToGroups) {
		return true
	}
	if item.IsPublic {
		return true
	}
	if item.MatchListVisibility {
		for _, listID := range item.Lists {
			if acc, ok := listAccesses[listID]; ok && acc.Granted {
				return true
			}
		}
	}
	return false
}

// CanSeeGotten governs whether the viewer may see the gift-intent rows
// (gettings and go-in-ons) attached to an item. The person being gifted
// never sees them.
func CanSeeGotten(snap *family.Snapshot, item store.ListItem) bool {
	if item.IsCustom {
		if item.CustomItemCreator != nil && *item.CustomItemCreator == snap.UserID {
			return true
		}
		return item.CreatedByID != snap.UserID
	}
	return item.CreatedByID != snap.UserID
}

// CanModifyItem allows the creator, the creator's parent, and (for custom
// items) the arranging user. Soft delete follows the same rule.
func CanModifyItem(snap *family.Snapshot, item store.ListItem, creatorParentID *string) bool {
	if item.CreatedByID == snap.UserID {
		return true
	}
	if creatorParentID != nil && *creatorParentID == snap.UserID {
		return true
	}
	if item.IsCustom && item.CustomItemCreator != nil && *item.CustomItemCreator == snap.UserID {
		return true
	}
	return false
}

// CanAddToLists requires ownership (or parenthood of the owner) of every
// target list.
func CanAddToLists(snap *family.Snapshot, lists []store.List, ownerParentIDs map[string]*string) bool {
	for _, l := range lists {
		if l.OwnerID == snap.UserID {
			continue
		}
		if pid, ok := ownerParentIDs[l.OwnerID]; ok && pid != nil && *pid == snap.UserID {
			continue
		}
		return false
	}
	return true
}

// CanAccessGroup is membership in any of the group's four sets.
func CanAccessGroup(snap *family.Snapshot, g store.Group) bool {
	if g.Deleted {
		return false
	}
	if g.OwnerID == snap.UserID {
		return true
	}
	for _, set := range [][]string{g.MemberIDs, g.AdminIDs, g.InvitedIDs} {
		for _, id := range set {
			if id == snap.UserID {
				return true
			}
		}
	}
	return false
}

// CanAdministerGroup is owner or admin.
func CanAdministerGroup(snap *family.Snapshot, g store.Group) bool {
	if g.Deleted {
		return false
	}
	if g.OwnerID == snap.UserID {
		return true
	}
	for _, id := range g.AdminIDs {
		if id == snap.UserID {
			return true
		}
	}
	return false
}

// CanAccessEvent is owner or listed viewer.
func CanAccessEvent(snap *family.Snapshot, e store.Event) bool {
	if e.Deleted {
		return false
	}
	if e.OwnerID == snap.UserID {
		return true
	}
	for _, id := range e.ViewerIDs {
		if id == snap.UserID {
			return true
		}
	}
	return false
}

// CanViewProposal is creator or current participant.
func CanViewProposal(snap *family.Snapshot, p store.Proposal, participants []store.ProposalParticipant) bool {
	if p.Deleted {
		return false
	}
	if p.CreatorID == snap.UserID {
		return true
	}
	for _, part := range participants {
		if part.UserID == snap.UserID {
			return true
		}
	}
	return false
}

// CanRespondToProposal is participants only; the creator responds only if
// they are also a participant.
func CanRespondToProposal(snap *family.Snapshot, participants []store.ProposalParticipant) bool {
	for _, part := range participants {
		if part.UserID == snap.UserID {
			return true
		}
	}
	return false
}

// CanViewUser allows self, public profiles, a parent viewing their subuser,
// and group peers.
func CanViewUser(snap *family.Snapshot, target store.User) bool {
	if target.ID == snap.UserID {
		return true
	}
	if target.IsPublic {
		return true
	}
	if target.ParentID != nil && *target.ParentID == snap.UserID {
		return true
	}
	return snap.GroupPeers[target.ID]
}
