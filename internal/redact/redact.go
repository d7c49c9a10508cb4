// Package redact shapes entities into outbound payloads, applying the
// visibility engine's decisions. Redaction removes fields rather than
// nulling them so a spoiled key never appears on the wire.
package redact

import (
	"time"

	"wishlane/api/internal/ave"
	"wishlane/api/internal/store"
)

// User serializes a user profile. Password hashes never leave the server;
// email is shown only to the user themselves and their parent.
func User(viewerID string, u store.User) map[string]any {
	out := map[string]any{
		"id":       u.ID,
		"name":     u.DisplayName,
		"isActive": u.IsActive,
		"isPublic": u.IsPublic,
	}
	if u.ParentID != nil {
		out["parentId"] = *u.ParentID
	}
	if viewerID == u.ID || (u.ParentID != nil && *u.ParentID == viewerID) {
		out["email"] = u.Email
	}
	return out
}

// List serializes list metadata. Item filtering is the caller's job; the
// access type is included so clients can distinguish invitations from
// public discovery.
func List(l store.List, access ave.ListAccess) map[string]any {
	return map[string]any{
		"id":                l.ID,
		"ownerId":           l.OwnerID,
		"name":              l.Name,
		"description":       l.Description,
		"public":            l.Public,
		"visibleToUsers":    emptyIfNil(l.VisibleToUsers),
		"visibleToGroups":   emptyIfNil(l.VisibleToGroups),
		"accessType":        string(access.Type),
		"explicitlyInvited": access.ExplicitlyInvited,
		"createdAt":         l.CreatedAt,
		"updatedAt":         l.UpdatedAt,
	}
}

// ItemOpts carries the sideband data an item payload may embed.
type ItemOpts struct {
	CanSeeGotten bool
	Gettings     []store.Getting
	GoInOns      []store.GoInOn
	Links        []store.ItemLink
}

// Item serializes a list item. When CanSeeGotten is false the getting and
// goInOn keys are absent from the result, not null.
func Item(i store.ListItem, opts ItemOpts) map[string]any {
	out := map[string]any{
		"id":                  i.ID,
		"createdById":         i.CreatedByID,
		"name":                i.Name,
		"notes":               i.Notes,
		"amountWantedMin":     i.AmountWantedMin,
		"amountWantedMax":     i.AmountWantedMax,
		"priority":            i.Priority,
		"lists":               emptyIfNil(i.Lists),
		"visibleToUsers":      emptyIfNil(i.VisibleToUsers),
		"visibleToGroups":     emptyIfNil(i.VisibleToGroups),
		"isPublic":            i.IsPublic,
		"matchListVisibility": i.MatchListVisibility,
		"isCustom":            i.IsCustom,
		"imageIds":            emptyIfNil(i.ImageIDs),
		"createdAt":           i.CreatedAt,
		"updatedAt":           i.UpdatedAt,
	}
	if i.Price != nil {
		out["price"] = *i.Price
	}
	if i.MinPrice != nil {
		out["minPrice"] = *i.MinPrice
	}
	if i.MaxPrice != nil {
		out["maxPrice"] = *i.MaxPrice
	}
	if i.CustomItemCreator != nil {
		out["customItemCreator"] = *i.CustomItemCreator
	}
	if i.DeleteOnDate != nil {
		out["deleteOnDate"] = *i.DeleteOnDate
	}
	if opts.Links != nil {
		links := make([]map[string]any, 0, len(opts.Links))
		for _, l := range opts.Links {
			links = append(links, map[string]any{"id": l.ID, "label": l.Label, "url": l.URL})
		}
		out["links"] = links
	}
	if opts.CanSeeGotten {
		out["getting"] = Gettings(opts.Gettings)
		out["goInOn"] = GoInOns(opts.GoInOns)
	}
	return out
}

func Gettings(gs []store.Getting) []map[string]any {
	out := make([]map[string]any, 0, len(gs))
	for _, g := range gs {
		m := map[string]any{
			"giverId":  g.GiverID,
			"getterId": g.GetterID,
			"itemId":   g.ItemID,
			"status":   g.Status,
		}
		if g.ProposalID != nil {
			m["proposalId"] = *g.ProposalID
		}
		out = append(out, m)
	}
	return out
}

func GoInOns(gs []store.GoInOn) []map[string]any {
	out := make([]map[string]any, 0, len(gs))
	for _, g := range gs {
		out = append(out, map[string]any{
			"giverId":  g.GiverID,
			"getterId": g.GetterID,
			"itemId":   g.ItemID,
		})
	}
	return out
}

// PublicList serializes a list for the unauthenticated public endpoint:
// items are filtered to public, non-deleted, non-custom ones and the
// payload never carries gift intents or ACL sets.
func PublicList(l store.List, items []store.ListItem, publicCreators map[string]bool) map[string]any {
	filtered := make([]map[string]any, 0, len(items))
	for _, i := range items {
		if i.Deleted || i.IsCustom || !i.IsPublic {
			continue
		}
		m := map[string]any{
			"id":       i.ID,
			"name":     i.Name,
			"notes":    i.Notes,
			"priority": i.Priority,
			"imageIds": emptyIfNil(i.ImageIDs),
		}
		// Creators stay anonymous on the public view unless their own
		// profile is public.
		if publicCreators[i.CreatedByID] {
			m["createdById"] = i.CreatedByID
		}
		if i.Price != nil {
			m["price"] = *i.Price
		}
		filtered = append(filtered, m)
	}
	return map[string]any{
		"id":          l.ID,
		"name":        l.Name,
		"description": l.Description,
		"items":       filtered,
	}
}

func Group(g store.Group) map[string]any {
	return map[string]any{
		"id":         g.ID,
		"ownerId":    g.OwnerID,
		"name":       g.Name,
		"memberIds":  emptyIfNil(g.MemberIDs),
		"adminIds":   emptyIfNil(g.AdminIDs),
		"invitedIds": emptyIfNil(g.InvitedIDs),
		"createdAt":  g.CreatedAt,
		"updatedAt":  g.UpdatedAt,
	}
}

func Event(e store.Event) map[string]any {
	out := map[string]any{
		"id":        e.ID,
		"ownerId":   e.OwnerID,
		"name":      e.Name,
		"viewerIds": emptyIfNil(e.ViewerIDs),
		"archived":  e.Archived,
		"createdAt": e.CreatedAt,
		"updatedAt": e.UpdatedAt,
	}
	if e.DueDate != nil {
		out["dueDate"] = *e.DueDate
	}
	return out
}

func EventRecipient(r store.EventRecipient) map[string]any {
	out := map[string]any{
		"eventId": r.EventID,
		"userId":  r.UserID,
		"note":    r.Note,
		"status":  r.Status,
	}
	if r.Budget != nil {
		out["budget"] = *r.Budget
	}
	return out
}

func Proposal(p store.Proposal, participants []store.ProposalParticipant) map[string]any {
	parts := make([]map[string]any, 0, len(participants))
	for _, part := range participants {
		m := map[string]any{
			"userId":   part.UserID,
			"accepted": part.Accepted,
			"rejected": part.Rejected,
			"isBuying": part.IsBuying,
		}
		if part.AmountRequested != nil {
			m["amountRequested"] = *part.AmountRequested
		}
		parts = append(parts, m)
	}
	return map[string]any{
		"id":           p.ID,
		"creatorId":    p.CreatorID,
		"itemId":       p.ItemID,
		"status":       p.Status,
		"participants": parts,
		"createdAt":    p.CreatedAt,
		"updatedAt":    p.UpdatedAt,
	}
}

func Job(j store.Job) map[string]any {
	out := map[string]any{
		"jobId":     j.ID,
		"url":       j.URL,
		"status":    j.Status,
		"jobType":   j.JobType,
		"queuedAt":  j.QueuedAt.Format(time.RFC3339),
		"updatedAt": j.UpdatedAt.Format(time.RFC3339),
	}
	if len(j.Result) > 0 {
		out["result"] = j.Result
	}
	if j.Error != "" {
		out["error"] = j.Error
	}
	return out
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
