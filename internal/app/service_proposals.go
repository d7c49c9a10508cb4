package app

import (
	"context"
	"fmt"

	"wishlane/api/internal/ave"
	"wishlane/api/internal/redact"
	"wishlane/api/internal/store"
	"wishlane/api/internal/util"
)

// ProposalParticipantInput is one invited co-giver.
type ProposalParticipantInput struct {
	UserID          string   `json:"userId"`
	AmountRequested *float64 `json:"amountRequested"`
}

// CreateProposal invites other givers to split an item. The creator is
// recorded as an accepted participant immediately.
func (s *Service) CreateProposal(ctx context.Context, session Session, itemID string, participants []ProposalParticipantInput) (map[string]any, error) {
	if len(participants) == 0 {
		return nil, validationError("participants are required")
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

	p := store.Proposal{
		ID:        util.NewID("prp"),
		CreatorID: session.UserID,
		ItemID:    item.ID,
		Status:    store.ProposalPending,
	}
	rows := []store.ProposalParticipant{
		{ProposalID: p.ID, UserID: session.UserID, Accepted: true, IsBuying: true},
	}
	seen := map[string]bool{session.UserID: true}
	for _, part := range participants {
		if part.UserID == "" {
			return nil, validationError("participant userId is required")
		}
		if seen[part.UserID] {
			continue
		}
		seen[part.UserID] = true
		target, err := s.store.GetUserByID(ctx, part.UserID)
		if err != nil {
			if isNoRows(err) {
				return nil, notFoundError("participant not found")
			}
			return nil, err
		}
		if !ave.CanViewUser(snap, target) {
			return nil, notFoundError("participant not found")
		}
		if target.ID == item.CreatedByID {
			return nil, validationError("the item's wisher cannot join a proposal for it")
		}
		rows = append(rows, store.ProposalParticipant{
			ProposalID:      p.ID,
			UserID:          part.UserID,
			AmountRequested: part.AmountRequested,
		})
	}

	if err := s.store.CreateProposal(ctx, p, rows); err != nil {
		return nil, err
	}
	return s.proposalPayload(ctx, p.ID)
}

func (s *Service) ListProposals(ctx context.Context, session Session) ([]map[string]any, error) {
	proposals, err := s.store.ListProposalsForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(proposals))
	for _, p := range proposals {
		participants, err := s.store.ListProposalParticipants(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, redact.Proposal(p, participants))
	}
	return out, nil
}

func (s *Service) GetProposal(ctx context.Context, session Session, proposalID string) (map[string]any, error) {
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	p, participants, err := s.loadProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !ave.CanViewProposal(snap, p, participants) {
		return nil, notFoundError("proposal not found")
	}
	return redact.Proposal(p, participants), nil
}

// ProposalResponseInput is a participant's answer.
type ProposalResponseInput struct {
	Accepted bool `json:"accepted"`
	Rejected bool `json:"rejected"`
	IsBuying bool `json:"isBuying"`
}

// RespondToProposal records the caller's answer and returns the proposal
// with its recomputed status.
func (s *Service) RespondToProposal(ctx context.Context, session Session, proposalID string, in ProposalResponseInput) (map[string]any, error) {
	if in.Accepted == in.Rejected {
		return nil, validationError("exactly one of accepted or rejected must be set")
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	p, participants, err := s.loadProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !ave.CanViewProposal(snap, p, participants) {
		return nil, notFoundError("proposal not found")
	}
	isParticipant := false
	for _, part := range participants {
		if part.UserID == session.UserID {
			isParticipant = true
		}
	}
	if !isParticipant {
		return nil, forbiddenError("only invited participants can respond")
	}
	if p.Status != store.ProposalPending {
		return nil, conflictError("proposal is already resolved")
	}

	status, err := s.store.RespondToProposal(ctx, proposalID, session.UserID, in.Accepted, in.Rejected, in.IsBuying)
	if err != nil {
		return nil, err
	}

	// Once every participant accepts, the split becomes real gift intent
	// for each buyer.
	if status == store.ProposalAccepted {
		item, err := s.store.GetItem(ctx, p.ItemID)
		if err != nil {
			return nil, fmt.Errorf("load item for accepted proposal %s: %w", proposalID, err)
		}
		updated, err := s.store.ListProposalParticipants(ctx, proposalID)
		if err != nil {
			return nil, err
		}
		for _, part := range updated {
			if !part.IsBuying {
				continue
			}
			g := store.Getting{
				GiverID:    part.UserID,
				GetterID:   item.CreatedByID,
				ItemID:     item.ID,
				Status:     store.GettingBuying,
				ProposalID: &p.ID,
			}
			if err := s.store.UpsertGetting(ctx, g); err != nil {
				return nil, err
			}
		}
	}
	return s.proposalPayload(ctx, proposalID)
}

// DeleteProposal lets the creator withdraw a proposal.
func (s *Service) DeleteProposal(ctx context.Context, session Session, proposalID string) error {
	p, _, err := s.loadProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if !s.ownsOrParents(ctx, session, p.CreatorID) {
		return notFoundError("proposal not found")
	}
	return s.store.SoftDeleteProposal(ctx, proposalID)
}

func (s *Service) loadProposal(ctx context.Context, proposalID string) (store.Proposal, []store.ProposalParticipant, error) {
	p, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		if isNoRows(err) {
			return store.Proposal{}, nil, notFoundError("proposal not found")
		}
		return store.Proposal{}, nil, err
	}
	if p.Deleted {
		return store.Proposal{}, nil, notFoundError("proposal not found")
	}
	participants, err := s.store.ListProposalParticipants(ctx, proposalID)
	if err != nil {
		return store.Proposal{}, nil, err
	}
	return p, participants, nil
}

func (s *Service) proposalPayload(ctx context.Context, proposalID string) (map[string]any, error) {
	p, participants, err := s.loadProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	return redact.Proposal(p, participants), nil
}
