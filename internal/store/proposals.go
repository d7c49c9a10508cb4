package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DeriveProposalStatus computes the aggregate status from participant rows:
// any rejection wins, unanimous acceptance accepts, anything else is pending.
func DeriveProposalStatus(participants []ProposalParticipant) string {
	if len(participants) == 0 {
		return ProposalPending
	}
	allAccepted := true
	for _, p := range participants {
		if p.Rejected {
			return ProposalRejected
		}
		if !p.Accepted {
			allAccepted = false
		}
	}
	if allAccepted {
		return ProposalAccepted
	}
	return ProposalPending
}

// CreateProposal inserts the proposal and its participants atomically, with
// the status derived from the initial participant rows.
func (s *PostgresStore) CreateProposal(ctx context.Context, p Proposal, participants []ProposalParticipant) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		status := DeriveProposalStatus(participants)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO proposals (id, creator_id, item_id, status) VALUES ($1, $2, $3, $4)
		`, p.ID, p.CreatorID, p.ItemID, status); err != nil {
			return fmt.Errorf("insert proposal: %w", err)
		}
		for _, part := range participants {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO proposal_participants (proposal_id, user_id, amount_requested, accepted, rejected, is_buying)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, p.ID, part.UserID, part.AmountRequested, part.Accepted, part.Rejected, part.IsBuying); err != nil {
				return fmt.Errorf("insert proposal participant: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetProposal(ctx context.Context, proposalID string) (Proposal, error) {
	var p Proposal
	err := s.db.QueryRowContext(ctx, `
		SELECT id, creator_id, item_id, status, deleted, created_at, updated_at
		FROM proposals WHERE id=$1 AND NOT deleted
	`, proposalID).Scan(&p.ID, &p.CreatorID, &p.ItemID, &p.Status, &p.Deleted, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) GetProposalByID(ctx context.Context, proposalID string) (Proposal, error) {
	return s.GetProposal(ctx, proposalID)
}

func (s *PostgresStore) ListProposalParticipants(ctx context.Context, proposalID string) ([]ProposalParticipant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT proposal_id, user_id, amount_requested, accepted, rejected, is_buying
		FROM proposal_participants WHERE proposal_id=$1 ORDER BY user_id
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list proposal participants: %w", err)
	}
	defer rows.Close()

	participants := make([]ProposalParticipant, 0)
	for rows.Next() {
		var p ProposalParticipant
		if err := rows.Scan(&p.ProposalID, &p.UserID, &p.AmountRequested, &p.Accepted, &p.Rejected, &p.IsBuying); err != nil {
			return nil, fmt.Errorf("scan proposal participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *PostgresStore) ListProposalsForUser(ctx context.Context, userID string) ([]Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT p.id, p.creator_id, p.item_id, p.status, p.deleted, p.created_at, p.updated_at
		FROM proposals p
		LEFT JOIN proposal_participants pp ON pp.proposal_id = p.id
		WHERE NOT p.deleted AND (p.creator_id=$1 OR pp.user_id=$1)
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list proposals for user: %w", err)
	}
	defer rows.Close()

	proposals := make([]Proposal, 0)
	for rows.Next() {
		var p Proposal
		if err := rows.Scan(&p.ID, &p.CreatorID, &p.ItemID, &p.Status, &p.Deleted, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// RespondToProposal updates one participant's response and recomputes the
// aggregate status in the same transaction, so a reader that sees the new
// participant row also sees the new status.
func (s *PostgresStore) RespondToProposal(ctx context.Context, proposalID, userID string, accepted, rejected, isBuying bool) (string, error) {
	var status string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE proposal_participants
			SET accepted=$3, rejected=$4, is_buying=$5
			WHERE proposal_id=$1 AND user_id=$2
		`, proposalID, userID, accepted, rejected, isBuying)
		if err != nil {
			return fmt.Errorf("update proposal participant: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT proposal_id, user_id, amount_requested, accepted, rejected, is_buying
			FROM proposal_participants WHERE proposal_id=$1 FOR UPDATE
		`, proposalID)
		if err != nil {
			return fmt.Errorf("lock proposal participants: %w", err)
		}
		defer rows.Close()

		var participants []ProposalParticipant
		for rows.Next() {
			var p ProposalParticipant
			if err := rows.Scan(&p.ProposalID, &p.UserID, &p.AmountRequested, &p.Accepted, &p.Rejected, &p.IsBuying); err != nil {
				return fmt.Errorf("scan proposal participant: %w", err)
			}
			participants = append(participants, p)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		status = DeriveProposalStatus(participants)
		if _, err := tx.ExecContext(ctx, `
			UPDATE proposals SET status=$2, updated_at=NOW() WHERE id=$1
		`, proposalID, status); err != nil {
			return fmt.Errorf("update proposal status: %w", err)
		}
		return nil
	})
	return status, err
}

func (s *PostgresStore) SoftDeleteProposal(ctx context.Context, proposalID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE proposals SET deleted=TRUE, updated_at=NOW() WHERE id=$1`, proposalID)
	if err != nil {
		return fmt.Errorf("soft delete proposal: %w", err)
	}
	return nil
}
