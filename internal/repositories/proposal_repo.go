package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/governance"
	"github.com/asset-exchange/backend/internal/models"
)

// ProposalRepo implements governance.Store. Counter bumps happen in the same
// transaction as the vote write they belong to.
type ProposalRepo struct {
	pool *pgxpool.Pool
}

var _ governance.Store = (*ProposalRepo)(nil)

func NewProposalRepo(pool *pgxpool.Pool) *ProposalRepo {
	return &ProposalRepo{pool: pool}
}

const proposalColumns = `id, description, related_listing_id, proposer, created_at, voting_ends_at,
	reveal_ends_at, total_commits, revealed_count, support_count, executed, passed, executed_at`

func scanProposal(row pgx.Row) (*models.Proposal, error) {
	var p models.Proposal
	err := row.Scan(&p.ID, &p.Description, &p.RelatedListingID, &p.Proposer, &p.CreatedAt, &p.VotingEndsAt,
		&p.RevealEndsAt, &p.TotalCommits, &p.RevealedCount, &p.SupportCount, &p.Executed, &p.Passed, &p.ExecutedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProposalRepo) InsertProposal(ctx context.Context, p *models.Proposal) (uint64, error) {
	var id uint64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO proposals (description, related_listing_id, proposer, created_at, voting_ends_at, reveal_ends_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, p.Description, p.RelatedListingID, p.Proposer, p.CreatedAt, p.VotingEndsAt, p.RevealEndsAt).Scan(&id)
	return id, err
}

func (r *ProposalRepo) GetProposal(ctx context.Context, id uint64) (*models.Proposal, error) {
	p, err := scanProposal(r.pool.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrProposalNotFound
	}
	return p, err
}

func (r *ProposalRepo) ListProposals(ctx context.Context, f governance.ProposalFilter) ([]*models.Proposal, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+proposalColumns+` FROM proposals
		WHERE $1 = 0 OR (NOT executed AND reveal_ends_at < $1)
		ORDER BY id LIMIT $2 OFFSET $3
	`, f.ReadyBefore, limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.Proposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProposalRepo) GetVote(ctx context.Context, proposalID uint64, voter string) (*models.VoteRecord, error) {
	var v models.VoteRecord
	var hash []byte
	err := r.pool.QueryRow(ctx, `
		SELECT proposal_id, voter, commit_hash, revealed, support, committed_at, revealed_at
		FROM votes WHERE proposal_id = $1 AND voter = $2
	`, proposalID, voter).Scan(&v.ProposalID, &v.Voter, &hash, &v.Revealed, &v.Support, &v.CommittedAt, &v.RevealedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNoCommitment
	}
	if err != nil {
		return nil, err
	}
	copy(v.CommitHash[:], hash)
	return &v, nil
}

func (r *ProposalRepo) InsertCommit(ctx context.Context, v *models.VoteRecord) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO votes (proposal_id, voter, commit_hash, committed_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (proposal_id, voter) DO NOTHING
		`, v.ProposalID, v.Voter, v.CommitHash[:], v.CommittedAt)
		if isPgCode(err, pgForeignKeyViolation) {
			return apperr.ErrProposalNotFound
		}
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrAlreadyCommitted
		}
		_, err = tx.Exec(ctx, `UPDATE proposals SET total_commits = total_commits + 1 WHERE id = $1`, v.ProposalID)
		return err
	})
}

func (r *ProposalRepo) MarkRevealed(ctx context.Context, proposalID uint64, voter string, support bool, at int64) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE votes SET revealed = true, support = $3, revealed_at = $4
			WHERE proposal_id = $1 AND voter = $2 AND NOT revealed
		`, proposalID, voter, support, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM votes WHERE proposal_id = $1 AND voter = $2)`,
				proposalID, voter).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return apperr.ErrNoCommitment
			}
			return apperr.ErrAlreadyRevealed
		}
		_, err = tx.Exec(ctx, `
			UPDATE proposals
			SET revealed_count = revealed_count + 1,
			    support_count = support_count + CASE WHEN $2 THEN 1 ELSE 0 END
			WHERE id = $1
		`, proposalID, support)
		return err
	})
}

func (r *ProposalRepo) MarkExecuted(ctx context.Context, proposalID uint64, passed bool, at int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE proposals SET executed = true, passed = $2, executed_at = $3
		WHERE id = $1 AND NOT executed
	`, proposalID, passed, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetProposal(ctx, proposalID); err != nil {
			return err
		}
		return apperr.ErrAlreadyExecuted
	}
	return nil
}

func (r *ProposalRepo) UnmarkExecuted(ctx context.Context, proposalID uint64, executedAt int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE proposals SET executed = false, passed = false, executed_at = 0
		WHERE id = $1 AND executed AND executed_at = $2
	`, proposalID, executedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		p, err := r.GetProposal(ctx, proposalID)
		if err != nil {
			return err
		}
		if p.Executed {
			return apperr.ErrAlreadyExecuted
		}
	}
	return nil
}
