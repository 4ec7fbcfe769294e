package governance

import (
	"context"

	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/events"
	"github.com/asset-exchange/backend/internal/models"
)

// Commit records a sealed vote. One commitment per voter per proposal, only
// while the commit window is open.
func (l *Ledger) Commit(ctx context.Context, proposalID uint64, voter string, commitHash models.Hash) error {
	if voter == "" {
		return apperr.ErrInvalidIdentity
	}
	if commitHash.IsZero() {
		return apperr.ErrZeroCommitment
	}

	l.mu.Lock()
	p, err := l.store.GetProposal(ctx, proposalID)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	now := l.nowFn()
	if now >= p.VotingEndsAt {
		l.mu.Unlock()
		return apperr.ErrVotingClosed
	}
	err = l.store.InsertCommit(ctx, &models.VoteRecord{
		ProposalID:  proposalID,
		Voter:       voter,
		CommitHash:  commitHash,
		CommittedAt: now,
	})
	emitter := l.emitter
	l.mu.Unlock()
	if err != nil {
		return err
	}

	l.log.Info("vote committed", zap.Uint64("proposal_id", proposalID), zap.String("voter", voter))
	emitter.Emit(ctx, events.Event{
		Type: events.EventVoteCommitted,
		Payload: map[string]any{
			"proposal_id": proposalID,
			"voter":       voter,
			"commit_hash": commitHash.Hex(),
		},
	})
	return nil
}

// Reveal opens a sealed vote during the reveal window. The recomputed
// commitment must equal the stored one.
func (l *Ledger) Reveal(ctx context.Context, proposalID uint64, voter string, support bool, salt Salt) error {
	l.mu.Lock()
	p, err := l.store.GetProposal(ctx, proposalID)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	now := l.nowFn()
	if now < p.VotingEndsAt {
		l.mu.Unlock()
		return apperr.ErrRevealNotOpen
	}
	if now > p.RevealEndsAt {
		l.mu.Unlock()
		return apperr.ErrRevealClosed
	}
	vote, err := l.store.GetVote(ctx, proposalID, voter)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if vote.Revealed {
		l.mu.Unlock()
		return apperr.ErrAlreadyRevealed
	}
	if Commitment(support, salt, voter) != vote.CommitHash {
		l.mu.Unlock()
		return apperr.ErrRevealMismatch
	}
	err = l.store.MarkRevealed(ctx, proposalID, voter, support, now)
	emitter := l.emitter
	l.mu.Unlock()
	if err != nil {
		return err
	}

	l.log.Info("vote revealed", zap.Uint64("proposal_id", proposalID), zap.String("voter", voter))
	emitter.Emit(ctx, events.Event{
		Type: events.EventVoteRevealed,
		Payload: map[string]any{
			"proposal_id": proposalID,
			"voter":       voter,
			"support":     support,
		},
	})
	return nil
}

// Vote returns the caller's record, or ErrNoCommitment.
func (l *Ledger) Vote(ctx context.Context, proposalID uint64, voter string) (*models.VoteRecord, error) {
	if _, err := l.store.GetProposal(ctx, proposalID); err != nil {
		return nil, err
	}
	return l.store.GetVote(ctx, proposalID, voter)
}
