package governance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/events"
	"github.com/asset-exchange/backend/internal/models"
)

// CreateProposal opens a proposal. Its commit window starts now and both
// window ends are fixed at creation.
func (l *Ledger) CreateProposal(ctx context.Context, description string, relatedListingID uint64, proposer string) (*models.Proposal, error) {
	if strings.TrimSpace(description) == "" {
		return nil, apperr.ErrEmptyDescription
	}
	if proposer == "" {
		return nil, apperr.ErrInvalidIdentity
	}

	l.mu.Lock()
	now := l.nowFn()
	p := &models.Proposal{
		Description:      description,
		RelatedListingID: relatedListingID,
		Proposer:         proposer,
		CreatedAt:        now,
		VotingEndsAt:     now + l.cfg.VotingDuration,
		RevealEndsAt:     now + l.cfg.VotingDuration + l.cfg.RevealDuration,
	}
	id, err := l.store.InsertProposal(ctx, p)
	emitter := l.emitter
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p.ID = id

	l.log.Info("proposal created", zap.Uint64("proposal_id", id), zap.String("proposer", proposer))
	emitter.Emit(ctx, events.Event{
		Type: events.EventProposalCreated,
		Payload: map[string]any{
			"proposal_id":        id,
			"proposer":           proposer,
			"description":        description,
			"related_listing_id": relatedListingID,
			"voting_ends_at":     p.VotingEndsAt,
			"reveal_ends_at":     p.RevealEndsAt,
		},
	})
	return p, nil
}

func (l *Ledger) GetProposal(ctx context.Context, id uint64) (*models.Proposal, error) {
	return l.store.GetProposal(ctx, id)
}

func (l *Ledger) ListProposals(ctx context.Context, f ProposalFilter) ([]*models.Proposal, error) {
	return l.store.ListProposals(ctx, f)
}

// Execute closes the books on a proposal after its reveal window. It runs at
// most once; passed means strictly more than half of the revealed votes
// supported it.
func (l *Ledger) Execute(ctx context.Context, proposalID uint64) (*models.Proposal, error) {
	l.mu.Lock()
	p, err := l.store.GetProposal(ctx, proposalID)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	now := l.nowFn()
	if now <= p.RevealEndsAt {
		l.mu.Unlock()
		return nil, apperr.ErrRevealWindowOpen
	}
	if p.Executed {
		l.mu.Unlock()
		return nil, apperr.ErrAlreadyExecuted
	}
	if p.RevealedCount < l.cfg.MinVotes {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %d of %d", apperr.ErrQuorumNotMet, p.RevealedCount, l.cfg.MinVotes)
	}
	passed := Passed(p.SupportCount, p.RevealedCount)
	if err := l.store.MarkExecuted(ctx, proposalID, passed, now); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	hook := l.hook
	emitter := l.emitter
	l.mu.Unlock()

	p.Executed = true
	p.Passed = passed
	p.ExecutedAt = now

	if hook != nil {
		if err := hook.OnExecuted(ctx, p.Clone()); err != nil {
			herr := fmt.Errorf("%w: %w", apperr.ErrHookFailure, err)
			l.mu.Lock()
			uerr := l.store.UnmarkExecuted(ctx, proposalID, now)
			l.mu.Unlock()
			if uerr != nil {
				l.log.Error("failed to undo execution", zap.Uint64("proposal_id", proposalID), zap.Error(uerr))
				return nil, errors.Join(herr, fmt.Errorf("unmark executed: %w", uerr))
			}
			l.log.Warn("execution hook failed", zap.Uint64("proposal_id", proposalID), zap.Error(err))
			return nil, herr
		}
	}

	l.log.Info("proposal executed",
		zap.Uint64("proposal_id", proposalID),
		zap.Bool("passed", passed),
		zap.Uint64("support", p.SupportCount),
		zap.Uint64("revealed", p.RevealedCount),
	)
	emitter.Emit(ctx, events.Event{
		Type: events.EventProposalExecuted,
		Payload: map[string]any{
			"proposal_id": proposalID,
			"passed":      passed,
			"support":     p.SupportCount,
			"revealed":    p.RevealedCount,
			"commits":     p.TotalCommits,
		},
	})
	return p, nil
}

// Passed is the majority rule: support > revealed/2 with integer division.
func Passed(support, revealed uint64) bool {
	return support > revealed/2
}
