package services

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/governance"
	"github.com/asset-exchange/backend/internal/models"
)

type GovernanceService struct {
	ledger *governance.Ledger
	audit  AuditLogger
	log    *zap.Logger

	mu           sync.Mutex
	quorumLogged map[uint64]bool
}

func NewGovernanceService(ledger *governance.Ledger, audit AuditLogger, log *zap.Logger) *GovernanceService {
	return &GovernanceService{
		ledger:       ledger,
		audit:        audit,
		log:          log,
		quorumLogged: make(map[uint64]bool),
	}
}

func (s *GovernanceService) CreateProposal(ctx context.Context, proposer, description string, relatedListingID uint64) (*models.Proposal, error) {
	p, err := s.ledger.CreateProposal(ctx, description, relatedListingID, proposer)
	if err != nil {
		return nil, err
	}
	record(ctx, s.audit, proposer, actorUser, "proposal_created", "proposal", idString(p.ID),
		map[string]any{"related_listing_id": relatedListingID})
	return p, nil
}

func (s *GovernanceService) GetProposal(ctx context.Context, id uint64) (*models.Proposal, error) {
	return s.ledger.GetProposal(ctx, id)
}

func (s *GovernanceService) ListProposals(ctx context.Context, limit, offset int) ([]*models.Proposal, error) {
	return s.ledger.ListProposals(ctx, governance.ProposalFilter{Limit: limit, Offset: offset})
}

// Commit accepts a hex-encoded commitment hash.
func (s *GovernanceService) Commit(ctx context.Context, proposalID uint64, voter, commitHex string) error {
	h, err := models.ParseHash(commitHex)
	if err != nil {
		return apperr.ErrZeroCommitment
	}
	if err := s.ledger.Commit(ctx, proposalID, voter, h); err != nil {
		return err
	}
	record(ctx, s.audit, voter, actorUser, "vote_committed", "proposal", idString(proposalID),
		map[string]any{"commit_hash": h.Hex()})
	return nil
}

// Reveal accepts the hex-encoded 32-byte salt used for the commitment.
func (s *GovernanceService) Reveal(ctx context.Context, proposalID uint64, voter string, support bool, saltHex string) error {
	salt, err := models.ParseHash(saltHex)
	if err != nil {
		return apperr.ErrRevealMismatch
	}
	if err := s.ledger.Reveal(ctx, proposalID, voter, support, salt); err != nil {
		return err
	}
	record(ctx, s.audit, voter, actorUser, "vote_revealed", "proposal", idString(proposalID),
		map[string]any{"support": support})
	return nil
}

func (s *GovernanceService) Execute(ctx context.Context, proposalID uint64, actor string) (*models.Proposal, error) {
	p, err := s.ledger.Execute(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	actorType := actorUser
	if actor == "" {
		actorType = actorSystem
	}
	record(ctx, s.audit, actor, actorType, "proposal_executed", "proposal", idString(proposalID),
		map[string]any{"passed": p.Passed, "support": p.SupportCount, "revealed": p.RevealedCount})
	return p, nil
}

// OutcomeHook copies the result of an executed proposal onto the audit trail
// of the listing it references, if any.
func (s *GovernanceService) OutcomeHook() governance.ExecutionHook {
	return governance.HookFunc(func(ctx context.Context, p *models.Proposal) error {
		if p.RelatedListingID == 0 {
			return nil
		}
		record(ctx, s.audit, "", actorSystem, "proposal_outcome", "listing", idString(p.RelatedListingID),
			map[string]any{"proposal_id": p.ID, "passed": p.Passed})
		return nil
	})
}

func (s *GovernanceService) MyVote(ctx context.Context, proposalID uint64, voter string) (*models.VoteRecord, error) {
	return s.ledger.Vote(ctx, proposalID, voter)
}

// FinalizeReady executes every proposal whose reveal window has closed.
// A quorum failure is final once reveals are over, so each one is logged once
// and skipped on later passes. Other errors are returned joined.
func (s *GovernanceService) FinalizeReady(ctx context.Context) ([]*models.Proposal, error) {
	const page = 100
	now := s.ledger.Now()

	var executed []*models.Proposal
	var errs []error
	offset := 0
	for {
		ready, err := s.ledger.ListProposals(ctx, governance.ProposalFilter{ReadyBefore: now, Limit: page, Offset: offset})
		if err != nil {
			return executed, errors.Join(append(errs, err)...)
		}
		for _, p := range ready {
			if s.seenQuorumFailure(p.ID) {
				continue
			}
			done, err := s.Execute(ctx, p.ID, "")
			switch {
			case err == nil:
				executed = append(executed, done)
				// executed rows leave the filter, so the next page starts earlier
				offset--
			case errors.Is(err, apperr.ErrQuorumNotMet):
				s.markQuorumFailure(p.ID)
				s.log.Info("proposal did not reach quorum",
					zap.Uint64("proposal_id", p.ID),
					zap.Uint64("revealed", p.RevealedCount))
			case errors.Is(err, apperr.ErrAlreadyExecuted), errors.Is(err, apperr.ErrRevealWindowOpen):
			default:
				errs = append(errs, err)
			}
		}
		if len(ready) < page {
			break
		}
		offset += len(ready)
	}
	return executed, errors.Join(errs...)
}

func (s *GovernanceService) seenQuorumFailure(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quorumLogged[id]
}

func (s *GovernanceService) markQuorumFailure(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quorumLogged[id] = true
}

// Now is the governance clock, used to report proposal phases.
func (s *GovernanceService) Now() int64 {
	return s.ledger.Now()
}
