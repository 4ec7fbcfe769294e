package governance

import (
	"context"
	"sort"
	"sync"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/models"
)

// Store persists proposals and vote records. Writes that advance a one-way
// flag are conditional and report the matching state error when lost.
type Store interface {
	InsertProposal(ctx context.Context, p *models.Proposal) (uint64, error)
	GetProposal(ctx context.Context, id uint64) (*models.Proposal, error)
	ListProposals(ctx context.Context, f ProposalFilter) ([]*models.Proposal, error)
	// GetVote returns ErrNoCommitment when the voter never committed.
	GetVote(ctx context.Context, proposalID uint64, voter string) (*models.VoteRecord, error)
	// InsertCommit stores the record and bumps TotalCommits.
	InsertCommit(ctx context.Context, v *models.VoteRecord) error
	// MarkRevealed flips the record and bumps RevealedCount (and SupportCount).
	MarkRevealed(ctx context.Context, proposalID uint64, voter string, support bool, at int64) error
	MarkExecuted(ctx context.Context, proposalID uint64, passed bool, at int64) error
	// UnmarkExecuted clears the latch only while it still carries the
	// executed_at stamp written by the caller's own MarkExecuted. A latch set
	// by another execution yields ErrAlreadyExecuted; an unset one is a no-op.
	UnmarkExecuted(ctx context.Context, proposalID uint64, executedAt int64) error
}

type ProposalFilter struct {
	// ReadyBefore, when set, keeps only unexecuted proposals whose reveal
	// window ended before it.
	ReadyBefore int64
	Limit       int
	Offset      int
}

type voteKey struct {
	proposal uint64
	voter    string
}

type MemoryStore struct {
	mu        sync.RWMutex
	nextID    uint64
	proposals map[uint64]*models.Proposal
	votes     map[voteKey]*models.VoteRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proposals: make(map[uint64]*models.Proposal),
		votes:     make(map[voteKey]*models.VoteRecord),
	}
}

func (s *MemoryStore) InsertProposal(_ context.Context, p *models.Proposal) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	stored := p.Clone()
	stored.ID = s.nextID
	s.proposals[stored.ID] = stored
	return stored.ID, nil
}

func (s *MemoryStore) GetProposal(_ context.Context, id uint64) (*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, apperr.ErrProposalNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ListProposals(_ context.Context, f ProposalFilter) ([]*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Proposal, 0)
	for _, p := range s.proposals {
		if f.ReadyBefore > 0 && (p.Executed || p.RevealEndsAt >= f.ReadyBefore) {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Offset >= len(out) {
		return []*models.Proposal{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) GetVote(_ context.Context, proposalID uint64, voter string) (*models.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votes[voteKey{proposalID, voter}]
	if !ok {
		return nil, apperr.ErrNoCommitment
	}
	return v.Clone(), nil
}

func (s *MemoryStore) InsertCommit(_ context.Context, v *models.VoteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[v.ProposalID]
	if !ok {
		return apperr.ErrProposalNotFound
	}
	key := voteKey{v.ProposalID, v.Voter}
	if _, exists := s.votes[key]; exists {
		return apperr.ErrAlreadyCommitted
	}
	s.votes[key] = v.Clone()
	p.TotalCommits++
	return nil
}

func (s *MemoryStore) MarkRevealed(_ context.Context, proposalID uint64, voter string, support bool, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[proposalID]
	if !ok {
		return apperr.ErrProposalNotFound
	}
	v, ok := s.votes[voteKey{proposalID, voter}]
	if !ok {
		return apperr.ErrNoCommitment
	}
	if v.Revealed {
		return apperr.ErrAlreadyRevealed
	}
	v.Revealed = true
	v.Support = support
	v.RevealedAt = at
	p.RevealedCount++
	if support {
		p.SupportCount++
	}
	return nil
}

func (s *MemoryStore) MarkExecuted(_ context.Context, proposalID uint64, passed bool, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[proposalID]
	if !ok {
		return apperr.ErrProposalNotFound
	}
	if p.Executed {
		return apperr.ErrAlreadyExecuted
	}
	p.Executed = true
	p.Passed = passed
	p.ExecutedAt = at
	return nil
}

func (s *MemoryStore) UnmarkExecuted(_ context.Context, proposalID uint64, executedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[proposalID]
	if !ok {
		return apperr.ErrProposalNotFound
	}
	if !p.Executed {
		return nil
	}
	if p.ExecutedAt != executedAt {
		return apperr.ErrAlreadyExecuted
	}
	p.Executed = false
	p.Passed = false
	p.ExecutedAt = 0
	return nil
}
