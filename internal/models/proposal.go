package models

// Proposal phases, derived from the shared clock.
const (
	PhaseCommit   = "commit"
	PhaseReveal   = "reveal"
	PhaseClosed   = "closed"
	PhaseExecuted = "executed"
)

type Proposal struct {
	ID               uint64 `json:"id"`
	Description      string `json:"description"`
	RelatedListingID uint64 `json:"related_listing_id,omitempty"`
	Proposer         string `json:"proposer"`
	CreatedAt        int64  `json:"created_at"`
	VotingEndsAt     int64  `json:"voting_ends_at"`
	RevealEndsAt     int64  `json:"reveal_ends_at"`
	TotalCommits     uint64 `json:"total_commits"`
	RevealedCount    uint64 `json:"revealed_count"`
	SupportCount     uint64 `json:"support_count"`
	Executed         bool   `json:"executed"`
	Passed           bool   `json:"passed"`
	ExecutedAt       int64  `json:"executed_at,omitempty"`
}

// Phase reports where the proposal sits on its timeline at now.
func (p *Proposal) Phase(now int64) string {
	switch {
	case p.Executed:
		return PhaseExecuted
	case now < p.VotingEndsAt:
		return PhaseCommit
	case now <= p.RevealEndsAt:
		return PhaseReveal
	default:
		return PhaseClosed
	}
}

func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// VoteRecord is keyed by (ProposalID, Voter). CommittedAt == 0 means absent.
type VoteRecord struct {
	ProposalID  uint64 `json:"proposal_id"`
	Voter       string `json:"voter"`
	CommitHash  Hash   `json:"commit_hash"`
	Revealed    bool   `json:"revealed"`
	Support     bool   `json:"support"`
	CommittedAt int64  `json:"committed_at"`
	RevealedAt  int64  `json:"revealed_at,omitempty"`
}

func (v *VoteRecord) Clone() *VoteRecord {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
