package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Read-only queries consumed by dashboards and explorers. All of them are
// safe to call at any time, including while paused, and never mutate state.

func (d *DAO) GetProposalBasicDetails(id uint64) (*ProposalBasicDetails, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, err := d.loadProposal(id)
	if err != nil {
		return nil, err
	}
	return &ProposalBasicDetails{
		ID:          p.ID,
		Proposer:    p.Proposer,
		Description: p.Description,
		ProjectName: p.ProjectName,
		ProjectUrl:  p.ProjectUrl,
		FundingGoal: p.FundingGoal,
		CreatedAt:   p.CreatedAt,
		EndTime:     p.EndTime,
		Executed:    p.Executed,
		Passed:      p.Passed,
		Rejected:    p.Rejected,
	}, nil
}

func (d *DAO) GetProposalVotingDetails(id uint64) (*ProposalVotingDetails, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, err := d.loadProposal(id)
	if err != nil {
		return nil, err
	}
	return &ProposalVotingDetails{
		TotalVotesFor:     p.TotalVotesFor,
		TotalVotesAgainst: p.TotalVotesAgainst,
		VotersFor:         p.VotersFor,
		VotersAgainst:     p.VotersAgainst,
		TotalInvested:     p.TotalInvested,
	}, nil
}

// GetAllProposalIDs returns every proposal id in creation order. Ids are
// dense and sequential, so this is a plain range.
func (d *DAO) GetAllProposalIDs() []uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	total := d.getCount(proposalCountKey)
	ids := make([]uint64, 0, total)
	for id := uint64(1); id <= total; id++ {
		ids = append(ids, id)
	}
	return ids
}

// GetProposalsByProposer filters proposals down to one proposer's.
func (d *DAO) GetProposalsByProposer(proposer common.Address) []uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	total := d.getCount(proposalCountKey)
	var ids []uint64
	for id := uint64(1); id <= total; id++ {
		p, err := d.loadProposal(id)
		if err == nil && p.Proposer == proposer {
			ids = append(ids, id)
		}
	}
	return ids
}

// GetInvestorDetails returns the per-voter breakdown of a proposal as
// parallel slices.
func (d *DAO) GetInvestorDetails(id uint64) (*InvestorDetails, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, err := d.loadProposal(id); err != nil {
		return nil, err
	}

	voters, err := d.loadVoters(id)
	if err != nil {
		return nil, err
	}
	details := &InvestorDetails{
		Investors:   make([]common.Address, 0, len(voters)),
		Investments: make([]*big.Int, 0, len(voters)),
		Supports:    make([]bool, 0, len(voters)),
		Timestamps:  make([]int64, 0, len(voters)),
		HasVoted:    make([]bool, 0, len(voters)),
	}
	for _, voter := range voters {
		inv, err := d.loadInvestment(id, voter)
		if err != nil {
			return nil, err
		}
		if inv == nil {
			continue
		}
		details.Investors = append(details.Investors, voter)
		details.Investments = append(details.Investments, inv.Amount)
		details.Supports = append(details.Supports, inv.Support)
		details.Timestamps = append(details.Timestamps, inv.Timestamp)
		details.HasVoted = append(details.HasVoted, true)
	}
	return details, nil
}

func (d *DAO) GetInvestorCount(id uint64) (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, err := d.loadProposal(id); err != nil {
		return 0, err
	}
	voters, err := d.loadVoters(id)
	if err != nil {
		return 0, err
	}
	return uint64(len(voters)), nil
}

// GetInvestment returns the vote record for (proposal, voter), or nil when
// the address has not voted.
func (d *DAO) GetInvestment(id uint64, voter common.Address) (*Investment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, err := d.loadProposal(id); err != nil {
		return nil, err
	}
	return d.loadInvestment(id, voter)
}

func (d *DAO) GetDAOBalance() *big.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return new(big.Int).Set(d.state.Balance)
}

func (d *DAO) GetGovernanceParameters() *GovernanceParameters {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return &GovernanceParameters{
		MinTokensForProposal: new(big.Int).Set(d.state.MinTokensForProposal),
		MinVotingTokens:      new(big.Int).Set(d.state.MinVotingTokens),
		MinQuorumPercent:     d.state.MinQuorumPercent,
		ProposalFee:          new(big.Int).Set(d.state.ProposalFee),
		VotingDurationSecs:   d.state.VotingDurationSecs,
		RequiredApprovals:    d.state.RequiredApprovals,
	}
}

func (d *DAO) GetContractStatus() *ContractStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return &ContractStatus{
		Paused:                 d.state.Paused,
		TotalProposals:         d.getCount(proposalCountKey),
		TotalMultiSigProposals: d.getCount(multiSigCountKey),
		TotalFundingRecords:    d.getCount(fundingCountKey),
		DAOBalance:             new(big.Int).Set(d.state.Balance),
	}
}

func (d *DAO) GetRequiredApprovals() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.RequiredApprovals
}

func (d *DAO) GetOwners() []common.Address {
	owners := make([]common.Address, len(d.owners))
	copy(owners, d.owners)
	return owners
}

func (d *DAO) GetMultiSigProposalDetails(id uint64) (*MultiSigProposal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadMultiSig(id)
}

func (d *DAO) GetFundingRecord(id uint64) (*FundingRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadFundingRecord(id)
}

// GetTotalFundedAmount sums every disbursement made so far.
func (d *DAO) GetTotalFundedAmount() *big.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	total := big.NewInt(0)
	last := d.getCount(fundingCountKey)
	for id := uint64(1); id <= last; id++ {
		rec, err := d.loadFundingRecord(id)
		if err != nil {
			continue
		}
		total = new(big.Int).Add(total, rec.Amount)
	}
	return total
}

// IsProposalActive reports whether a proposal is still accepting votes.
func (d *DAO) IsProposalActive(id uint64) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, err := d.loadProposal(id)
	if err != nil {
		return false, err
	}
	return !p.Executed && d.now() < p.EndTime, nil
}

// TimeUntilEnd returns the seconds left in a proposal's voting window, zero
// once it has closed.
func (d *DAO) TimeUntilEnd(id uint64) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, err := d.loadProposal(id)
	if err != nil {
		return 0, err
	}
	left := p.EndTime - d.now()
	if left < 0 {
		left = 0
	}
	return left, nil
}
