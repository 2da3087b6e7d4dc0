package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Proposal is a funding request subject to a token-weighted vote. IDs are
// sequential starting at 1. Tallies only ever grow; Executed flips to true
// exactly once when the proposal is resolved after its deadline.
type Proposal struct {
	ID          uint64         `json:"id"`
	Proposer    common.Address `json:"proposer"`
	Description string         `json:"description"`
	ProjectName string         `json:"project_name"`
	ProjectUrl  string         `json:"project_url"`
	FundingGoal *big.Int       `json:"funding_goal"`

	TotalVotesFor     *big.Int `json:"total_votes_for"`
	TotalVotesAgainst *big.Int `json:"total_votes_against"`
	VotersFor         uint64   `json:"voters_for"`
	VotersAgainst     uint64   `json:"voters_against"`
	TotalInvested     *big.Int `json:"total_invested"`

	// Fee charged at creation, kept per proposal since the global fee
	// parameter can change afterwards.
	ProposalFee *big.Int `json:"proposal_fee"`

	CreatedAt int64 `json:"created_at"`
	EndTime   int64 `json:"end_time"`

	Executed bool `json:"executed"`
	Passed   bool `json:"passed"`
	Rejected bool `json:"rejected"`
	// Refunded marks that voter investments of a rejected proposal have
	// been returned. The investment records themselves are never deleted.
	Refunded bool `json:"refunded"`
}

// Investment is a vote record. At most one exists per (proposal, voter);
// its existence is the has-voted flag.
type Investment struct {
	ProposalID uint64         `json:"proposal_id"`
	Voter      common.Address `json:"voter"`
	Amount     *big.Int       `json:"amount"`
	Support    bool           `json:"support"`
	Timestamp  int64          `json:"timestamp"`
	Refunded   bool           `json:"refunded"`
}

// MultiSigAction tags the privileged operation a MultiSigProposal performs
// once it gathers enough owner approvals.
type MultiSigAction string

const (
	ActionPause        MultiSigAction = "pause"
	ActionUnpause      MultiSigAction = "unpause"
	ActionSetParameter MultiSigAction = "set_parameter"
	ActionWithdraw     MultiSigAction = "withdraw"
	ActionExtendVoting MultiSigAction = "extend_voting"
)

// Parameter names accepted by ActionSetParameter.
const (
	ParamMinTokensForProposal = "min_tokens_for_proposal"
	ParamMinVotingTokens      = "min_voting_tokens"
	ParamMinQuorumPercent     = "min_quorum_percent"
	ParamProposalFee          = "proposal_fee"
	ParamVotingDuration       = "voting_duration"
	ParamRequiredApprovals    = "required_approvals"
)

// MultiSigProposal gates a privileged operation behind N-of-M owner
// approval. The creator's approval is implicit, and the action applies
// atomically with the approval that reaches the threshold.
type MultiSigProposal struct {
	ID       uint64         `json:"id"`
	Proposer common.Address `json:"proposer"`
	Action   MultiSigAction `json:"action"`

	// Param names the governance parameter for set_parameter actions.
	Param string `json:"param,omitempty"`
	// Value carries the action payload: the new parameter value, the
	// withdrawal amount, the extension in seconds, or the target proposal
	// id for extend_voting (see Target below for withdraw recipients).
	Value *big.Int `json:"value,omitempty"`
	// Target is the withdrawal recipient for withdraw actions.
	Target common.Address `json:"target,omitempty"`
	// TargetProposal is the proposal whose deadline extend_voting moves.
	TargetProposal uint64 `json:"target_proposal,omitempty"`

	Approvals  []common.Address `json:"approvals"`
	Executed   bool             `json:"executed"`
	CreatedAt  int64            `json:"created_at"`
	ExecutedAt int64            `json:"executed_at,omitempty"`
}

// Approved reports whether addr already approved this proposal.
func (p *MultiSigProposal) Approved(addr common.Address) bool {
	for _, a := range p.Approvals {
		if a == addr {
			return true
		}
	}
	return false
}

// FundingRecord is an append-only entry written for every successful
// disbursement to a proposer.
type FundingRecord struct {
	ID         uint64         `json:"id"`
	ProposalID uint64         `json:"proposal_id"`
	Recipient  common.Address `json:"recipient"`
	Amount     *big.Int       `json:"amount"`
	Timestamp  int64          `json:"timestamp"`
}

// GovernanceParameters is the snapshot returned by the query layer.
type GovernanceParameters struct {
	MinTokensForProposal *big.Int `json:"min_tokens_for_proposal"`
	MinVotingTokens      *big.Int `json:"min_voting_tokens"`
	MinQuorumPercent     uint64   `json:"min_quorum_percent"`
	ProposalFee          *big.Int `json:"proposal_fee"`
	VotingDurationSecs   int64    `json:"voting_duration_secs"`
	RequiredApprovals    uint64   `json:"required_approvals"`
}

// ContractStatus aggregates the dashboard counters the UI polls for.
type ContractStatus struct {
	Paused                 bool     `json:"paused"`
	TotalProposals         uint64   `json:"total_proposals"`
	TotalMultiSigProposals uint64   `json:"total_multisig_proposals"`
	TotalFundingRecords    uint64   `json:"total_funding_records"`
	DAOBalance             *big.Int `json:"dao_balance"`
}

// ProposalBasicDetails is the identity/metadata half of a proposal.
type ProposalBasicDetails struct {
	ID          uint64         `json:"id"`
	Proposer    common.Address `json:"proposer"`
	Description string         `json:"description"`
	ProjectName string         `json:"project_name"`
	ProjectUrl  string         `json:"project_url"`
	FundingGoal *big.Int       `json:"funding_goal"`
	CreatedAt   int64          `json:"created_at"`
	EndTime     int64          `json:"end_time"`
	Executed    bool           `json:"executed"`
	Passed      bool           `json:"passed"`
	Rejected    bool           `json:"rejected"`
}

// ProposalVotingDetails is the tally half of a proposal.
type ProposalVotingDetails struct {
	TotalVotesFor     *big.Int `json:"total_votes_for"`
	TotalVotesAgainst *big.Int `json:"total_votes_against"`
	VotersFor         uint64   `json:"voters_for"`
	VotersAgainst     uint64   `json:"voters_against"`
	TotalInvested     *big.Int `json:"total_invested"`
}

// InvestorDetails returns per-voter data as parallel slices, the layout the
// admin dashboard consumes.
type InvestorDetails struct {
	Investors   []common.Address `json:"investors"`
	Investments []*big.Int       `json:"investments"`
	Supports    []bool           `json:"supports"`
	Timestamps  []int64          `json:"timestamps"`
	HasVoted    []bool           `json:"has_voted"`
}

// govState is the persisted global mutable state: the pause flag, the DAO
// custody balance and the parameters that multisig actions may change.
type govState struct {
	Paused               bool     `json:"paused"`
	Balance              *big.Int `json:"balance"`
	MinTokensForProposal *big.Int `json:"min_tokens_for_proposal"`
	MinVotingTokens      *big.Int `json:"min_voting_tokens"`
	MinQuorumPercent     uint64   `json:"min_quorum_percent"`
	ProposalFee          *big.Int `json:"proposal_fee"`
	VotingDurationSecs   int64    `json:"voting_duration_secs"`
	RequiredApprovals    uint64   `json:"required_approvals"`
}
